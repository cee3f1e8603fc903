// Package diversity computes the effective diversity rules for a run from the
// variation config and recent production history.
package diversity

import (
	"time"

	"contentgen/internal/domain"
)

// Compute derives the block sets from history, which must be ordered newest
// first. For each dimension the identifiers in the most recent Gap entries are
// blocked. The special element is due when frequency is positive and none of
// the last frequency-1 entries included it.
func Compute(cfg domain.VariationConfig, history []domain.HistoryEntry, now time.Time) domain.EffectiveRules {
	rules := domain.EffectiveRules{
		Blocked:    make(map[domain.Dimension]domain.IDSet, len(domain.Dimensions)),
		Window:     cfg.HistoryWindow(),
		ComputedAt: now,
	}
	for _, dim := range domain.Dimensions {
		set := domain.IDSet{}
		gap := cfg.Gap(dim)
		for i := 0; i < gap && i < len(history); i++ {
			set.Add(history[i].Value(dim))
		}
		rules.Blocked[dim] = set
	}
	rules.IncludeSpecialElement = specialElementDue(cfg.SpecialElementFrequency, history)
	return rules
}

func specialElementDue(frequency int, history []domain.HistoryEntry) bool {
	if frequency <= 0 {
		return false
	}
	for i := 0; i < frequency-1 && i < len(history); i++ {
		if history[i].SpecialElementIncluded {
			return false
		}
	}
	return true
}

// Open returns rules that block nothing, used when history is unavailable.
func Open(cfg domain.VariationConfig, now time.Time) domain.EffectiveRules {
	rules := Compute(cfg, nil, now)
	rules.Degraded = true
	return rules
}
