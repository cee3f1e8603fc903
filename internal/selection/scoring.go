package selection

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"contentgen/internal/domain"
)

// Context is what the run is trying to depict.
type Context struct {
	TimeSlot string   `json:"time_slot,omitempty"`
	Mood     string   `json:"mood,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// ScoredAsset is a candidate with its score and the factors behind it.
type ScoredAsset struct {
	Asset   domain.Asset       `json:"-"`
	ID      string             `json:"id"`
	Score   float64            `json:"score"`
	Factors map[string]float64 `json:"factors"`
	// Index is the asset's position in the input pool.
	Index int `json:"index"`
}

const (
	FactorTagOverlap    = "tag_overlap"
	FactorUsage         = "usage_bonus"
	FactorMood          = "mood"
	FactorTimeOfDay     = "time_of_day"
	FactorProductCompat = "product_compat"
)

// neutral is the factor value for "no information either way".
const neutral = 0.5

// folded returns the case-folded set of values. A Caser is stateful, so each
// call gets its own.
func folded(values []string) map[string]bool {
	fold := cases.Fold()
	out := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out[fold.String(v)] = true
		}
	}
	return out
}

func tagOverlap(asset domain.Asset, want map[string]bool) float64 {
	if len(want) == 0 {
		return neutral
	}
	hits := 0
	for tag := range folded(asset.Tags) {
		if want[tag] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}

// usageBonus favours assets that have been used less.
func usageBonus(asset domain.Asset) float64 {
	if asset.UsageCount <= 0 {
		return 1
	}
	return 1 / float64(1+asset.UsageCount)
}

// matchOne scores a single wanted value against the asset's declared values:
// a match is 1, an asset that declares nothing is neutral, a mismatch is 0.
func matchOne(declared []string, want string) float64 {
	if want == "" || len(declared) == 0 {
		return neutral
	}
	if folded(declared)[cases.Fold().String(want)] {
		return 1
	}
	return 0
}

func productCompat(matrix map[string]map[string]float64, role domain.Role, asset domain.Asset, product *domain.Asset) float64 {
	if role == domain.RoleProduct || product == nil {
		return neutral
	}
	row, ok := matrix[product.Subtype]
	if !ok {
		return neutral
	}
	if v, ok := row[asset.Subtype]; ok {
		return clamp01(v)
	}
	if v, ok := row["*"]; ok {
		return clamp01(v)
	}
	return neutral
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// score computes the weighted, normalised score of every candidate in input
// order. Scores fall in [0, 1].
func score(cfg Config, role domain.Role, pool []indexed, sctx Context, product *domain.Asset) []ScoredAsset {
	want := folded(sctx.Tags)
	total := cfg.Weights.sum()
	out := make([]ScoredAsset, 0, len(pool))
	for _, c := range pool {
		factors := map[string]float64{
			FactorTagOverlap:    tagOverlap(c.asset, want),
			FactorUsage:         usageBonus(c.asset),
			FactorMood:          matchOne(c.asset.Moods, sctx.Mood),
			FactorTimeOfDay:     matchOne(c.asset.TimeSlots, sctx.TimeSlot),
			FactorProductCompat: productCompat(cfg.ProductMatrix, role, c.asset, product),
		}
		s := 0.0
		if total > 0 {
			s = (cfg.Weights.TagOverlap*factors[FactorTagOverlap] +
				cfg.Weights.Usage*factors[FactorUsage] +
				cfg.Weights.Mood*factors[FactorMood] +
				cfg.Weights.TimeOfDay*factors[FactorTimeOfDay] +
				cfg.Weights.ProductCompat*factors[FactorProductCompat]) / total
		}
		out = append(out, ScoredAsset{Asset: c.asset, ID: c.asset.ID, Score: s, Factors: factors, Index: c.index})
	}
	return out
}

// rank sorts by score descending, then by the configured tie-break keys.
// Input order is always the final key so ranking is total.
func rank(scored []ScoredAsset, keys []TieBreakKey) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		for _, key := range keys {
			if c := compareBy(key, a, b); c != 0 {
				return c < 0
			}
		}
		return a.Index < b.Index
	})
}

func compareBy(key TieBreakKey, a, b ScoredAsset) int {
	switch key {
	case TieBreakUsage:
		return compareInt(a.Asset.UsageCount, b.Asset.UsageCount)
	case TieBreakLastUsed:
		// never used sorts first, then least recently used
		switch {
		case a.Asset.LastUsedAt == nil && b.Asset.LastUsedAt == nil:
			return 0
		case a.Asset.LastUsedAt == nil:
			return -1
		case b.Asset.LastUsedAt == nil:
			return 1
		}
		return a.Asset.LastUsedAt.Compare(*b.Asset.LastUsedAt)
	case TieBreakInputOrder:
		return compareInt(a.Index, b.Index)
	case TieBreakID:
		return strings.Compare(a.Asset.ID, b.Asset.ID)
	}
	return 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
