package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"contentgen/internal/domain"
)

// Seed is a YAML document of operator data loaded into the repositories:
// reference assets, stored scenarios and time-window rules.
type Seed struct {
	Assets    []SeedAsset       `yaml:"assets"`
	Scenarios []domain.Scenario `yaml:"scenarios"`
	Rules     []SeedRule        `yaml:"rules"`
}

type SeedAsset struct {
	ID            string   `yaml:"id"`
	Category      string   `yaml:"category"`
	Subtype       string   `yaml:"subtype"`
	Name          string   `yaml:"name"`
	Tags          []string `yaml:"tags"`
	Moods         []string `yaml:"moods"`
	TimeSlots     []string `yaml:"time_slots"`
	ImageURL      string   `yaml:"image_url"`
	StorageKey    string   `yaml:"storage_key"`
	EatingMethod  string   `yaml:"eating_method"`
	PlateRequired *bool    `yaml:"plate_required"`
	Active        *bool    `yaml:"active"`
}

type SeedRule struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	StartHour   int      `yaml:"start_hour"`
	BufferHours int      `yaml:"buffer_hours"`
	Days        []string `yaml:"days"`
	TimeSlot    string   `yaml:"time_slot"`
	Mood        string   `yaml:"mood"`
	Tags        []string `yaml:"tags"`
	Active      *bool    `yaml:"active"`
}

// SeedTargets are the repositories a seed is written to.
type SeedTargets struct {
	Assets    domain.AssetRepository
	Scenarios domain.ScenarioRepository
	Rules     domain.RuleRepository
}

type SeedCounts struct {
	Assets    int
	Scenarios int
	Rules     int
}

func ParseSeed(data []byte) (*Seed, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("seed: document is empty")
	}
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	if _, err := s.rules(); err != nil {
		return nil, err
	}
	for _, a := range s.Assets {
		if a.ID == "" || normalizeCategory(a.Category) == "" {
			return nil, fmt.Errorf("seed: %w: asset %q needs an id and a category", domain.ErrInvalidInput, a.ID)
		}
	}
	for _, sc := range s.Scenarios {
		if sc.ID == "" {
			return nil, fmt.Errorf("seed: %w: scenario without id", domain.ErrInvalidInput)
		}
	}
	return &s, nil
}

func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	s, err := ParseSeed(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Apply upserts every record. Records are keyed by id, so applying the same
// seed twice leaves the repositories unchanged.
func (s *Seed) Apply(ctx context.Context, to SeedTargets) (SeedCounts, error) {
	var counts SeedCounts
	for _, a := range s.Assets {
		asset := a.asset()
		if err := to.Assets.Upsert(ctx, &asset); err != nil {
			return counts, fmt.Errorf("seed asset %s: %w", a.ID, err)
		}
		counts.Assets++
	}
	for i := range s.Scenarios {
		sc := s.Scenarios[i]
		if err := to.Scenarios.Upsert(ctx, &sc); err != nil {
			return counts, fmt.Errorf("seed scenario %s: %w", sc.ID, err)
		}
		counts.Scenarios++
	}
	rules, err := s.rules()
	if err != nil {
		return counts, err
	}
	for i := range rules {
		if err := to.Rules.Upsert(ctx, &rules[i]); err != nil {
			return counts, fmt.Errorf("seed rule %s: %w", rules[i].ID, err)
		}
		counts.Rules++
	}
	return counts, nil
}

func (a SeedAsset) asset() domain.Asset {
	return domain.Asset{
		ID:            a.ID,
		Category:      normalizeCategory(a.Category),
		Subtype:       a.Subtype,
		Name:          a.Name,
		Tags:          a.Tags,
		Moods:         a.Moods,
		TimeSlots:     a.TimeSlots,
		ImageURL:      a.ImageURL,
		StorageKey:    a.StorageKey,
		EatingMethod:  domain.EatingMethod(a.EatingMethod),
		PlateRequired: a.PlateRequired,
		Active:        a.Active == nil || *a.Active,
	}
}

func (s *Seed) rules() ([]domain.TimeWindowRule, error) {
	out := make([]domain.TimeWindowRule, 0, len(s.Rules))
	for _, r := range s.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("seed: %w: rule without id", domain.ErrInvalidInput)
		}
		if r.StartHour < 0 || r.StartHour > 23 || r.BufferHours < 1 || r.BufferHours > r.StartHour {
			return nil, fmt.Errorf("seed: %w: rule %q window %d-%dh is out of range", domain.ErrInvalidInput, r.ID, r.StartHour, r.BufferHours)
		}
		rule := domain.TimeWindowRule{
			ID:          r.ID,
			Name:        r.Name,
			StartHour:   r.StartHour,
			BufferHours: r.BufferHours,
			TimeSlot:    r.TimeSlot,
			Mood:        r.Mood,
			Tags:        r.Tags,
			Active:      r.Active == nil || *r.Active,
		}
		for _, d := range r.Days {
			day, ok := domain.ParseWeekday(d)
			if !ok {
				return nil, fmt.Errorf("seed: %w: rule %q has unknown day %q", domain.ErrInvalidInput, r.ID, d)
			}
			rule.Days = append(rule.Days, day)
		}
		out = append(out, rule)
	}
	return out, nil
}
