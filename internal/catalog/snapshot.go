package catalog

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

// Snapshot is an immutable view of the catalog. Accessors return copies.
type Snapshot struct {
	takenAt        time.Time
	routes         map[string]domain.Role
	scenarios      []domain.Scenario
	scenarioByID   map[string]int
	handStyles     []domain.HandStyle
	compositions   map[string]domain.Composition
	specialElement domain.SpecialElement
	warnings       []string
}

// NewSnapshot freezes f merged with scenarios from the store. Store scenarios
// replace file scenarios with the same id.
func NewSnapshot(f *File, stored []domain.Scenario, takenAt time.Time) *Snapshot {
	s := &Snapshot{
		takenAt:        takenAt,
		routes:         make(map[string]domain.Role, len(f.Routes)),
		scenarioByID:   map[string]int{},
		compositions:   make(map[string]domain.Composition, len(f.Compositions)),
		handStyles:     append([]domain.HandStyle(nil), f.HandStyles...),
		specialElement: f.SpecialElement,
	}
	for category, role := range f.Routes {
		s.routes[normalizeCategory(category)] = role
	}
	for _, c := range f.Compositions {
		s.compositions[c.ID] = c
	}

	merged := map[string]domain.Scenario{}
	for _, sc := range f.Scenarios {
		merged[sc.ID] = sc
	}
	for _, sc := range stored {
		merged[sc.ID] = sc
	}
	for _, sc := range merged {
		if sc.Active {
			s.scenarios = append(s.scenarios, copyScenario(sc))
		}
	}
	sort.Slice(s.scenarios, func(i, j int) bool { return s.scenarios[i].ID < s.scenarios[j].ID })
	for i, sc := range s.scenarios {
		s.scenarioByID[sc.ID] = i
	}
	return s
}

func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// Route resolves a category string to its role. Unknown categories report false.
func (s *Snapshot) Route(category string) (domain.Role, bool) {
	role, ok := s.routes[normalizeCategory(category)]
	return role, ok
}

// Scenarios returns the active scenarios ordered by id.
func (s *Snapshot) Scenarios() []domain.Scenario {
	out := make([]domain.Scenario, len(s.scenarios))
	for i, sc := range s.scenarios {
		out[i] = copyScenario(sc)
	}
	return out
}

func (s *Snapshot) Scenario(id string) (domain.Scenario, bool) {
	i, ok := s.scenarioByID[id]
	if !ok {
		return domain.Scenario{}, false
	}
	return copyScenario(s.scenarios[i]), true
}

func (s *Snapshot) HandStyles() []domain.HandStyle {
	return append([]domain.HandStyle(nil), s.handStyles...)
}

func (s *Snapshot) Composition(id string) (domain.Composition, bool) {
	c, ok := s.compositions[id]
	return c, ok
}

func (s *Snapshot) SpecialElement() domain.SpecialElement { return s.specialElement }

// Warnings lists problems found while taking the snapshot.
func (s *Snapshot) Warnings() []string { return append([]string(nil), s.warnings...) }

// Pools groups assets by role.
type Pools map[domain.Role][]domain.Asset

// Partition routes every asset to its role pool, keeping input order. Assets
// with an unknown category are excluded and reported as warnings.
func (s *Snapshot) Partition(assets []domain.Asset) (Pools, []string) {
	pools := Pools{}
	var warnings []string
	for _, a := range assets {
		role, ok := s.Route(a.Category)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("asset %s: unknown category %q", a.ID, a.Category))
			continue
		}
		pools[role] = append(pools[role], a)
	}
	return pools, warnings
}

func copyScenario(sc domain.Scenario) domain.Scenario {
	sc.AllowedProductTypes = append([]string(nil), sc.AllowedProductTypes...)
	sc.Moods = append([]string(nil), sc.Moods...)
	sc.TimeSlots = append([]string(nil), sc.TimeSlots...)
	return sc
}

// Loader takes snapshots of the file catalog merged with the scenario store.
type Loader struct {
	file      *File
	scenarios domain.ScenarioRepository
	logger    zerolog.Logger
	now       func() time.Time
}

// NewLoader builds a loader. scenarios may be nil, in which case only the
// file catalog is used.
func NewLoader(file *File, scenarios domain.ScenarioRepository, logger zerolog.Logger) *Loader {
	return &Loader{
		file:      file,
		scenarios: scenarios,
		logger:    logger.With().Str("component", "catalog").Logger(),
		now:       time.Now,
	}
}

// Snapshot never fails on a store error: it falls back to the file scenarios
// and records a warning on the snapshot.
func (l *Loader) Snapshot(ctx context.Context) *Snapshot {
	var (
		stored  []domain.Scenario
		warning string
	)
	if l.scenarios != nil {
		list, err := l.scenarios.ListActive(ctx)
		if err != nil {
			warning = fmt.Sprintf("scenario store unavailable, using catalog file: %v", err)
			l.logger.Warn().Err(err).Msg("scenario store unavailable; using catalog file only")
		} else {
			stored = list
		}
	}
	snap := NewSnapshot(l.file, stored, l.now())
	if warning != "" {
		snap.warnings = append(snap.warnings, warning)
	}
	return snap
}
