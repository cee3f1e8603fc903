// Package memstore keeps every repository in process memory. It backs
// STORE_DRIVER=memory and the pipeline and scheduler tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"contentgen/internal/domain"
)

// Store holds all tables behind one mutex so multi-row updates stay atomic.
type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	assets    map[string]*domain.Asset
	assetSeq  map[string]int
	scenarios map[string]*domain.Scenario
	history   []domain.HistoryEntry
	slots     map[string]*domain.Slot
	rules     map[string]*domain.TimeWindowRule
	configs   map[string][]byte
	audit     map[string][]domain.AuditEvent
	seq       int
}

// New returns an empty store using the wall clock.
func New() *Store {
	return &Store{
		now:       time.Now,
		assets:    map[string]*domain.Asset{},
		assetSeq:  map[string]int{},
		scenarios: map[string]*domain.Scenario{},
		slots:     map[string]*domain.Slot{},
		rules:     map[string]*domain.TimeWindowRule{},
		configs:   map[string][]byte{},
		audit:     map[string][]domain.AuditEvent{},
	}
}

// WithClock overrides the clock used for updated_at bookkeeping.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

func (s *Store) Assets() *AssetRepository       { return &AssetRepository{s: s} }
func (s *Store) Scenarios() *ScenarioRepository { return &ScenarioRepository{s: s} }
func (s *Store) History() *HistoryRepository    { return &HistoryRepository{s: s} }
func (s *Store) Slots() *SlotRepository         { return &SlotRepository{s: s} }
func (s *Store) Rules() *RuleRepository         { return &RuleRepository{s: s} }
func (s *Store) Configs() *ConfigRepository     { return &ConfigRepository{s: s} }
func (s *Store) Audit() *AuditRepository        { return &AuditRepository{s: s} }

func (s *Store) next() int {
	s.seq++
	return s.seq
}

// AssetRepository implements domain.AssetRepository.
type AssetRepository struct{ s *Store }

func (r *AssetRepository) ListActive(ctx context.Context) ([]domain.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Asset, 0, len(r.s.assets))
	for _, a := range r.s.assets {
		if a.Active {
			out = append(out, cloneAsset(a))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return r.s.assetSeq[out[i].ID] < r.s.assetSeq[out[j].ID]
	})
	return out, nil
}

func (r *AssetRepository) GetByID(ctx context.Context, id string) (*domain.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneAsset(a)
	return &c, nil
}

func (r *AssetRepository) IncrementUsage(ctx context.Context, id string, usedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assets[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.UsageCount++
	t := usedAt
	a.LastUsedAt = &t
	a.UpdatedAt = r.s.now()
	return nil
}

func (r *AssetRepository) Upsert(ctx context.Context, asset *domain.Asset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	c := cloneAsset(asset)
	if prev, ok := r.s.assets[asset.ID]; ok {
		c.CreatedAt = prev.CreatedAt
		c.LastUsedAt = prev.LastUsedAt
	} else {
		r.s.assetSeq[asset.ID] = r.s.next()
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
	}
	c.UpdatedAt = now
	r.s.assets[asset.ID] = &c
	return nil
}

func cloneAsset(a *domain.Asset) domain.Asset {
	c := *a
	c.Tags = append([]string(nil), a.Tags...)
	c.Moods = append([]string(nil), a.Moods...)
	c.TimeSlots = append([]string(nil), a.TimeSlots...)
	if a.LastUsedAt != nil {
		t := *a.LastUsedAt
		c.LastUsedAt = &t
	}
	if a.PlateRequired != nil {
		b := *a.PlateRequired
		c.PlateRequired = &b
	}
	return c
}

// ScenarioRepository implements domain.ScenarioRepository.
type ScenarioRepository struct{ s *Store }

func (r *ScenarioRepository) ListActive(ctx context.Context) ([]domain.Scenario, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Scenario, 0, len(r.s.scenarios))
	for _, sc := range r.s.scenarios {
		if sc.Active {
			out = append(out, *sc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ScenarioRepository) Upsert(ctx context.Context, scenario *domain.Scenario) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *scenario
	c.AllowedProductTypes = append([]string(nil), scenario.AllowedProductTypes...)
	r.s.scenarios[scenario.ID] = &c
	return nil
}

// HistoryRepository implements domain.HistoryRepository.
type HistoryRepository struct{ s *Store }

func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if limit <= 0 {
		return nil, nil
	}
	n := len(r.s.history)
	out := make([]domain.HistoryEntry, 0, min(limit, n))
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.s.history[i])
	}
	return out, nil
}

// Append keeps history ordered by CreatedAt, then insertion order.
func (r *HistoryRepository) Append(ctx context.Context, entry *domain.HistoryEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e := *entry
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.s.now()
	}
	idx := sort.Search(len(r.s.history), func(i int) bool {
		return r.s.history[i].CreatedAt.After(e.CreatedAt)
	})
	r.s.history = append(r.s.history, domain.HistoryEntry{})
	copy(r.s.history[idx+1:], r.s.history[idx:])
	r.s.history[idx] = e
	return nil
}

// RuleRepository implements domain.RuleRepository.
type RuleRepository struct{ s *Store }

func (r *RuleRepository) ListActive(ctx context.Context) ([]domain.TimeWindowRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.TimeWindowRule, 0, len(r.s.rules))
	for _, rule := range r.s.rules {
		if rule.Active {
			out = append(out, *rule)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartHour != out[j].StartHour {
			return out[i].StartHour < out[j].StartHour
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *RuleRepository) GetByID(ctx context.Context, id string) (*domain.TimeWindowRule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rule, ok := r.s.rules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := *rule
	return &c, nil
}

func (r *RuleRepository) Upsert(ctx context.Context, rule *domain.TimeWindowRule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *rule
	c.Days = append([]time.Weekday(nil), rule.Days...)
	now := r.s.now()
	if prev, ok := r.s.rules[rule.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	r.s.rules[rule.ID] = &c
	return nil
}

// ConfigRepository implements domain.ConfigRepository.
type ConfigRepository struct{ s *Store }

func (r *ConfigRepository) Get(ctx context.Context, key string) ([]byte, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	raw, ok := r.s.configs[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (r *ConfigRepository) Put(ctx context.Context, key string, value []byte) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.configs[key] = append([]byte(nil), value...)
	return nil
}

// AuditRepository implements domain.AuditRepository.
type AuditRepository struct{ s *Store }

func (r *AuditRepository) Append(ctx context.Context, events []domain.AuditEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range events {
		for _, existing := range r.s.audit[e.RunID] {
			if existing.Seq == e.Seq {
				return domain.ErrConflict
			}
		}
	}
	for _, e := range events {
		r.s.audit[e.RunID] = append(r.s.audit[e.RunID], e)
	}
	return nil
}

func (r *AuditRepository) ListByRun(ctx context.Context, runID string) ([]domain.AuditEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := append([]domain.AuditEvent(nil), r.s.audit[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

var (
	_ domain.AssetRepository    = (*AssetRepository)(nil)
	_ domain.ScenarioRepository = (*ScenarioRepository)(nil)
	_ domain.HistoryRepository  = (*HistoryRepository)(nil)
	_ domain.RuleRepository     = (*RuleRepository)(nil)
	_ domain.ConfigRepository   = (*ConfigRepository)(nil)
	_ domain.AuditRepository    = (*AuditRepository)(nil)
)
