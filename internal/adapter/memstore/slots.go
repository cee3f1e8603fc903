package memstore

import (
	"context"
	"sort"
	"time"

	"contentgen/internal/domain"
)

// SlotRepository implements domain.SlotRepository with the same guarded
// transitions as the SQL queries.
type SlotRepository struct{ s *Store }

func (r *SlotRepository) CreateIfAbsent(ctx context.Context, slot *domain.Slot) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.slots {
		if existing.IdempotencyKey == slot.IdempotencyKey {
			return false, nil
		}
	}
	if _, ok := r.s.slots[slot.ID]; ok {
		return false, domain.ErrConflict
	}
	created := slot.CreatedAt
	if created.IsZero() {
		created = r.s.now()
	}
	slot.Status = domain.SlotStatusPending
	slot.Stage = domain.StageAssetSelection
	slot.CreatedAt = created
	slot.UpdatedAt = created
	c := cloneSlot(slot)
	r.s.slots[slot.ID] = &c
	return true, nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id string) (*domain.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := cloneSlot(slot)
	return &c, nil
}

func (r *SlotRepository) LatestForRuleDate(ctx context.Context, ruleID, date string) (*domain.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *domain.Slot
	for _, slot := range r.s.slots {
		if slot.RuleID != ruleID || slot.TargetDate != date {
			continue
		}
		if latest == nil || slot.CreatedAt.After(latest.CreatedAt) {
			latest = slot
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	c := cloneSlot(latest)
	return &c, nil
}

func (r *SlotRepository) List(ctx context.Context, filter domain.SlotFilter) ([]domain.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []domain.Slot
	for _, slot := range r.s.slots {
		if filter.Status != "" && slot.Status != filter.Status {
			continue
		}
		if filter.RuleID != "" && slot.RuleID != filter.RuleID {
			continue
		}
		out = append(out, cloneSlot(slot))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SlotRepository) Begin(ctx context.Context, id, runID string, at time.Time) (*domain.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if slot.Status != domain.SlotStatusPending {
		return nil, domain.ErrAlreadyRunning
	}
	started := at
	slot.Status = domain.SlotStatusGenerating
	slot.Stage = domain.StageAssetSelection
	slot.RunID = runID
	slot.Error = ""
	slot.StartedAt = &started
	slot.FinishedAt = nil
	slot.UpdatedAt = r.s.now()
	c := cloneSlot(slot)
	return &c, nil
}

func (r *SlotRepository) Status(ctx context.Context, id string) (domain.SlotStatus, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok {
		return "", domain.ErrNotFound
	}
	return slot.Status, nil
}

// generating returns the slot when it is still owned by a run.
func (r *SlotRepository) generating(id string) (*domain.Slot, error) {
	slot, ok := r.s.slots[id]
	if !ok || slot.Status != domain.SlotStatusGenerating {
		return nil, domain.ErrConflict
	}
	return slot, nil
}

func (r *SlotRepository) UpdateProgress(ctx context.Context, id string, progress domain.SlotProgress) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, err := r.generating(id)
	if err != nil {
		return err
	}
	slot.Stage = progress.Stage
	slot.Result = progress.Result.Clone()
	slot.TotalCost = progress.TotalCost
	slot.UpdatedAt = r.s.now()
	return nil
}

func (r *SlotRepository) Complete(ctx context.Context, id string, completion domain.SlotCompletion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, err := r.generating(id)
	if err != nil {
		return err
	}
	now := r.s.now()
	slot.Status = domain.SlotStatusAwaitingApproval
	slot.Stage = domain.StageTerminal
	slot.Result = completion.Result.Clone()
	slot.TotalCost = completion.TotalCost
	slot.ApprovalRef = completion.ApprovalRef
	slot.FinishedAt = &now
	slot.UpdatedAt = now
	return nil
}

func (r *SlotRepository) Fail(ctx context.Context, id string, failure domain.SlotFailure) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok || !slot.Status.IsActive() {
		return domain.ErrConflict
	}
	now := r.s.now()
	slot.Status = domain.SlotStatusFailed
	slot.Stage = failure.Stage
	slot.Error = failure.Error
	if failure.Result != nil {
		slot.Result = failure.Result.Clone()
	}
	slot.TotalCost = failure.TotalCost
	slot.FinishedAt = &now
	slot.UpdatedAt = now
	return nil
}

func (r *SlotRepository) SaveResult(ctx context.Context, id string, result *domain.PipelineResult, totalCost float64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok {
		return nil
	}
	slot.Result = result.Clone()
	slot.TotalCost = totalCost
	slot.UpdatedAt = r.s.now()
	return nil
}

func (r *SlotRepository) SetStatus(ctx context.Context, id string, from, to domain.SlotStatus, errMsg string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok || slot.Status != from {
		return domain.ErrConflict
	}
	now := r.s.now()
	slot.Status = to
	switch {
	case to == domain.SlotStatusPending:
		slot.Error = ""
		slot.RunID = ""
		slot.FinishedAt = nil
	case errMsg != "":
		slot.Error = errMsg
	}
	if to.IsTerminal() {
		slot.FinishedAt = &now
	}
	slot.UpdatedAt = now
	return nil
}

func (r *SlotRepository) FailStuck(ctx context.Context, cutoff time.Time, errMsg string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	var ids []string
	for id, slot := range r.s.slots {
		if !slot.Status.IsActive() || !slot.UpdatedAt.Before(cutoff) {
			continue
		}
		slot.Status = domain.SlotStatusFailed
		slot.Error = errMsg
		slot.FinishedAt = &now
		slot.UpdatedAt = now
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Touch rewinds a slot's updated_at, which tests use to simulate a stalled run.
func (r *SlotRepository) Touch(id string, at time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if slot, ok := r.s.slots[id]; ok {
		slot.UpdatedAt = at
	}
}

func cloneSlot(s *domain.Slot) domain.Slot {
	c := *s
	c.Result = s.Result.Clone()
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.FinishedAt != nil {
		t := *s.FinishedAt
		c.FinishedAt = &t
	}
	return c
}

var _ domain.SlotRepository = (*SlotRepository)(nil)
