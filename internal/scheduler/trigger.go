package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"contentgen/internal/domain"
	"contentgen/internal/workerpool"
)

type TriggerOptions struct {
	// Wait blocks until the run finishes or ctx is done.
	Wait bool
	// Force starts a fresh slot even when one is already active for today.
	Force bool
}

type TriggerResult struct {
	Slot *domain.Slot `json:"slot"`
	// Started is false when an existing slot was returned as-is.
	Started bool `json:"started"`
	// Finished is set when Wait was requested and the run ended before ctx.
	Finished bool   `json:"finished"`
	Error    string `json:"error,omitempty"`
}

// TriggerNow starts a manual run for ruleID outside its window. A pending slot
// for today is relaunched; a running or awaiting slot is returned unless
// opts.Force is set; anything that already ended gets a new manual slot.
func (s *Scheduler) TriggerNow(ctx context.Context, ruleID string, opts TriggerOptions) (*TriggerResult, error) {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", ruleID, err)
	}
	now := s.now().In(s.loc)
	date := now.Format(dateLayout)
	log := s.logger.With().Str("rule_id", rule.ID).Bool("force", opts.Force).Logger()

	existing, err := s.slots.LatestForRuleDate(ctx, rule.ID, date)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check existing slot: %w", err)
	}

	var slot *domain.Slot
	switch {
	case existing != nil && existing.Status == domain.SlotStatusPending:
		slot = existing
	case existing != nil && !opts.Force && (existing.Status == domain.SlotStatusGenerating ||
		existing.Status == domain.SlotStatusAwaitingApproval || existing.Status == domain.SlotStatusPublished):
		log.Info().Str("slot_id", existing.ID).Str("status", string(existing.Status)).Msg("manual trigger returned existing slot")
		return &TriggerResult{Slot: existing}, nil
	default:
		key := fmt.Sprintf("%s:%s:manual:%s", rule.ID, date, uuid.NewString())
		slot = s.newSlot(*rule, now, domain.TriggerManual, key)
		created, err := s.slots.CreateIfAbsent(ctx, slot)
		if err != nil {
			return nil, fmt.Errorf("create slot: %w", err)
		}
		if !created {
			return nil, fmt.Errorf("create slot: %w", domain.ErrConflict)
		}
	}

	handle, err := s.launch(slot.ID)
	if err != nil {
		return nil, fmt.Errorf("launch slot %s: %w", slot.ID, err)
	}
	log.Info().Str("slot_id", slot.ID).Msg("manual trigger launched")

	res := &TriggerResult{Slot: slot, Started: true}
	if !opts.Wait {
		return res, nil
	}
	return s.await(ctx, handle, res)
}

func (s *Scheduler) await(ctx context.Context, handle *workerpool.Handle, res *TriggerResult) (*TriggerResult, error) {
	runErr := handle.Wait(ctx)
	if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		// still running on the pool
		return res, nil
	}
	res.Finished = true
	if runErr != nil {
		res.Error = runErr.Error()
	}
	slot, err := s.slots.GetByID(context.WithoutCancel(ctx), res.Slot.ID)
	if err != nil {
		return nil, fmt.Errorf("reload slot %s: %w", res.Slot.ID, err)
	}
	res.Slot = slot
	return res, nil
}
