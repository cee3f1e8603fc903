package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"contentgen/internal/approval"
	"contentgen/internal/domain"
	"contentgen/internal/storage"
)

// usageFanout caps concurrent usage increments per run.
const usageFanout = 4

// dispatch publishes the accepted image, asks for approval and records the
// run. Usage counters are best effort; history and the slot are not.
func (r *run) dispatch(ctx context.Context) error {
	if r.image != nil {
		key := fmt.Sprintf("slots/%s/%s.%s", r.slot.ID, r.result.RunID, storage.ExtensionFor(r.image.Format))
		url, err := r.o.opts.Publisher.Publish(ctx, key, r.image.Format, r.image.Data)
		if err != nil {
			return fmt.Errorf("publish image: %w", err)
		}
		r.result.Image = &domain.ImageRef{
			URL:        url,
			StorageKey: key,
			Format:     r.image.Format,
			Width:      r.image.Width,
			Height:     r.image.Height,
		}
	}
	if r.result.Image == nil || r.result.Image.URL == "" {
		return fmt.Errorf("%w: no image to send for approval", domain.ErrInvalidInput)
	}

	score := 0
	if r.result.Quality != nil {
		score = r.result.Quality.Score
	}
	ref, err := r.o.opts.Approval.Request(ctx, approval.Request{
		SlotID:     r.slot.ID,
		RunID:      r.result.RunID,
		RuleID:     r.slot.RuleID,
		TargetTime: r.slot.TargetTime,
		ImageURL:   r.result.Image.URL,
		Prompt:     r.result.Prompt,
		Scenario:   r.scenario.Name,
		Assets:     r.result.Assets,
		Score:      score,
		TotalCost:  r.result.TotalCost,
	})
	if err != nil {
		return fmt.Errorf("request approval: %w", err)
	}
	r.result.ApprovalRef = ref

	r.incrementUsage(ctx)

	entry := r.historyEntry()
	if err := r.o.opts.History.Append(ctx, &entry); err != nil {
		r.orphanApproval(ref)
		return fmt.Errorf("append history: %w", err)
	}

	finished := r.o.opts.Now()
	r.leave(domain.StageApprovalDispatch)
	r.stageStart = finished
	r.result.Stage = domain.StageTerminal
	r.result.FinishedAt = &finished
	err = r.o.opts.Slots.Complete(ctx, r.slot.ID, domain.SlotCompletion{
		Result:      r.result,
		TotalCost:   r.result.TotalCost,
		ApprovalRef: ref,
	})
	if err != nil {
		err = r.guard(ctx, fmt.Errorf("complete slot: %w", err))
		if !errors.Is(err, domain.ErrCancelled) {
			r.orphanApproval(ref)
		}
		return err
	}
	return nil
}

// orphanApproval flags a run that fails after its approval request went out,
// so an operator can withdraw the request.
func (r *run) orphanApproval(ref string) {
	r.result.OrphanedApproval = true
	r.warn("approval request %s was sent but the run did not complete", ref)
}

// incrementUsage bumps every used asset concurrently. The group does not
// cancel on failure, so each asset gets its own attempt; failures become
// warnings only.
func (r *run) incrementUsage(ctx context.Context) {
	ids := make([]string, 0, len(r.selected))
	for _, a := range r.selected {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)

	now := r.o.opts.Now()
	var g errgroup.Group
	g.SetLimit(usageFanout)
	errs := make([]error, len(ids))
	for i, id := range ids {
		g.Go(func() error {
			if err := r.o.opts.Assets.IncrementUsage(ctx, id, now); err != nil {
				errs[i] = fmt.Errorf("increment usage for %s: %w", id, err)
				return errs[i]
			}
			return nil
		})
	}
	if err := g.Wait(); err == nil {
		return
	}
	for _, err := range errs {
		if err != nil {
			r.warn("%v", err)
		}
	}
}

func (r *run) historyEntry() domain.HistoryEntry {
	entry := domain.HistoryEntry{
		ID:                     uuid.NewString(),
		SlotID:                 r.slot.ID,
		CreatedAt:              r.o.opts.Now(),
		ScenarioID:             r.scenario.ID,
		CompositionID:          r.scenario.CompositionID,
		SpecialElementIncluded: r.result.SpecialElement,
	}
	if r.handStyle != nil {
		entry.HandStyleID = r.handStyle.ID
	}
	entry.ProductID = r.selected[domain.RoleProduct].ID
	entry.PlateID = r.selected[domain.RolePlate].ID
	entry.CupID = r.selected[domain.RoleCup].ID
	entry.TableID = r.selected[domain.RoleTable].ID
	return entry
}
