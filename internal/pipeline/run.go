package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/catalog"
	"contentgen/internal/domain"
	"contentgen/internal/providers/image"
	"contentgen/internal/selection"
)

// run is the state of a single pipeline execution. It is never shared
// between goroutines.
type run struct {
	o      *Orchestrator
	slot   *domain.Slot
	seed   int64
	rng    *rand.Rand
	result *domain.PipelineResult
	logger zerolog.Logger

	sctx        selection.Context
	snapshot    *catalog.Snapshot
	rules       domain.EffectiveRules
	roles       []domain.Role
	selected    map[domain.Role]domain.Asset
	scenario    domain.Scenario
	handStyle   *domain.HandStyle
	composition *domain.Composition
	special     *domain.SpecialElement
	prompt      string
	image       *image.Result

	stageStart time.Time
}

func (r *run) execute(ctx context.Context) error {
	if err := r.stage(ctx, domain.StageAssetSelection, r.selectAssets); err != nil {
		return err
	}
	if err := r.stage(ctx, domain.StageScenarioSelection, r.selectScenario); err != nil {
		return err
	}
	if r.scenario.IsInterior {
		r.useInterior()
	} else {
		if err := r.stage(ctx, domain.StagePromptOptimization, r.composePrompt); err != nil {
			return err
		}
		if err := r.generate(ctx); err != nil {
			return err
		}
	}
	return r.stage(ctx, domain.StageApprovalDispatch, r.dispatch)
}

func (r *run) stage(ctx context.Context, s domain.Stage, fn func(context.Context) error) error {
	if err := r.enter(ctx, s); err != nil {
		return err
	}
	err := fn(ctx)
	r.leave(s)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			return err
		}
		return &domain.StageError{Stage: s, Err: err}
	}
	return nil
}

// enter checks that the run still owns the slot and persists the new stage.
func (r *run) enter(ctx context.Context, s domain.Stage) error {
	if err := ctx.Err(); err != nil {
		return &domain.StageError{Stage: s, Err: err}
	}
	if err := r.checkOwnership(ctx); err != nil {
		return err
	}
	r.result.Stage = s
	r.stageStart = r.o.opts.Now()
	if _, ok := r.result.StageTimings[s]; !ok {
		r.result.StageTimings[s] = domain.StageTiming{StartedAt: r.stageStart}
	}
	err := r.o.opts.Slots.UpdateProgress(ctx, r.slot.ID, domain.SlotProgress{
		Stage:     s,
		Result:    r.result,
		TotalCost: r.result.TotalCost,
	})
	if err != nil {
		return r.guard(ctx, fmt.Errorf("persist stage %s: %w", s, err))
	}
	r.logger.Debug().Str("stage", string(s)).Msg("stage entered")
	return nil
}

// leave adds the time spent in s; repeated stages accumulate.
func (r *run) leave(s domain.Stage) {
	t := r.result.StageTimings[s]
	t.DurationMS += r.o.opts.Now().Sub(r.stageStart).Milliseconds()
	r.result.StageTimings[s] = t
}

func (r *run) checkOwnership(ctx context.Context) error {
	status, err := r.o.opts.Slots.Status(ctx, r.slot.ID)
	if err != nil {
		return fmt.Errorf("read slot status: %w", err)
	}
	switch status {
	case domain.SlotStatusGenerating:
		return nil
	case domain.SlotStatusCancelled:
		return domain.ErrCancelled
	}
	return fmt.Errorf("%w: slot is %s", domain.ErrConflict, status)
}

// guard maps a rejected guarded write onto cancellation when that is why it
// was rejected.
func (r *run) guard(ctx context.Context, err error) error {
	if !errors.Is(err, domain.ErrConflict) {
		return err
	}
	if status, serr := r.o.opts.Slots.Status(ctx, r.slot.ID); serr == nil && status == domain.SlotStatusCancelled {
		return domain.ErrCancelled
	}
	return err
}

// addCost records a provider call. Failed calls are recorded too since the
// provider may still have billed them.
func (r *run) addCost(stage domain.Stage, provider string, attempt int, cost float64, tokens int, err error) {
	entry := domain.CostEntry{
		Stage:    stage,
		Provider: provider,
		Attempt:  attempt,
		Cost:     cost,
		Tokens:   tokens,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	r.result.AddCost(entry)
}

func (r *run) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.result.Warn(msg)
	r.logger.Warn().Str("stage", string(r.result.Stage)).Msg(msg)
}

func (r *run) reasoningName(name string) string {
	if name != "" {
		return name
	}
	return r.o.opts.Reasoning.Name()
}
