// Package pipeline drives one slot through asset selection, scenario
// selection, prompt writing, image generation, quality control and approval
// dispatch, persisting the slot at every stage boundary.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"contentgen/internal/approval"
	"contentgen/internal/catalog"
	"contentgen/internal/diversity"
	"contentgen/internal/domain"
	"contentgen/internal/providers/image"
	"contentgen/internal/providers/quality"
	"contentgen/internal/providers/reasoning"
	"contentgen/internal/selection"
	"contentgen/internal/storage"
)

const (
	defaultMaxAttempts     = 3
	defaultMinQualityScore = 7
	defaultAspectRatio     = "4:5"

	// finalizeTimeout bounds the writes made after the run context has ended.
	finalizeTimeout = 10 * time.Second
)

// Options wires the orchestrator. Rules may be nil, in which case runs use an
// empty creative context.
type Options struct {
	Slots     domain.SlotRepository
	Assets    domain.AssetRepository
	History   domain.HistoryRepository
	Rules     domain.RuleRepository
	Catalog   *catalog.Loader
	Diversity *diversity.Resolver
	Engine    *selection.Engine
	Reasoning reasoning.Provider
	Images    image.Generator
	Quality   quality.Evaluator
	Approval  approval.Channel
	Publisher storage.Publisher

	MaxAttempts     int
	MinQualityScore int
	AspectRatio     string
	// Seed fixes every random choice when non-zero; otherwise choices are
	// seeded from the slot id.
	Seed       int64
	RunTimeout time.Duration

	Logger   zerolog.Logger
	Now      func() time.Time
	NewRunID func() string
}

// Orchestrator runs pipelines. It holds no per-run state, so many slots may
// run concurrently on one instance.
type Orchestrator struct {
	opts   Options
	group  singleflight.Group
	logger zerolog.Logger
}

func New(opts Options) (*Orchestrator, error) {
	switch {
	case opts.Slots == nil, opts.Assets == nil, opts.History == nil:
		return nil, errors.New("pipeline: slot, asset and history repositories are required")
	case opts.Catalog == nil, opts.Diversity == nil, opts.Engine == nil:
		return nil, errors.New("pipeline: catalog, diversity resolver and selection engine are required")
	case opts.Reasoning == nil, opts.Images == nil, opts.Quality == nil:
		return nil, errors.New("pipeline: reasoning, image and quality providers are required")
	case opts.Approval == nil, opts.Publisher == nil:
		return nil, errors.New("pipeline: approval channel and publisher are required")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.MinQualityScore <= 0 {
		opts.MinQualityScore = defaultMinQualityScore
	}
	if opts.AspectRatio == "" {
		opts.AspectRatio = defaultAspectRatio
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewRunID == nil {
		opts.NewRunID = func() string { return ulid.Make().String() }
	}
	return &Orchestrator{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "pipeline").Logger(),
	}, nil
}

// Run drives slotID from pending to awaiting_approval. A second Run for the
// same slot in this process joins the one in flight; across processes the
// store-level claim rejects it with domain.ErrAlreadyRunning.
//
// The returned result reflects partial progress on failure. Cancellation is
// reported as domain.ErrCancelled and leaves the slot status untouched.
func (o *Orchestrator) Run(ctx context.Context, slotID string) (*domain.PipelineResult, error) {
	v, err, _ := o.group.Do(slotID, func() (any, error) {
		return o.run(ctx, slotID)
	})
	res, _ := v.(*domain.PipelineResult)
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, slotID string) (*domain.PipelineResult, error) {
	if o.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RunTimeout)
		defer cancel()
	}

	runID := o.opts.NewRunID()
	started := o.opts.Now()
	slot, err := o.opts.Slots.Begin(ctx, slotID, runID, started)
	if err != nil {
		return nil, fmt.Errorf("claim slot %s: %w", slotID, err)
	}

	seed := o.opts.Seed
	if seed == 0 {
		seed = selection.SeedFor(slot.ID)
	}
	r := &run{
		o:    o,
		slot: slot,
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
		result: &domain.PipelineResult{
			RunID:        runID,
			Stage:        domain.StageAssetSelection,
			StageTimings: map[domain.Stage]domain.StageTiming{},
			Reasoning:    map[domain.Stage]string{},
			StartedAt:    started,
		},
		logger: o.logger.With().Str("slot_id", slot.ID).Str("run_id", runID).Str("rule_id", slot.RuleID).Logger(),
	}
	r.logger.Info().Msg("pipeline started")

	err = r.execute(ctx)
	return r.finish(ctx, err)
}

// finish persists the outcome of a run that did not complete normally.
func (r *run) finish(ctx context.Context, err error) (*domain.PipelineResult, error) {
	if err == nil {
		r.logger.Info().
			Float64("total_cost", r.result.TotalCost).
			Int("attempts", len(r.result.Attempts)).
			Str("approval_ref", r.result.ApprovalRef).
			Msg("pipeline awaiting approval")
		return r.result, nil
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()
	finished := r.o.opts.Now()
	r.result.FinishedAt = &finished
	slots := r.o.opts.Slots

	if errors.Is(err, domain.ErrCancelled) || errors.Is(err, domain.ErrConflict) {
		if serr := slots.SaveResult(wctx, r.slot.ID, r.result, r.result.TotalCost); serr != nil {
			r.logger.Warn().Err(serr).Msg("failed to save partial result")
		}
		r.logger.Info().Err(err).Str("stage", string(r.result.Stage)).Msg("pipeline stopped")
		return r.result, err
	}

	stage := r.result.Stage
	if s, ok := domain.StageOf(err); ok {
		stage = s
	}
	ferr := slots.Fail(wctx, r.slot.ID, domain.SlotFailure{
		Stage:     stage,
		Error:     err.Error(),
		Result:    r.result,
		TotalCost: r.result.TotalCost,
	})
	if ferr != nil {
		r.logger.Warn().Err(ferr).Msg("failed to mark slot failed; saving partial result")
		if serr := slots.SaveResult(wctx, r.slot.ID, r.result, r.result.TotalCost); serr != nil {
			r.logger.Warn().Err(serr).Msg("failed to save partial result")
		}
		if errors.Is(ferr, domain.ErrConflict) {
			if status, serr := slots.Status(wctx, r.slot.ID); serr == nil && status == domain.SlotStatusCancelled {
				return r.result, domain.ErrCancelled
			}
		}
	}
	r.logger.Error().Err(err).Str("stage", string(stage)).Float64("total_cost", r.result.TotalCost).Msg("pipeline failed")
	return r.result, err
}
