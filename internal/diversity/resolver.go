package diversity

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/cache"
	"contentgen/internal/domain"
	"contentgen/internal/domain/jsoncfg"
)

// Resolver produces EffectiveRules for a pipeline run. It never fails: a
// broken history store yields rules that block nothing.
type Resolver struct {
	history  domain.HistoryRepository
	configs  domain.ConfigRepository
	cache    cache.Cache[domain.VariationConfig]
	defaults domain.VariationConfig
	logger   zerolog.Logger
	now      func() time.Time
}

// NewResolver wires a resolver. configs may be nil to always use defaults; a
// nil cache disables caching.
func NewResolver(history domain.HistoryRepository, configs domain.ConfigRepository, c cache.Cache[domain.VariationConfig], defaults domain.VariationConfig, logger zerolog.Logger) *Resolver {
	if c == nil {
		c = cache.Nop[domain.VariationConfig]{}
	}
	return &Resolver{
		history:  history,
		configs:  configs,
		cache:    c,
		defaults: defaults,
		logger:   logger.With().Str("component", "diversity").Logger(),
		now:      time.Now,
	}
}

// WithClock replaces the clock used for ComputedAt.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Config returns the variation config in effect: the stored document applied
// over the defaults. A missing document is not an error.
func (r *Resolver) Config(ctx context.Context) (domain.VariationConfig, error) {
	if cfg, ok := r.cache.Get(ctx); ok {
		return cfg, nil
	}
	if r.configs == nil {
		return r.defaults, nil
	}
	raw, err := r.configs.Get(ctx, domain.ConfigKeyVariation)
	if errors.Is(err, domain.ErrNotFound) {
		r.cache.Set(ctx, r.defaults)
		return r.defaults, nil
	}
	if err != nil {
		return r.defaults, err
	}
	doc, err := jsoncfg.DecodeVariation(raw)
	if err != nil {
		return r.defaults, err
	}
	cfg := doc.Apply(r.defaults)
	r.cache.Set(ctx, cfg)
	return cfg, nil
}

// Invalidate drops the cached variation config.
func (r *Resolver) Invalidate(ctx context.Context) {
	r.cache.Invalidate(ctx)
}

// GetEffectiveRules reads the config and the last HistoryWindow entries and
// computes the rules for this run.
func (r *Resolver) GetEffectiveRules(ctx context.Context) domain.EffectiveRules {
	now := r.now()
	cfg, cfgErr := r.Config(ctx)
	if cfgErr != nil {
		r.logger.Warn().Err(cfgErr).Msg("variation config unavailable; using defaults")
	}

	window := cfg.HistoryWindow()
	var history []domain.HistoryEntry
	if window > 0 {
		entries, err := r.history.Recent(ctx, window)
		if err != nil {
			r.logger.Warn().Err(err).Int("window", window).Msg("history unavailable; diversity rules fail open")
			return Open(cfg, now)
		}
		history = entries
	}

	rules := Compute(cfg, history, now)
	rules.Degraded = cfgErr != nil
	r.logger.Debug().
		Int("window", window).
		Int("history", len(history)).
		Bool("special_element", rules.IncludeSpecialElement).
		Interface("blocked", rules.Summary()).
		Msg("effective rules computed")
	return rules
}
