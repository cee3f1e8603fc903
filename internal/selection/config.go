// Package selection implements the asset selection rule engine: pre-filter,
// scoring, threshold qualification and post-selection validation, with every
// phase written to the run's audit trail.
package selection

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"contentgen/internal/cache"
	"contentgen/internal/domain"
	"contentgen/internal/domain/jsoncfg"
)

// Weights scales each scoring factor. Scores are normalised by the weight sum.
type Weights struct {
	TagOverlap    float64 `json:"tag_overlap"`
	Usage         float64 `json:"usage"`
	Mood          float64 `json:"mood"`
	TimeOfDay     float64 `json:"time_of_day"`
	ProductCompat float64 `json:"product_compat"`
}

func (w Weights) sum() float64 {
	return w.TagOverlap + w.Usage + w.Mood + w.TimeOfDay + w.ProductCompat
}

// TieBreakKey orders assets with equal scores.
type TieBreakKey string

const (
	TieBreakUsage      TieBreakKey = "usage"
	TieBreakLastUsed   TieBreakKey = "last_used"
	TieBreakInputOrder TieBreakKey = "input_order"
	TieBreakID         TieBreakKey = "id"
)

// Config drives the engine. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	Weights                Weights                       `json:"weights"`
	DefaultThreshold       float64                       `json:"default_threshold"`
	Thresholds             map[domain.Role]float64       `json:"thresholds"`
	Required               []domain.Role                 `json:"required"`
	FallbackToHighestScore bool                          `json:"fallback_to_highest_score"`
	FallbackToRandom       bool                          `json:"fallback_to_random"`
	StrictBlocking         bool                          `json:"strict_blocking"`
	TieBreak               []TieBreakKey                 `json:"tie_break"`
	Compatibility          map[domain.Role][]string      `json:"compatibility,omitempty"`
	ProductMatrix          map[string]map[string]float64 `json:"product_matrix,omitempty"`
}

// DefaultConfig is used when no selection document is stored.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			TagOverlap:    0.3,
			Usage:         0.2,
			Mood:          0.15,
			TimeOfDay:     0.15,
			ProductCompat: 0.2,
		},
		DefaultThreshold: 0.3,
		Thresholds: map[domain.Role]float64{
			domain.RoleProduct:  0.35,
			domain.RoleInterior: 0.2,
			domain.RoleProp:     0.2,
		},
		Required:               []domain.Role{domain.RoleProduct},
		FallbackToHighestScore: true,
		FallbackToRandom:       false,
		StrictBlocking:         true,
		TieBreak:               []TieBreakKey{TieBreakUsage, TieBreakInputOrder},
	}
}

// Threshold returns the qualification minimum for role.
func (c Config) Threshold(role domain.Role) float64 {
	if v, ok := c.Thresholds[role]; ok {
		return v
	}
	return c.DefaultThreshold
}

// IsRequired reports whether role must be filled.
func (c Config) IsRequired(role domain.Role) bool {
	for _, r := range c.Required {
		if r == role {
			return true
		}
	}
	return false
}

// ConfigFromDoc applies a stored document over the defaults.
func ConfigFromDoc(doc jsoncfg.SelectionDoc) Config {
	cfg := DefaultConfig()
	if w := doc.Weights; w != nil {
		cfg.Weights = Weights{
			TagOverlap:    w.TagOverlap,
			Usage:         w.Usage,
			Mood:          w.Mood,
			TimeOfDay:     w.TimeOfDay,
			ProductCompat: w.ProductCompat,
		}
	}
	if doc.DefaultThreshold != nil {
		cfg.DefaultThreshold = *doc.DefaultThreshold
	}
	for role, v := range doc.Thresholds {
		cfg.Thresholds[domain.Role(role)] = v
	}
	if doc.Required != nil {
		cfg.Required = make([]domain.Role, 0, len(doc.Required))
		for _, r := range doc.Required {
			cfg.Required = append(cfg.Required, domain.Role(r))
		}
	}
	if doc.FallbackToHighestScore != nil {
		cfg.FallbackToHighestScore = *doc.FallbackToHighestScore
	}
	if doc.FallbackToRandom != nil {
		cfg.FallbackToRandom = *doc.FallbackToRandom
	}
	if doc.StrictBlocking != nil {
		cfg.StrictBlocking = *doc.StrictBlocking
	}
	if doc.TieBreak != nil {
		cfg.TieBreak = make([]TieBreakKey, 0, len(doc.TieBreak))
		for _, k := range doc.TieBreak {
			cfg.TieBreak = append(cfg.TieBreak, TieBreakKey(k))
		}
	}
	if len(doc.Compatibility) > 0 {
		cfg.Compatibility = make(map[domain.Role][]string, len(doc.Compatibility))
		for role, exprs := range doc.Compatibility {
			cfg.Compatibility[domain.Role(role)] = append([]string(nil), exprs...)
		}
	}
	if len(doc.ProductMatrix) > 0 {
		cfg.ProductMatrix = doc.ProductMatrix
	}
	return cfg
}

// ConfigSource loads the selection config from the config store through an
// explicit cache.
type ConfigSource struct {
	configs domain.ConfigRepository
	cache   cache.Cache[Config]
	logger  zerolog.Logger
}

// NewConfigSource builds a source. configs may be nil to always use the
// defaults; a nil cache disables caching.
func NewConfigSource(configs domain.ConfigRepository, c cache.Cache[Config], logger zerolog.Logger) *ConfigSource {
	if c == nil {
		c = cache.Nop[Config]{}
	}
	return &ConfigSource{configs: configs, cache: c, logger: logger.With().Str("component", "selection_config").Logger()}
}

// Load returns the stored config, or the defaults when it is missing or
// unreadable. Read failures are logged and reported as a warning string.
func (s *ConfigSource) Load(ctx context.Context) (Config, string) {
	if cfg, ok := s.cache.Get(ctx); ok {
		return cfg, ""
	}
	if s.configs == nil {
		return DefaultConfig(), ""
	}
	raw, err := s.configs.Get(ctx, domain.ConfigKeySelection)
	if errors.Is(err, domain.ErrNotFound) {
		cfg := DefaultConfig()
		s.cache.Set(ctx, cfg)
		return cfg, ""
	}
	if err == nil {
		var doc jsoncfg.SelectionDoc
		if doc, err = jsoncfg.DecodeSelection(raw); err == nil {
			cfg := ConfigFromDoc(doc)
			s.cache.Set(ctx, cfg)
			return cfg, ""
		}
	}
	s.logger.Warn().Err(err).Msg("selection config unavailable; using defaults")
	return DefaultConfig(), fmt.Sprintf("selection config unavailable, defaults used: %v", err)
}

// Invalidate drops the cached config.
func (s *ConfigSource) Invalidate(ctx context.Context) {
	s.cache.Invalidate(ctx)
}
