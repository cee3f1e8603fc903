package selection

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

// roleOrder fixes the processing order; products come first so dependent
// roles can be checked against the anchor product.
var roleOrder = []domain.Role{
	domain.RoleProduct,
	domain.RolePlate,
	domain.RoleCup,
	domain.RoleTable,
	domain.RoleInterior,
	domain.RoleProp,
}

// Prefilter drop reasons.
const (
	DropInactive       = "inactive"
	DropBlocked        = "blocked"
	DropPlateForbidden = "plate_forbidden"
	DropCompatibility  = "compatibility"
)

// Fallback policies.
const (
	FallbackHighestScore = "highest_score"
	FallbackRandom       = "random"
)

// PrefilterReport summarises phase one for a role.
type PrefilterReport struct {
	Input     int            `json:"input"`
	Remaining int            `json:"remaining"`
	Dropped   map[string]int `json:"dropped,omitempty"`
	// Relaxed is set when every eligible asset was blocked and the block set
	// was ignored for this role.
	Relaxed bool `json:"relaxed,omitempty"`
}

// PrepareInput is everything phases one to three need.
type PrepareInput struct {
	RunID   string
	Pools   map[domain.Role][]domain.Asset
	Rules   domain.EffectiveRules
	Context Context
	// Rand drives the random fallback. Nil seeds from RunID.
	Rand *rand.Rand
}

// Plan is the outcome of Prepare: the qualified candidates per role that are
// offered to the reasoning provider.
type Plan struct {
	RunID      string
	Config     Config
	Context    Context
	Anchor     *domain.Asset
	Candidates map[domain.Role][]ScoredAsset
	Scored     map[domain.Role][]ScoredAsset
	Prefilter  map[domain.Role]PrefilterReport
	Fallbacks  map[domain.Role]string
	Warnings   []string

	roles    []domain.Role
	required map[domain.Role]bool
	pools    map[domain.Role]map[string]domain.Asset
	rules    domain.EffectiveRules
	trail    *trail
}

// Roles returns the roles the plan covers in processing order.
func (p *Plan) Roles() []domain.Role { return append([]domain.Role(nil), p.roles...) }

// Required reports whether role must be filled.
func (p *Plan) Required(role domain.Role) bool { return p.required[role] }

// Default is the deterministic decision: the top candidate of each role.
func (p *Plan) Default() map[domain.Role]string {
	out := make(map[domain.Role]string, len(p.roles))
	for _, role := range p.roles {
		if c := p.Candidates[role]; len(c) > 0 {
			out[role] = c[0].ID
		}
	}
	return out
}

func (p *Plan) candidate(role domain.Role, id string) (ScoredAsset, bool) {
	for _, c := range p.Candidates[role] {
		if c.ID == id {
			return c, true
		}
	}
	return ScoredAsset{}, false
}

func (p *Plan) scoreOf(role domain.Role, id string) float64 {
	for _, c := range p.Scored[role] {
		if c.ID == id {
			return c.Score
		}
	}
	return 0
}

// Engine runs the selection phases.
type Engine struct {
	configs *ConfigSource
	audit   domain.AuditRepository
	preds   *predicates
	logger  zerolog.Logger
	now     func() time.Time
}

// NewEngine builds an engine. audit may be nil.
func NewEngine(configs *ConfigSource, audit domain.AuditRepository, logger zerolog.Logger) (*Engine, error) {
	preds, err := newPredicates()
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = NewConfigSource(nil, nil, logger)
	}
	return &Engine{
		configs: configs,
		audit:   audit,
		preds:   preds,
		logger:  logger.With().Str("component", "selection").Logger(),
		now:     time.Now,
	}, nil
}

// Invalidate drops the cached selection config.
func (e *Engine) Invalidate(ctx context.Context) { e.configs.Invalidate(ctx) }

// SeedFor derives a stable random seed from a run or slot identifier.
func SeedFor(id string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return int64(h.Sum64() & 0x7fffffffffffffff)
}

// Prepare pre-filters, scores and qualifies every pool. A required role with
// nothing to offer fails with domain.ErrCategoryUnfilled.
func (e *Engine) Prepare(ctx context.Context, in PrepareInput) (*Plan, error) {
	cfg, warning := e.configs.Load(ctx)
	if err := e.preds.Check(cfg.Compatibility); err != nil {
		e.logger.Warn().Err(err).Msg("compatibility predicates invalid; ignoring them")
		warning = joinWarning(warning, fmt.Sprintf("compatibility predicates ignored: %v", err))
		cfg.Compatibility = nil
	}
	rng := in.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(SeedFor(in.RunID)))
	}

	plan := &Plan{
		RunID:      in.RunID,
		Config:     cfg,
		Context:    in.Context,
		Candidates: map[domain.Role][]ScoredAsset{},
		Scored:     map[domain.Role][]ScoredAsset{},
		Prefilter:  map[domain.Role]PrefilterReport{},
		Fallbacks:  map[domain.Role]string{},
		required:   map[domain.Role]bool{},
		pools:      map[domain.Role]map[string]domain.Asset{},
		rules:      in.Rules,
		trail:      &trail{runID: in.RunID, now: e.now},
	}
	if warning != "" {
		plan.Warnings = append(plan.Warnings, warning)
	}
	defer plan.trail.flush(ctx, e.audit, e.logger)

	for _, role := range roleOrder {
		pool, present := in.Pools[role]
		required := cfg.IsRequired(role)
		if role == domain.RolePlate && plan.Anchor != nil {
			switch {
			case plan.Anchor.NeedsPlate():
				required = true
			case plan.Anchor.ForbidsPlate():
				required = false
			}
		}
		if !present && !required {
			continue
		}
		plan.roles = append(plan.roles, role)
		plan.required[role] = required

		byID := make(map[string]domain.Asset, len(pool))
		for _, a := range pool {
			byID[a.ID] = a
		}
		plan.pools[role] = byID

		kept, report := e.prefilter(cfg, role, pool, in.Rules, plan.Anchor)
		plan.Prefilter[role] = report
		anchorID := ""
		if plan.Anchor != nil && role != domain.RoleProduct {
			anchorID = plan.Anchor.ID
		}
		plan.trail.add(domain.AuditPrefilter, role, prefilterPayload{
			Input: report.Input, Remaining: report.Remaining, Dropped: report.Dropped, Relaxed: report.Relaxed, Anchor: anchorID,
		})
		if report.Relaxed {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("%s: every candidate blocked by diversity rules; block set ignored", role))
		}

		scored := score(cfg, role, kept, in.Context, plan.Anchor)
		rank(scored, cfg.TieBreak)
		plan.Scored[role] = scored
		plan.trail.add(domain.AuditScoring, role, scoringPayload{Scored: scored})

		threshold := cfg.Threshold(role)
		var qualified []ScoredAsset
		for _, s := range scored {
			if s.Score >= threshold {
				qualified = append(qualified, s)
			}
		}
		plan.trail.add(domain.AuditQualify, role, qualifyPayload{Threshold: threshold, Qualified: ids(qualified)})

		if len(qualified) == 0 && required {
			pick, policy, err := fallback(cfg, scored, rng)
			if err != nil {
				return plan, fmt.Errorf("%s: %w", role, err)
			}
			qualified = []ScoredAsset{pick}
			plan.Fallbacks[role] = policy
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("%s: no asset met threshold %.2f; %s fallback chose %s", role, threshold, policy, pick.ID))
			plan.trail.add(domain.AuditFallback, role, fallbackPayload{Policy: policy, Asset: pick.ID, Reason: "no qualified asset"})
			e.logger.Warn().
				Str("run_id", in.RunID).
				Str("role", string(role)).
				Str("policy", policy).
				Str("asset_id", pick.ID).
				Float64("threshold", threshold).
				Msg("selection fallback")
		}
		plan.Candidates[role] = qualified

		if role == domain.RoleProduct && len(qualified) > 0 {
			anchor := qualified[0].Asset
			plan.Anchor = &anchor
		}
	}
	return plan, nil
}

func (e *Engine) prefilter(cfg Config, role domain.Role, pool []domain.Asset, rules domain.EffectiveRules, anchor *domain.Asset) ([]indexed, PrefilterReport) {
	report := PrefilterReport{Input: len(pool), Dropped: map[string]int{}}
	dim, tracked := domain.DimensionForRole(role)

	var eligible, kept []indexed
	blocked := 0
	for i, a := range pool {
		switch {
		case !a.Active:
			report.Dropped[DropInactive]++
			continue
		case role == domain.RolePlate && anchor != nil && anchor.ForbidsPlate():
			report.Dropped[DropPlateForbidden]++
			continue
		}
		product := anchor
		if role == domain.RoleProduct {
			product = nil
		}
		failed, err := e.preds.Eval(cfg.Compatibility[role], a, product)
		if err != nil {
			e.logger.Debug().Err(err).Str("asset_id", a.ID).Msg("compatibility predicate errored")
		}
		if failed != "" {
			report.Dropped[DropCompatibility]++
			continue
		}
		item := indexed{asset: a, index: i}
		eligible = append(eligible, item)
		if tracked && rules.IsBlocked(dim, a.ID) {
			blocked++
			continue
		}
		kept = append(kept, item)
	}
	if len(kept) == 0 && len(eligible) > 0 {
		kept = eligible
		report.Relaxed = true
	} else if blocked > 0 {
		report.Dropped[DropBlocked] = blocked
	}
	report.Remaining = len(kept)
	if len(report.Dropped) == 0 {
		report.Dropped = nil
	}
	return kept, report
}

// fallback picks one asset for a required role that has no qualified
// candidates. scored is the ranked, pre-filtered pool.
func fallback(cfg Config, scored []ScoredAsset, rng *rand.Rand) (ScoredAsset, string, error) {
	if len(scored) == 0 {
		return ScoredAsset{}, "", domain.ErrCategoryUnfilled
	}
	switch {
	case cfg.FallbackToHighestScore:
		return scored[0], FallbackHighestScore, nil
	case cfg.FallbackToRandom:
		// uniform over the pre-filtered pool in input order
		byIndex := append([]ScoredAsset(nil), scored...)
		sort.Slice(byIndex, func(i, j int) bool { return byIndex[i].Index < byIndex[j].Index })
		return byIndex[rng.Intn(len(byIndex))], FallbackRandom, nil
	}
	return ScoredAsset{}, "", domain.ErrCategoryUnfilled
}

// indexed is a pool asset with its input position.
type indexed struct {
	asset domain.Asset
	index int
}

func ids(s []ScoredAsset) []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.ID
	}
	return out
}

func joinWarning(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
