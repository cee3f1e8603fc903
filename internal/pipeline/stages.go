package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"contentgen/internal/domain"
	"contentgen/internal/providers/quality"
	"contentgen/internal/providers/reasoning"
	"contentgen/internal/selection"
)

const (
	groupScenario  = "scenario"
	groupHandStyle = "hand_style"
)

func (r *run) selectAssets(ctx context.Context) error {
	r.loadContext(ctx)

	r.snapshot = r.o.opts.Catalog.Snapshot(ctx)
	for _, w := range r.snapshot.Warnings() {
		r.warn("%s", w)
	}

	assets, err := r.o.opts.Assets.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}
	pools, unknown := r.snapshot.Partition(assets)
	for _, w := range unknown {
		r.warn("%s", w)
	}

	r.rules = r.o.opts.Diversity.GetEffectiveRules(ctx)
	r.result.Rules = r.rules.Summary()
	r.result.SpecialElement = r.rules.IncludeSpecialElement
	if r.rules.Degraded {
		r.warn("production history unavailable; diversity rules not applied")
	}

	plan, err := r.o.opts.Engine.Prepare(ctx, selection.PrepareInput{
		RunID:   r.result.RunID,
		Pools:   pools,
		Rules:   r.rules,
		Context: r.sctx,
		Rand:    r.rng,
	})
	if plan != nil {
		for _, w := range plan.Warnings {
			r.warn("%s", w)
		}
	}
	if err != nil {
		return err
	}
	r.roles = plan.Roles()

	decision := plan.Default()
	if groups := assetGroups(plan); len(groups) > 0 {
		d, err := r.o.opts.Reasoning.Select(ctx, reasoning.SelectRequest{
			RunID:   r.result.RunID,
			Purpose: "choose one asset per category for the next post",
			Context: r.reasoningContext(),
			Groups:  groups,
			Notes:   assetNotes(plan),
		})
		r.addCost(domain.StageAssetSelection, r.reasoningName(d.Provider), 0, d.Cost, d.Tokens, err)
		if err != nil {
			r.warn("asset reasoning failed, using top-scored candidates: %v", err)
		} else {
			for _, role := range r.roles {
				if id, ok := d.Choices[string(role)]; ok {
					decision[role] = id
				}
			}
			r.result.Reasoning[domain.StageAssetSelection] = d.Reasoning
		}
	}

	sel, err := r.o.opts.Engine.Validate(ctx, plan, decision)
	if sel != nil {
		r.result.Violations = sel.Violations
	}
	if err != nil {
		return err
	}
	r.selected = sel.Assets
	r.result.Assets = sel.Refs
	return nil
}

// loadContext reads the creative context from the slot's rule. A missing rule
// is not fatal: the run proceeds with an empty context.
func (r *run) loadContext(ctx context.Context) {
	if r.o.opts.Rules == nil || r.slot.RuleID == "" {
		return
	}
	rule, err := r.o.opts.Rules.GetByID(ctx, r.slot.RuleID)
	if err != nil {
		r.warn("rule %s unavailable, using an empty context: %v", r.slot.RuleID, err)
		return
	}
	r.sctx = selection.Context{
		TimeSlot: rule.TimeSlot,
		Mood:     rule.Mood,
		Tags:     append([]string(nil), rule.Tags...),
	}
}

func (r *run) reasoningContext() reasoning.Context {
	return reasoning.Context{
		TimeSlot: r.sctx.TimeSlot,
		Mood:     r.sctx.Mood,
		Tags:     r.sctx.Tags,
	}
}

func assetGroups(plan *selection.Plan) []reasoning.Group {
	var groups []reasoning.Group
	for _, role := range plan.Roles() {
		candidates := plan.Candidates[role]
		if len(candidates) == 0 {
			continue
		}
		g := reasoning.Group{Key: string(role)}
		for _, c := range candidates {
			g.Options = append(g.Options, reasoning.Option{
				ID:    c.ID,
				Label: c.Asset.Name,
				Score: c.Score,
				Tags:  c.Asset.Tags,
			})
		}
		groups = append(groups, g)
	}
	return groups
}

func assetNotes(plan *selection.Plan) []string {
	var notes []string
	if plan.Anchor != nil {
		switch {
		case plan.Anchor.ForbidsPlate():
			notes = append(notes, fmt.Sprintf("product %s is served without a plate", plan.Anchor.ID))
		case plan.Anchor.NeedsPlate():
			notes = append(notes, fmt.Sprintf("product %s must be served on a plate", plan.Anchor.ID))
		}
	}
	for _, role := range plan.Roles() {
		if !plan.Required(role) {
			notes = append(notes, fmt.Sprintf("%s is optional", role))
		}
	}
	return notes
}

func (r *run) selectScenario(ctx context.Context) error {
	product, hasProduct := r.selected[domain.RoleProduct]
	_, hasInterior := r.selected[domain.RoleInterior]

	eligible := func(respectBlocks bool) []domain.Scenario {
		var out []domain.Scenario
		for _, sc := range r.snapshot.Scenarios() {
			if !sc.Active {
				continue
			}
			if respectBlocks && r.rules.IsBlocked(domain.DimensionScenario, sc.ID) {
				continue
			}
			if respectBlocks && sc.CompositionID != "" && r.rules.IsBlocked(domain.DimensionComposition, sc.CompositionID) {
				continue
			}
			if hasProduct && !sc.AllowsProduct(product.Subtype) {
				continue
			}
			if !sc.FitsTimeSlot(r.sctx.TimeSlot) {
				continue
			}
			if sc.IsInterior && !hasInterior {
				continue
			}
			out = append(out, sc)
		}
		return out
	}
	candidates := eligible(true)
	if len(candidates) == 0 {
		candidates = eligible(false)
		if len(candidates) > 0 {
			r.warn("every eligible scenario blocked by diversity rules; block set ignored")
		}
	}
	if len(candidates) == 0 {
		return domain.ErrNoScenario
	}
	rankScenarios(candidates, r.sctx.Mood)

	handStyles := r.handStyleCandidates()
	groups := []reasoning.Group{scenarioGroup(candidates, r.sctx.Mood)}
	if len(handStyles) > 0 && anyIncludesHands(candidates) {
		groups = append(groups, handStyleGroup(handStyles))
	}

	chosenScenario, chosenHands := "", ""
	d, err := r.o.opts.Reasoning.Select(ctx, reasoning.SelectRequest{
		RunID:   r.result.RunID,
		Purpose: "choose the scenario for the next post",
		Context: r.reasoningContext(),
		Groups:  groups,
		Notes:   r.scenarioNotes(),
	})
	r.addCost(domain.StageScenarioSelection, r.reasoningName(d.Provider), 0, d.Cost, d.Tokens, err)
	if err != nil {
		r.warn("scenario reasoning failed, using fallback choice: %v", err)
	} else {
		chosenScenario, chosenHands = d.Choices[groupScenario], d.Choices[groupHandStyle]
		r.result.Reasoning[domain.StageScenarioSelection] = d.Reasoning
	}

	idx := indexOfScenario(candidates, chosenScenario)
	if idx < 0 {
		if chosenScenario != "" {
			r.warn("reasoning chose ineligible scenario %q; using fallback choice", chosenScenario)
		}
		idx = r.fallbackIndex(len(candidates))
	}
	r.scenario = candidates[idx]
	sc := r.scenario
	r.result.Scenario = &sc

	if r.scenario.IncludesHands && len(handStyles) > 0 {
		hi := indexOfHandStyle(handStyles, chosenHands)
		if hi < 0 {
			hi = r.fallbackIndex(len(handStyles))
		}
		hs := handStyles[hi]
		r.handStyle = &hs
		r.result.HandStyle = &hs
	}

	if id := r.scenario.CompositionID; id != "" {
		if c, ok := r.snapshot.Composition(id); ok {
			r.composition = &c
		} else {
			r.warn("scenario %s references unknown composition %q", r.scenario.ID, id)
		}
	}

	if r.result.SpecialElement && !r.scenario.IsInterior {
		if se := r.snapshot.SpecialElement(); se.Name != "" {
			r.special = &se
		} else {
			r.warn("special element due but none configured")
			r.result.SpecialElement = false
		}
	}
	return nil
}

// handStyleCandidates returns the unblocked hand styles, or all of them when
// every one is blocked.
func (r *run) handStyleCandidates() []domain.HandStyle {
	all := r.snapshot.HandStyles()
	var out []domain.HandStyle
	for _, hs := range all {
		if !r.rules.IsBlocked(domain.DimensionHandStyle, hs.ID) {
			out = append(out, hs)
		}
	}
	if len(out) == 0 && len(all) > 0 {
		r.warn("every hand style blocked by diversity rules; block set ignored")
		return all
	}
	return out
}

func (r *run) scenarioNotes() []string {
	var notes []string
	if product, ok := r.selected[domain.RoleProduct]; ok {
		notes = append(notes, fmt.Sprintf("the product is %s (%s)", product.Name, product.Subtype))
		if product.EatingMethod != "" {
			notes = append(notes, fmt.Sprintf("the product is eaten by %s", product.EatingMethod))
		}
	}
	notes = append(notes, "interior scenarios reuse an existing photo; hand styles only apply to scenarios with hands")
	return notes
}

// fallbackIndex picks the top candidate, or a random one when a seed is
// configured.
func (r *run) fallbackIndex(n int) int {
	if r.o.opts.Seed != 0 && n > 1 {
		return r.rng.Intn(n)
	}
	return 0
}

func scenarioScore(sc domain.Scenario, mood string) float64 {
	if mood == "" || len(sc.Moods) == 0 {
		return 0.5
	}
	for _, m := range sc.Moods {
		if strings.EqualFold(m, mood) {
			return 1
		}
	}
	return 0
}

func rankScenarios(scenarios []domain.Scenario, mood string) {
	sort.SliceStable(scenarios, func(i, j int) bool {
		return scenarioScore(scenarios[i], mood) > scenarioScore(scenarios[j], mood)
	})
}

func scenarioGroup(scenarios []domain.Scenario, mood string) reasoning.Group {
	g := reasoning.Group{Key: groupScenario}
	for _, sc := range scenarios {
		tags := []string{}
		if sc.IncludesHands {
			tags = append(tags, "hands")
		}
		if sc.IsInterior {
			tags = append(tags, "interior")
		}
		g.Options = append(g.Options, reasoning.Option{
			ID:    sc.ID,
			Label: sc.Name + ": " + sc.Description,
			Score: scenarioScore(sc, mood),
			Tags:  tags,
		})
	}
	return g
}

func handStyleGroup(styles []domain.HandStyle) reasoning.Group {
	g := reasoning.Group{Key: groupHandStyle}
	for _, hs := range styles {
		g.Options = append(g.Options, reasoning.Option{ID: hs.ID, Label: hs.Description, Score: 1})
	}
	return g
}

func anyIncludesHands(scenarios []domain.Scenario) bool {
	for _, sc := range scenarios {
		if sc.IncludesHands {
			return true
		}
	}
	return false
}

func indexOfScenario(scenarios []domain.Scenario, id string) int {
	for i, sc := range scenarios {
		if id != "" && sc.ID == id {
			return i
		}
	}
	return -1
}

func indexOfHandStyle(styles []domain.HandStyle, id string) int {
	for i, hs := range styles {
		if id != "" && hs.ID == id {
			return i
		}
	}
	return -1
}

// useInterior replaces the generation stages with the existing interior photo.
func (r *run) useInterior() {
	interior := r.selected[domain.RoleInterior]
	r.selected = map[domain.Role]domain.Asset{domain.RoleInterior: interior}
	r.result.Assets = map[domain.Role]domain.AssetRef{domain.RoleInterior: r.result.Assets[domain.RoleInterior]}
	r.result.SpecialElement = false
	r.result.SkippedStages = append(r.result.SkippedStages,
		domain.StagePromptOptimization, domain.StageImageGeneration, domain.StageQualityControl)
	r.result.Image = &domain.ImageRef{
		URL:           interior.ImageURL,
		StorageKey:    interior.StorageKey,
		SourceAssetID: interior.ID,
	}
	r.result.Quality = &domain.QualityResult{
		Passed:    true,
		Score:     quality.MaxScore,
		Feedback:  "existing interior photo",
		Synthetic: true,
	}
	r.logger.Info().Str("asset_id", interior.ID).Msg("interior scenario; generation skipped")
}

func (r *run) composeRequest() reasoning.ComposeRequest {
	return reasoning.ComposeRequest{
		RunID:          r.result.RunID,
		Scenario:       r.scenario,
		HandStyle:      r.handStyle,
		Composition:    r.composition,
		Assets:         r.result.Assets,
		SpecialElement: r.special,
		Context:        r.reasoningContext(),
		AspectRatio:    r.o.opts.AspectRatio,
	}
}

func (r *run) composePrompt(ctx context.Context) error {
	req := r.composeRequest()
	comp, err := r.o.opts.Reasoning.Compose(ctx, req)
	r.addCost(domain.StagePromptOptimization, r.reasoningName(comp.Provider), 0, comp.Cost, comp.Tokens, err)
	if err == nil && strings.TrimSpace(comp.Prompt) == "" {
		err = fmt.Errorf("%w: empty prompt", domain.ErrInvalidResponse)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		r.warn("prompt reasoning failed, using template prompt: %v", err)
		r.prompt = reasoning.TemplatePrompt(req)
	} else {
		r.prompt = strings.TrimSpace(comp.Prompt)
		r.result.Reasoning[domain.StagePromptOptimization] = comp.Reasoning
	}
	r.result.Prompt = r.prompt
	return nil
}
