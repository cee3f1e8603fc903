package selection

import (
	"context"
	"fmt"

	"contentgen/internal/domain"
)

// Violation rules reported by Validate.
const (
	RuleMissing        = "missing"
	RuleUnknownAsset   = "unknown_asset"
	RuleBlocked        = "blocked"
	RuleNotQualified   = "not_qualified"
	RulePlateForbidden = "plate_forbidden"
	RulePlateRequired  = "plate_required"
	RuleCompatibility  = "compatibility"
)

// Selection is the validated outcome of asset selection.
type Selection struct {
	Assets     map[domain.Role]domain.Asset
	Refs       map[domain.Role]domain.AssetRef
	Violations []domain.Violation
}

// Product returns the selected product, if any.
func (s *Selection) Product() (domain.Asset, bool) {
	a, ok := s.Assets[domain.RoleProduct]
	return a, ok
}

// Validate re-checks an external decision against the plan. With strict
// blocking a violating pick is replaced by the best valid candidate; without
// it the violation is recorded and the pick kept. Picks that name no known
// asset, and missing picks for required roles, are always replaced.
func (e *Engine) Validate(ctx context.Context, plan *Plan, decision map[domain.Role]string) (*Selection, error) {
	defer plan.trail.flush(ctx, e.audit, e.logger)

	sel := &Selection{
		Assets: map[domain.Role]domain.Asset{},
		Refs:   map[domain.Role]domain.AssetRef{},
	}
	strict := plan.Config.StrictBlocking

	for _, role := range plan.roles {
		if err := e.validateRole(plan, sel, role, decision[role], strict); err != nil {
			return sel, err
		}
		if role == domain.RoleProduct && strict {
			e.ensurePlateable(plan, sel)
		}
	}

	for _, v := range sel.Violations {
		plan.trail.add(domain.AuditValidation, v.Role, v)
		e.logger.Warn().
			Str("run_id", plan.RunID).
			Str("role", string(v.Role)).
			Str("asset_id", v.AssetID).
			Str("rule", v.Rule).
			Bool("corrected", v.Corrected).
			Str("replacement", v.Replacement).
			Msg("selection violation")
	}
	selected := make(map[domain.Role]string, len(sel.Assets))
	for role, a := range sel.Assets {
		selected[role] = a.ID
	}
	plan.trail.add(domain.AuditFinal, "", finalPayload{Decision: decision, Selected: selected, Violations: len(sel.Violations)})
	return sel, nil
}

// validateRole checks the pick for one role and records it on sel.
func (e *Engine) validateRole(plan *Plan, sel *Selection, role domain.Role, id string, strict bool) error {
	var product *domain.Asset
	if role != domain.RoleProduct {
		if p, ok := sel.Assets[domain.RoleProduct]; ok {
			product = &p
		}
	}

	if id == "" {
		if role == domain.RolePlate && product != nil && product.NeedsPlate() {
			return e.fill(plan, sel, role, product, RulePlateRequired, "product requires a plate", strict)
		}
		if plan.required[role] {
			return e.fill(plan, sel, role, product, RuleMissing, "no selection returned", true)
		}
		return nil
	}

	asset, known := plan.pools[role][id]
	rule, detail := e.check(plan, role, id, known, asset, product)
	switch {
	case rule == "":
		sel.put(plan, role, asset)
		return nil
	case !known:
		return e.fill(plan, sel, role, product, rule, detail, true)
	case strict:
		return e.fill(plan, sel, role, product, rule, detail, true, id)
	}
	sel.Violations = append(sel.Violations, domain.Violation{Role: role, AssetID: id, Rule: rule, Detail: detail})
	sel.put(plan, role, asset)
	return nil
}

// ensurePlateable swaps a selected product that needs a plate for the best
// candidate whose plate constraint can be met. Plates were prefiltered against
// the anchor product, so a different pick may have no plate left to pair with.
func (e *Engine) ensurePlateable(plan *Plan, sel *Selection) {
	chosen, ok := sel.Assets[domain.RoleProduct]
	if !ok || e.plateable(plan, chosen) {
		return
	}
	v := domain.Violation{
		Role:    domain.RoleProduct,
		AssetID: chosen.ID,
		Rule:    RulePlateRequired,
		Detail:  fmt.Sprintf("no valid plate for product %s", chosen.ID),
	}
	for _, c := range plan.Candidates[domain.RoleProduct] {
		if c.ID == chosen.ID || !e.plateable(plan, c.Asset) {
			continue
		}
		v.Corrected = true
		v.Replacement = c.ID
		sel.put(plan, domain.RoleProduct, c.Asset)
		break
	}
	sel.Violations = append(sel.Violations, v)
}

// plateable reports whether product can be served with the candidate plates.
func (e *Engine) plateable(plan *Plan, product domain.Asset) bool {
	if !product.NeedsPlate() {
		return true
	}
	for _, c := range plan.Candidates[domain.RolePlate] {
		if r, _ := e.check(plan, domain.RolePlate, c.ID, true, c.Asset, &product); r == "" {
			return true
		}
	}
	return false
}

// check returns the first hard constraint the pick breaks.
func (e *Engine) check(plan *Plan, role domain.Role, id string, known bool, asset domain.Asset, product *domain.Asset) (string, string) {
	if !known {
		return RuleUnknownAsset, fmt.Sprintf("%s is not in the %s pool", id, role)
	}
	if _, ok := plan.candidate(role, id); !ok {
		if dim, tracked := domain.DimensionForRole(role); tracked && plan.rules.IsBlocked(dim, id) && !plan.Prefilter[role].Relaxed {
			return RuleBlocked, fmt.Sprintf("%s was used within the %s gap", id, dim)
		}
		return RuleNotQualified, fmt.Sprintf("%s is not a qualified %s candidate", id, role)
	}
	if role == domain.RolePlate && product != nil && product.ForbidsPlate() {
		return RulePlateForbidden, fmt.Sprintf("product %s is served without a plate", product.ID)
	}
	if product != nil {
		failed, err := e.preds.Eval(plan.Config.Compatibility[role], asset, product)
		if err != nil || failed != "" {
			return RuleCompatibility, fmt.Sprintf("fails %q with product %s", failed, product.ID)
		}
	}
	return "", ""
}

// fill records a violation and, when correct is set, substitutes the best
// valid candidate other than exclude. A required role with no valid candidate
// fails with domain.ErrCategoryUnfilled.
func (e *Engine) fill(plan *Plan, sel *Selection, role domain.Role, product *domain.Asset, rule, detail string, correct bool, exclude ...string) error {
	v := domain.Violation{Role: role, Rule: rule, Detail: detail}
	if len(exclude) > 0 {
		v.AssetID = exclude[0]
	}
	if !correct {
		sel.Violations = append(sel.Violations, v)
		return nil
	}

	skip := map[string]bool{}
	for _, id := range exclude {
		skip[id] = true
	}
	for _, c := range plan.Candidates[role] {
		if skip[c.ID] {
			continue
		}
		if r, _ := e.check(plan, role, c.ID, true, c.Asset, product); r != "" {
			continue
		}
		v.Corrected = true
		v.Replacement = c.ID
		sel.Violations = append(sel.Violations, v)
		sel.put(plan, role, c.Asset)
		return nil
	}

	// nothing valid to substitute: the role stays empty, which only corrects
	// a plate picked for a product served without one
	dropped := role == domain.RolePlate && product != nil && product.ForbidsPlate()
	v.Corrected = dropped && v.AssetID != ""
	sel.Violations = append(sel.Violations, v)
	needed := plan.required[role] || (role == domain.RolePlate && product != nil && product.NeedsPlate())
	if needed && !dropped {
		return fmt.Errorf("%s: %w", role, domain.ErrCategoryUnfilled)
	}
	return nil
}

func (s *Selection) put(plan *Plan, role domain.Role, asset domain.Asset) {
	s.Assets[role] = asset
	s.Refs[role] = asset.Ref(plan.scoreOf(role, asset.ID))
}
