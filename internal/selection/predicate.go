package selection

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"contentgen/internal/domain"
)

// predicates compiles and caches compatibility expressions. Each expression
// sees two variables, asset (the candidate) and product (the product the
// candidate is being paired with; empty fields when none is known yet), and
// must evaluate to a bool.
type predicates struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

func newPredicates() (*predicates, error) {
	env, err := cel.NewEnv(
		cel.Variable("asset", cel.DynType),
		cel.Variable("product", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}
	return &predicates{env: env, programs: map[string]cel.Program{}}, nil
}

func (p *predicates) program(expr string) (cel.Program, error) {
	p.mu.RLock()
	prog, ok := p.programs[expr]
	p.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := p.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	prog, err := p.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(100000),
	)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}

	p.mu.Lock()
	p.programs[expr] = prog
	p.mu.Unlock()
	return prog, nil
}

// Check compiles every expression so a bad config is rejected up front.
func (p *predicates) Check(compat map[domain.Role][]string) error {
	for role, exprs := range compat {
		for _, expr := range exprs {
			if _, err := p.program(expr); err != nil {
				return fmt.Errorf("compatibility.%s: %w", role, err)
			}
		}
	}
	return nil
}

// Eval returns the first expression the candidate fails, or "" when all pass.
// Errors and non-bool results count as failures.
func (p *predicates) Eval(exprs []string, candidate domain.Asset, product *domain.Asset) (string, error) {
	if len(exprs) == 0 {
		return "", nil
	}
	facts := map[string]any{
		"asset":   assetFacts(&candidate),
		"product": assetFacts(product),
	}
	for _, expr := range exprs {
		prog, err := p.program(expr)
		if err != nil {
			return expr, err
		}
		out, _, err := prog.Eval(facts)
		if err != nil {
			return expr, fmt.Errorf("evaluate %q: %w", expr, err)
		}
		if ok, isBool := out.Value().(bool); !isBool || !ok {
			return expr, nil
		}
	}
	return "", nil
}

func assetFacts(a *domain.Asset) map[string]any {
	if a == nil {
		a = &domain.Asset{}
	}
	plate := "unknown"
	switch {
	case a.NeedsPlate():
		plate = "required"
	case a.ForbidsPlate():
		plate = "forbidden"
	}
	return map[string]any{
		"id":            a.ID,
		"category":      a.Category,
		"subtype":       a.Subtype,
		"name":          a.Name,
		"tags":          stringList(a.Tags),
		"moods":         stringList(a.Moods),
		"time_slots":    stringList(a.TimeSlots),
		"usage_count":   int64(a.UsageCount),
		"eating_method": string(a.EatingMethod),
		"plate":         plate,
	}
}

func stringList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
