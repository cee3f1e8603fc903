package quality

import "context"

// StaticEvaluator returns a fixed score without looking at the image.
type StaticEvaluator struct {
	score int
}

// NewStaticEvaluator returns an evaluator that always scores score (clamped to
// 1..10; 0 means 8).
func NewStaticEvaluator(score int) *StaticEvaluator {
	if score == 0 {
		score = 8
	}
	return &StaticEvaluator{score: clampScore(score)}
}

func (s *StaticEvaluator) Evaluate(ctx context.Context, req EvaluateRequest) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	passed := s.score >= req.PassScore
	v := Verdict{
		Passed:     passed,
		Score:      s.score,
		Regenerate: !passed,
		Feedback:   "static evaluation",
		Provider:   staticProviderName,
	}
	if !passed {
		v.Hint = "Improve lighting and sharpen the product."
	}
	return v, nil
}

var _ Evaluator = (*StaticEvaluator)(nil)
