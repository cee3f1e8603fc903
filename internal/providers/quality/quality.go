// Package quality judges generated images before they are sent for approval.
package quality

import (
	"context"

	"contentgen/internal/domain"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini-vision"

	MinScore = 1
	MaxScore = 10
)

// EvaluateRequest carries the image and what it was meant to show.
type EvaluateRequest struct {
	RunID    string
	Attempt  int
	Image    []byte
	Format   string
	Scenario domain.Scenario
	Product  domain.AssetRef
	Prompt   string
	// PassScore is the minimum score that passes.
	PassScore int
}

// Verdict is the evaluator's judgement. Cost is set whenever the provider
// billed the call, including when it returned an error.
type Verdict struct {
	Passed     bool
	Score      int
	Regenerate bool
	Hint       string
	Feedback   string
	Provider   string
	Cost       float64
}

// Evaluator is the contract implemented by quality providers.
type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluateRequest) (Verdict, error)
}

func clampScore(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
