// Package reasoning wraps the language model that picks assets and scenarios
// and writes the image prompt.
package reasoning

import (
	"context"
	"sort"

	"contentgen/internal/domain"
)

const (
	staticProviderName = "static"
	geminiProviderName = "gemini"
	openAIProviderName = "openai"
)

// Provider is the reasoning collaborator used by the pipeline.
type Provider interface {
	Name() string
	Select(ctx context.Context, req SelectRequest) (Decision, error)
	Compose(ctx context.Context, req ComposeRequest) (Composition, error)
}

// Context is the creative context of the time window being produced.
type Context struct {
	TimeSlot string   `json:"time_slot,omitempty"`
	Mood     string   `json:"mood,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// Option is one candidate the model may choose within a group.
type Option struct {
	ID    string   `json:"id"`
	Label string   `json:"label,omitempty"`
	Score float64  `json:"score"`
	Tags  []string `json:"tags,omitempty"`
}

// Group is a set of options the model picks exactly one from, for example
// every qualified plate or every eligible scenario.
type Group struct {
	Key     string   `json:"key"`
	Options []Option `json:"options"`
}

// SelectRequest asks for one choice per group. Options are ordered by score,
// best first.
type SelectRequest struct {
	RunID   string
	Purpose string
	Context Context
	Groups  []Group
	Notes   []string
}

// Decision maps group keys to chosen option ids. Cost is set even when the
// call failed after the provider billed it.
type Decision struct {
	Choices   map[string]string
	Reasoning string
	Provider  string
	Tokens    int
	Cost      float64
}

// ComposeRequest carries everything the image prompt is written from.
type ComposeRequest struct {
	RunID          string
	Scenario       domain.Scenario
	HandStyle      *domain.HandStyle
	Composition    *domain.Composition
	Assets         map[domain.Role]domain.AssetRef
	SpecialElement *domain.SpecialElement
	Context        Context
	AspectRatio    string
	Hint           string
}

// Composition is the generated image prompt.
type Composition struct {
	Prompt    string
	Reasoning string
	Provider  string
	Tokens    int
	Cost      float64
}

// Pricing converts token usage into cost.
type Pricing struct {
	InputPerKTok  float64
	OutputPerKTok float64
}

func (p Pricing) Cost(inputTokens, outputTokens int) float64 {
	return float64(inputTokens)/1000*p.InputPerKTok + float64(outputTokens)/1000*p.OutputPerKTok
}

// sortedRoles returns the asset roles of req in a stable order.
func sortedRoles(assets map[domain.Role]domain.AssetRef) []domain.Role {
	roles := make([]domain.Role, 0, len(assets))
	for role := range assets {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}
