package reasoning

import "context"

// StaticProvider makes deterministic choices without a model: the best-scored
// option of every group and a template prompt. It costs nothing.
type StaticProvider struct{}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

func (s *StaticProvider) Name() string {
	return staticProviderName
}

func (s *StaticProvider) Select(ctx context.Context, req SelectRequest) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	choices := make(map[string]string, len(req.Groups))
	for _, g := range req.Groups {
		if len(g.Options) > 0 {
			choices[g.Key] = g.Options[0].ID
		}
	}
	return Decision{Choices: choices, Reasoning: "highest score per group", Provider: staticProviderName}, nil
}

func (s *StaticProvider) Compose(ctx context.Context, req ComposeRequest) (Composition, error) {
	if err := ctx.Err(); err != nil {
		return Composition{}, err
	}
	return Composition{Prompt: TemplatePrompt(req), Reasoning: "template", Provider: staticProviderName}, nil
}
