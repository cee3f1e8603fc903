package reasoning

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"contentgen/internal/providers/genai"
)

type GeminiOptions struct {
	Client      *genai.Client
	Temperature float64
	Pricing     Pricing
	Logger      zerolog.Logger
}

// GeminiProvider runs selection and prompt writing on the Gemini text model.
type GeminiProvider struct {
	client      *genai.Client
	temperature float64
	pricing     Pricing
	logger      zerolog.Logger
}

func NewGeminiProvider(opts GeminiOptions) (*GeminiProvider, error) {
	if opts.Client == nil {
		return nil, errors.New("gemini client is required")
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.4
	}
	return &GeminiProvider{
		client:      opts.Client,
		temperature: temperature,
		pricing:     opts.Pricing,
		logger:      opts.Logger.With().Str("component", "reasoning").Str("provider", geminiProviderName).Logger(),
	}, nil
}

func (p *GeminiProvider) Name() string {
	return geminiProviderName
}

func (p *GeminiProvider) Select(ctx context.Context, req SelectRequest) (Decision, error) {
	res, err := p.generate(ctx, req.RunID, selectSystemPrompt, buildSelectPrompt(req))
	tokens, cost := res.Usage.Total(), p.pricing.Cost(res.Usage.InputTokens, res.Usage.OutputTokens)
	if err != nil {
		return Decision{Provider: geminiProviderName, Tokens: tokens, Cost: cost}, err
	}
	decision, err := decodeDecision(res.Text, req)
	decision.Provider, decision.Tokens, decision.Cost = geminiProviderName, tokens, cost
	if err != nil {
		p.logger.Warn().Err(err).Str("run_id", req.RunID).Msg("unparsable selection response")
	}
	return decision, err
}

func (p *GeminiProvider) Compose(ctx context.Context, req ComposeRequest) (Composition, error) {
	res, err := p.generate(ctx, req.RunID, composeSystemPrompt, buildComposePrompt(req))
	tokens, cost := res.Usage.Total(), p.pricing.Cost(res.Usage.InputTokens, res.Usage.OutputTokens)
	if err != nil {
		return Composition{Provider: geminiProviderName, Tokens: tokens, Cost: cost}, err
	}
	comp, err := decodeComposition(res.Text)
	comp.Provider, comp.Tokens, comp.Cost = geminiProviderName, tokens, cost
	if err != nil {
		p.logger.Warn().Err(err).Str("run_id", req.RunID).Msg("unparsable compose response")
	}
	return comp, err
}

func (p *GeminiProvider) generate(ctx context.Context, runID, system, prompt string) (genai.TextResult, error) {
	temperature := p.temperature
	return p.client.GenerateText(ctx, genai.TextRequest{
		System:      system,
		Prompt:      prompt,
		JSON:        true,
		Temperature: &temperature,
		RequestID:   runID,
	})
}
