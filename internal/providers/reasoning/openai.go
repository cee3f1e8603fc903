package reasoning

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"contentgen/internal/domain"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	openAIDefaultTimeout = 60 * time.Second
)

type OpenAIOptions struct {
	APIKey      string
	Model       string
	BaseURL     string
	HTTPClient  *http.Client
	MaxRetries  int
	Temperature float64
	Pricing     Pricing
	Logger      zerolog.Logger
}

// OpenAIProvider talks to the Chat Completions API, or any compatible
// endpoint reachable through BaseURL.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature float64
	pricing     Pricing
	logger      zerolog.Logger
}

func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: openAIDefaultTimeout}
	}
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(opts.MaxRetries),
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"); baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL+"/"))
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 0.4
	}
	return &OpenAIProvider{
		client:      openai.NewClient(reqOpts...),
		model:       coalesce(opts.Model, defaultOpenAIModel),
		temperature: temperature,
		pricing:     opts.Pricing,
		logger:      opts.Logger.With().Str("component", "reasoning").Str("provider", openAIProviderName).Logger(),
	}, nil
}

func (p *OpenAIProvider) Name() string {
	return openAIProviderName
}

func (p *OpenAIProvider) Select(ctx context.Context, req SelectRequest) (Decision, error) {
	text, tokens, cost, err := p.complete(ctx, selectSystemPrompt, buildSelectPrompt(req))
	if err != nil {
		return Decision{Provider: openAIProviderName, Tokens: tokens, Cost: cost}, err
	}
	decision, err := decodeDecision(text, req)
	decision.Provider, decision.Tokens, decision.Cost = openAIProviderName, tokens, cost
	if err != nil {
		p.logger.Warn().Err(err).Str("run_id", req.RunID).Msg("unparsable selection response")
	}
	return decision, err
}

func (p *OpenAIProvider) Compose(ctx context.Context, req ComposeRequest) (Composition, error) {
	text, tokens, cost, err := p.complete(ctx, composeSystemPrompt, buildComposePrompt(req))
	if err != nil {
		return Composition{Provider: openAIProviderName, Tokens: tokens, Cost: cost}, err
	}
	comp, err := decodeComposition(text)
	comp.Provider, comp.Tokens, comp.Cost = openAIProviderName, tokens, cost
	if err != nil {
		p.logger.Warn().Err(err).Str("run_id", req.RunID).Msg("unparsable compose response")
	}
	return comp, err
}

func (p *OpenAIProvider) complete(ctx context.Context, system, user string) (string, int, float64, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature:         openai.Float(p.temperature),
		MaxCompletionTokens: openai.Int(1024),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", 0, 0, ctxErr
		}
		return "", 0, 0, fmt.Errorf("%w: openai: %v", domain.ErrProviderFailure, err)
	}
	in, out := int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens)
	cost := p.pricing.Cost(in, out)
	if len(resp.Choices) == 0 {
		return "", in + out, cost, fmt.Errorf("%w: openai returned no choices", domain.ErrInvalidResponse)
	}
	p.logger.Debug().Str("model", p.model).Int("tokens", in+out).Msg("chat completion")
	return resp.Choices[0].Message.Content, in + out, cost, nil
}
