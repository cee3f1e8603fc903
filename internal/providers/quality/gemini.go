package quality

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/providers/genai"
	"contentgen/internal/providers/jsonpayload"
)

const evaluatorSystemPrompt = "You are a strict photo editor reviewing AI-edited food photographs for a bakery cafe's social media. " +
	"Judge realism, whether the product is faithful to the original, composition and appetite appeal. Respond only with JSON."

type modelVerdictPayload struct {
	Score      int      `json:"score"`
	Passed     *bool    `json:"passed"`
	Regenerate *bool    `json:"regenerate"`
	Issues     []string `json:"issues"`
	Hint       string   `json:"improvement_hint"`
}

// GeminiEvaluator scores images with the Gemini vision model.
type GeminiEvaluator struct {
	client *genai.Client
	cost   float64
	logger zerolog.Logger
}

func NewGeminiEvaluator(client *genai.Client, costPerEvaluation float64, logger zerolog.Logger) (*GeminiEvaluator, error) {
	if client == nil {
		return nil, errors.New("gemini client is required")
	}
	return &GeminiEvaluator{
		client: client,
		cost:   costPerEvaluation,
		logger: logger.With().Str("component", "quality").Logger(),
	}, nil
}

func (g *GeminiEvaluator) Evaluate(ctx context.Context, req EvaluateRequest) (Verdict, error) {
	if len(req.Image) == 0 {
		return Verdict{Provider: geminiProviderName}, fmt.Errorf("%w: no image to evaluate", domain.ErrInvalidInput)
	}
	temperature := 0.0
	res, err := g.client.GenerateText(ctx, genai.TextRequest{
		System:      evaluatorSystemPrompt,
		Prompt:      buildEvaluatePrompt(req),
		Images:      []genai.InlineImage{{MimeType: req.Format, Data: req.Image}},
		JSON:        true,
		Temperature: &temperature,
		RequestID:   req.RunID,
	})
	v := Verdict{Provider: geminiProviderName}
	if err == nil || res.Usage.Total() > 0 {
		v.Cost = g.cost
	}
	if err != nil {
		return v, err
	}

	payload, err := jsonpayload.Parse[modelVerdictPayload](res.Text)
	if err == nil && payload.Score == 0 {
		err = errors.New("missing score")
	}
	if err != nil {
		g.logger.Warn().Err(err).Str("run_id", req.RunID).Int("attempt", req.Attempt).Msg("unparsable quality verdict")
		return v, fmt.Errorf("%w: quality verdict: %v", domain.ErrInvalidResponse, err)
	}

	v.Score = clampScore(payload.Score)
	v.Passed = v.Score >= req.PassScore
	if payload.Passed != nil && !*payload.Passed {
		v.Passed = false
	}
	v.Regenerate = !v.Passed
	if payload.Regenerate != nil {
		v.Regenerate = *payload.Regenerate && !v.Passed
	}
	v.Feedback = strings.Join(payload.Issues, "; ")
	v.Hint = strings.TrimSpace(payload.Hint)
	if v.Hint == "" && v.Regenerate && v.Feedback != "" {
		v.Hint = "Fix: " + v.Feedback
	}
	return v, nil
}

func buildEvaluatePrompt(req EvaluateRequest) string {
	sb := &strings.Builder{}
	sb.WriteString("Score the attached image from 1 to 10. Respond strictly with JSON matching this schema: ")
	sb.WriteString(`{"score":int,"passed":bool,"regenerate":bool,"issues":string[],"improvement_hint":string}`)
	fmt.Fprintf(sb, ". An image passes at %d or above. ", req.PassScore)
	fmt.Fprintf(sb, "Expected scenario: %s (%s). ", req.Scenario.Name, req.Scenario.Description)
	if req.Product.ID != "" {
		fmt.Fprintf(sb, "The product is %s. ", firstNonEmpty(req.Product.Name, req.Product.ID))
	}
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		fmt.Fprintf(sb, "The image was generated from this prompt: %s", prompt)
	}
	return sb.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ Evaluator = (*GeminiEvaluator)(nil)
