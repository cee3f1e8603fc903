package genai

import (
	"context"
	"fmt"
	"strings"

	"contentgen/internal/domain"
)

// TextRequest asks the text model for a completion, optionally grounded on
// inline images (vision).
type TextRequest struct {
	System      string
	Prompt      string
	Images      []InlineImage
	JSON        bool
	Temperature *float64
	RequestID   string
}

// TextResult is the concatenated text of the first candidate.
type TextResult struct {
	Text         string
	FinishReason string
	Usage        Usage
}

// GenerateText calls the text model. Usage is populated whenever the API
// answered, including when the answer is blocked or empty.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (TextResult, error) {
	if err := ctx.Err(); err != nil {
		return TextResult{}, err
	}
	if c.Offline() {
		return TextResult{}, ErrOffline
	}

	payload := wireRequest{
		Contents: userTurn(req.Images, req.Prompt),
		GenerationConfig: &wireGenerationConfig{
			CandidateCount: 1,
			Temperature:    req.Temperature,
		},
	}
	if req.JSON {
		payload.GenerationConfig.ResponseMimeType = "application/json"
	}
	if system := strings.TrimSpace(req.System); system != "" {
		payload.SystemInstruction = &wireContent{Parts: []wirePart{{Text: system}}}
	}

	resp, err := c.generate(ctx, c.textModel, payload)
	if err != nil {
		c.logger.Warn().Err(err).Str("model", c.textModel).Str("request_id", req.RequestID).Msg("genai: text generation failed")
		return TextResult{}, err
	}

	result := TextResult{Usage: resp.usage()}
	if reason := resp.blockReason(); reason != "" {
		result.FinishReason = reason
		return result, fmt.Errorf("%w: %s", domain.ErrSafetyBlocked, reason)
	}
	if len(resp.Candidates) == 0 {
		return result, fmt.Errorf("%w: no candidates returned", domain.ErrInvalidResponse)
	}

	cand := resp.Candidates[0]
	result.FinishReason = cand.FinishReason
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		b.WriteString(part.Text)
	}
	result.Text = strings.TrimSpace(b.String())
	if result.Text == "" {
		return result, fmt.Errorf("%w: empty text response", domain.ErrInvalidResponse)
	}

	c.logger.Debug().
		Str("request_id", req.RequestID).
		Str("model", c.textModel).
		Int("tokens", result.Usage.Total()).
		Msg("genai: generated text")

	return result, nil
}
