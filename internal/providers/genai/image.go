package genai

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"contentgen/internal/domain"
)

// ImageRequest represents the information required to generate one image.
type ImageRequest struct {
	Prompt      string
	Images      []InlineImage
	AspectRatio string
	RequestID   string
	Seed        int64
}

// ImageAsset is the normalized representation returned by the Gemini client.
type ImageAsset struct {
	StorageKey string
	Format     string
	Width      int
	Height     int
	Data       []byte
	Synthetic  bool
	Usage      Usage
}

// GenerateImage produces one image. In offline mode the image is a
// deterministic function of the request. A safety block is reported as
// domain.ErrSafetyBlocked.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.Offline() {
		return c.syntheticImage(req), nil
	}

	cfg := &wireGenerationConfig{
		CandidateCount:     1,
		ResponseModalities: []string{"IMAGE", "TEXT"},
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		cfg.ImageConfig = &wireImageConfig{AspectRatio: aspect}
	}
	if req.Seed != 0 {
		seed := req.Seed
		cfg.Seed = &seed
	}

	resp, err := c.generate(ctx, c.imageModel, wireRequest{
		Contents:         userTurn(req.Images, buildImagePrompt(req)),
		GenerationConfig: cfg,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("model", c.imageModel).Str("request_id", req.RequestID).Msg("genai: image generation failed")
		return nil, err
	}
	if reason := resp.blockReason(); reason != "" {
		c.logger.Info().Str("model", c.imageModel).Str("request_id", req.RequestID).Str("reason", reason).Msg("genai: image blocked by safety filter")
		return &ImageAsset{Usage: resp.usage()}, fmt.Errorf("%w: %s", domain.ErrSafetyBlocked, reason)
	}

	width, height := normalizeAspect(req.AspectRatio)
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			data, mime, err := c.partImage(ctx, part)
			if err != nil {
				c.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("genai: unreadable image part")
				continue
			}
			if len(data) == 0 {
				continue
			}
			w, h := decodeImageDimensions(data)
			if w == 0 || h == 0 {
				w, h = width, height
			}
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.imageModel).
				Msg("genai: generated remote image")
			return &ImageAsset{
				Format: firstNonEmpty(mime, "image/png"),
				Width:  w,
				Height: h,
				Data:   data,
				Usage:  resp.usage(),
			}, nil
		}
	}

	return &ImageAsset{Usage: resp.usage()}, fmt.Errorf("%w: no image content returned", domain.ErrInvalidResponse)
}

func buildImagePrompt(req ImageRequest) string {
	var b strings.Builder
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		b.WriteString(prompt)
	}
	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Aspect ratio: ")
		b.WriteString(aspect)
	}
	if b.Len() == 0 {
		b.WriteString("Create a food photograph")
	}
	return b.String()
}

func decodeImageDimensions(data []byte) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0
	}
	return cfg.Width, cfg.Height
}
