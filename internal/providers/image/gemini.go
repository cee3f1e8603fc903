package image

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"contentgen/internal/domain"
	"contentgen/internal/providers/genai"
)

const geminiProviderName = "gemini-image"

// GeminiGenerator renders images with the Gemini image model. When the client
// is offline it returns deterministic synthetic images at no cost.
type GeminiGenerator struct {
	client       *genai.Client
	costPerImage float64
	logger       zerolog.Logger
}

func NewGeminiGenerator(client *genai.Client, costPerImage float64, logger zerolog.Logger) (*GeminiGenerator, error) {
	if client == nil {
		return nil, errors.New("gemini client is required")
	}
	return &GeminiGenerator{
		client:       client,
		costPerImage: costPerImage,
		logger:       logger.With().Str("component", "image").Logger(),
	}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, req GenerateRequest) (Result, error) {
	images, err := g.inlineImages(ctx, req)
	if err != nil {
		return Result{Provider: geminiProviderName}, err
	}

	asset, err := g.client.GenerateImage(ctx, genai.ImageRequest{
		Prompt:      BuildEditPrompt(req),
		Images:      images,
		AspectRatio: req.AspectRatio,
		RequestID:   req.RequestID,
		Seed:        req.Seed,
	})
	res := Result{Provider: geminiProviderName}
	// The client returns an asset whenever the API answered; that call is billed
	// even when the answer was a safety block.
	if asset != nil && !asset.Synthetic {
		res.Cost = g.costPerImage
	}
	if err != nil {
		return res, err
	}

	res.Data = asset.Data
	res.Format = asset.Format
	res.Width = asset.Width
	res.Height = asset.Height
	res.StorageKey = asset.StorageKey
	res.Synthetic = asset.Synthetic
	return res, nil
}

// inlineImages loads the base image and references. A base image that cannot
// be loaded fails the call; a reference that cannot be loaded is dropped.
func (g *GeminiGenerator) inlineImages(ctx context.Context, req GenerateRequest) ([]genai.InlineImage, error) {
	if g.client.Offline() {
		return nil, nil
	}
	var out []genai.InlineImage
	if req.BaseImage != nil {
		img, err := g.load(ctx, *req.BaseImage)
		if err != nil {
			return nil, fmt.Errorf("%w: load base image %s: %v", domain.ErrProviderFailure, req.BaseImage.AssetID, err)
		}
		out = append(out, img)
	}
	for _, ref := range req.References {
		img, err := g.load(ctx, ref)
		if err != nil {
			g.logger.Warn().Err(err).Str("asset_id", ref.AssetID).Str("request_id", req.RequestID).Msg("reference image unavailable; skipping")
			continue
		}
		out = append(out, img)
	}
	return out, nil
}

func (g *GeminiGenerator) load(ctx context.Context, src SourceImage) (genai.InlineImage, error) {
	if len(src.Data) > 0 {
		return genai.InlineImage{MimeType: src.MIME, Data: src.Data}, nil
	}
	if src.URL == "" {
		return genai.InlineImage{}, errors.New("image has neither data nor url")
	}
	data, mime, err := g.client.Fetch(ctx, src.URL)
	if err != nil {
		return genai.InlineImage{}, err
	}
	return genai.InlineImage{MimeType: firstNonEmpty(src.MIME, mime), Data: data}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Generator = (*GeminiGenerator)(nil)
