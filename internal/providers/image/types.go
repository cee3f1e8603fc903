package image

import "context"

// SourceImage is a photo passed to the model as conditioning input. Data is
// fetched from URL when empty.
type SourceImage struct {
	AssetID string
	URL     string
	MIME    string
	Data    []byte
}

// GenerateRequest describes one image generation call.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	BaseImage      *SourceImage
	References     []SourceImage
	AspectRatio    string
	RequestID      string
	Seed           int64
}

// Result is a generated image. Cost is set whenever the provider billed the
// call, including when it returned an error.
type Result struct {
	Data       []byte
	Format     string
	Width      int
	Height     int
	StorageKey string
	Synthetic  bool
	Provider   string
	Cost       float64
}

// Generator is the contract implemented by image providers.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (Result, error)
}
