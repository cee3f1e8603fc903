package image

import (
	"fmt"
	"strings"
)

// DefaultNegativePrompt captures undesirable artefacts we want the model to avoid.
const DefaultNegativePrompt = "low quality, blurry, distorted, washed out, incorrect anatomy, extra fingers, text artefacts, watermark"

// BuildEditPrompt turns the composed prompt into the instruction sent with the
// base product photo and reference images.
func BuildEditPrompt(req GenerateRequest) string {
	var lines []string

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		prompt = "Create an appetising photograph of the featured product."
	}
	lines = append(lines, prompt)

	if req.BaseImage != nil {
		lines = append(lines, "The first image is the real product. Preserve its shape, texture, colour and size without warping.")
	}
	if n := len(req.References); n > 0 {
		lines = append(lines, fmt.Sprintf("The following %d image(s) show the tableware, table and interior to use as references.", n))
	}

	negative := strings.TrimSpace(req.NegativePrompt)
	if negative == "" {
		negative = DefaultNegativePrompt
	}
	lines = append(lines, "Avoid: "+negative+".")
	lines = append(lines, "Ensure the scene looks natural, well-lit, and ready for social media.")

	return strings.Join(lines, "\n")
}
