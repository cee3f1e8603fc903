package genai

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/url"
	"strconv"
	"strings"
)

// aspectSizes are the pixel sizes used for the aspect ratios the pipeline asks
// for. Other "w:h" ratios are scaled to a 1024 pixel width.
var aspectSizes = map[string][2]int{
	"1:1":  {1024, 1024},
	"4:5":  {1024, 1280},
	"3:2":  {1536, 1024},
	"16:9": {1920, 1080},
	"9:16": {1080, 1920},
}

// syntheticImage renders an offline stand-in. Identical requests produce
// identical bytes and keys, and any field change produces a different image.
func (c *Client) syntheticImage(req ImageRequest) *ImageAsset {
	width, height := normalizeAspect(req.AspectRatio)
	seed := deterministicSeed(req.RequestID, req.Prompt, req.AspectRatio, req.Seed, len(req.Images))
	c.logger.Debug().Str("request_id", req.RequestID).Str("seed", seed).Msg("genai: rendered synthetic image")
	return &ImageAsset{
		StorageKey: syntheticStorageKey("image", c.imageModel, seed, 1, "png"),
		Format:     "image/png",
		Width:      width,
		Height:     height,
		Data:       renderSyntheticImage(width, height, seed),
		Synthetic:  true,
	}
}

func normalizeAspect(aspect string) (int, int) {
	aspect = strings.ToLower(strings.TrimSpace(aspect))
	if size, ok := aspectSizes[aspect]; ok {
		return size[0], size[1]
	}
	w, h, ok := strings.Cut(aspect, ":")
	if ok {
		a, errA := strconv.Atoi(strings.TrimSpace(w))
		b, errB := strconv.Atoi(strings.TrimSpace(h))
		if errA == nil && errB == nil && a > 0 && b > 0 {
			return 1024, 1024 * b / a
		}
	}
	return 1024, 1024
}

// deterministicSeed hashes the fields into a 16 character hex string.
func deterministicSeed(fields ...any) string {
	h := sha256.New()
	for _, f := range fields {
		fmt.Fprintf(h, "%v\x00", f)
	}
	return hex.EncodeToString(h.Sum(nil)[:8])
}

func syntheticStorageKey(kind, model, seed string, index int, ext string) string {
	return fmt.Sprintf("synthetic/%s/%s-%s/%02d.%s", url.PathEscape(model), url.PathEscape(kind), seed, index, ext)
}

// renderSyntheticImage draws a vertical gradient with a centred disc, a rough
// plate-on-table shape, coloured from the seed.
func renderSyntheticImage(width, height int, seed string) []byte {
	if width <= 0 || height <= 0 {
		width, height = 1024, 1024
	}
	digest := sha256.Sum256([]byte(seed))
	top := color.RGBA{digest[0], digest[1], digest[2], 255}
	bottom := color.RGBA{digest[3], digest[4], digest[5], 255}
	disc := color.RGBA{digest[6] | 0x80, digest[7] | 0x80, digest[8] | 0x80, 255}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	cx, cy := width/2, height/2
	r := min(width, height) / 3
	for y := 0; y < height; y++ {
		row := lerp(top, bottom, y, height)
		for x := 0; x < width; x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				img.SetRGBA(x, y, disc)
			} else {
				img.SetRGBA(x, y, row)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}

func lerp(a, b color.RGBA, step, steps int) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8((int(x)*(steps-step) + int(y)*step) / steps)
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}
