package jsoncfg

import (
	"encoding/json"
	"fmt"

	"contentgen/internal/domain"
)

type WeightsDoc struct {
	TagOverlap    float64 `json:"tag_overlap"`
	Usage         float64 `json:"usage"`
	Mood          float64 `json:"mood"`
	TimeOfDay     float64 `json:"time_of_day"`
	ProductCompat float64 `json:"product_compat"`
}

// SelectionDoc is the stored form of the selection engine configuration.
type SelectionDoc struct {
	Weights                *WeightsDoc                   `json:"weights,omitempty"`
	DefaultThreshold       *float64                      `json:"default_threshold,omitempty"`
	Thresholds             map[string]float64            `json:"thresholds,omitempty"`
	Required               []string                      `json:"required,omitempty"`
	FallbackToHighestScore *bool                         `json:"fallback_to_highest_score,omitempty"`
	FallbackToRandom       *bool                         `json:"fallback_to_random,omitempty"`
	StrictBlocking         *bool                         `json:"strict_blocking,omitempty"`
	TieBreak               []string                      `json:"tie_break,omitempty"`
	Compatibility          map[string][]string           `json:"compatibility,omitempty"`
	ProductMatrix          map[string]map[string]float64 `json:"product_matrix,omitempty"`
}

var allowedTieBreaks = map[string]struct{}{
	"usage":       {},
	"last_used":   {},
	"input_order": {},
	"id":          {},
}

// DecodeSelection parses and validates a stored selection document.
func DecodeSelection(raw []byte) (SelectionDoc, error) {
	var doc SelectionDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return SelectionDoc{}, fmt.Errorf("decode selection config: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return SelectionDoc{}, err
	}
	return doc, nil
}

// Validate ensures the document only names known roles and tie-break keys and
// that weights and thresholds are usable.
func (d SelectionDoc) Validate() error {
	if w := d.Weights; w != nil {
		for name, v := range map[string]float64{
			"tag_overlap":    w.TagOverlap,
			"usage":          w.Usage,
			"mood":           w.Mood,
			"time_of_day":    w.TimeOfDay,
			"product_compat": w.ProductCompat,
		} {
			if v < 0 {
				return fmt.Errorf("weights.%s must not be negative", name)
			}
		}
	}
	if d.DefaultThreshold != nil && *d.DefaultThreshold < 0 {
		return fmt.Errorf("default_threshold must not be negative")
	}
	for role, v := range d.Thresholds {
		if !domain.Role(role).Valid() {
			return fmt.Errorf("thresholds: unknown role %q", role)
		}
		if v < 0 {
			return fmt.Errorf("thresholds.%s must not be negative", role)
		}
	}
	for _, role := range d.Required {
		if !domain.Role(role).Valid() {
			return fmt.Errorf("required: unknown role %q", role)
		}
	}
	for role := range d.Compatibility {
		if !domain.Role(role).Valid() {
			return fmt.Errorf("compatibility: unknown role %q", role)
		}
	}
	seen := map[string]struct{}{}
	for _, key := range d.TieBreak {
		if _, ok := allowedTieBreaks[key]; !ok {
			return fmt.Errorf("tie_break: unknown key %q", key)
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("tie_break: duplicate key %q", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
