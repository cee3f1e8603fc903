package jsoncfg

import (
	"encoding/json"
	"fmt"

	"contentgen/internal/domain"
)

// VariationDoc is the stored form of the diversity knobs. Absent fields keep
// the process defaults.
type VariationDoc struct {
	Gaps                    map[string]int `json:"gaps"`
	SpecialElementFrequency *int           `json:"special_element_frequency,omitempty"`
}

// DecodeVariation parses and validates a stored variation document.
func DecodeVariation(raw []byte) (VariationDoc, error) {
	var doc VariationDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return VariationDoc{}, fmt.Errorf("decode variation config: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return VariationDoc{}, err
	}
	return doc, nil
}

// Validate rejects unknown dimensions and negative windows.
func (d VariationDoc) Validate() error {
	for key, gap := range d.Gaps {
		if !knownDimension(key) {
			return fmt.Errorf("gaps: unknown dimension %q", key)
		}
		if gap < 0 {
			return fmt.Errorf("gaps.%s must not be negative", key)
		}
	}
	if d.SpecialElementFrequency != nil && *d.SpecialElementFrequency < 0 {
		return fmt.Errorf("special_element_frequency must not be negative")
	}
	return nil
}

// Apply overlays the document onto base and returns the merged config.
func (d VariationDoc) Apply(base domain.VariationConfig) domain.VariationConfig {
	out := domain.VariationConfig{
		Gaps:                    make(map[domain.Dimension]int, len(domain.Dimensions)),
		SpecialElementFrequency: base.SpecialElementFrequency,
	}
	for dim, gap := range base.Gaps {
		out.Gaps[dim] = gap
	}
	for key, gap := range d.Gaps {
		out.Gaps[domain.Dimension(key)] = gap
	}
	if d.SpecialElementFrequency != nil {
		out.SpecialElementFrequency = *d.SpecialElementFrequency
	}
	return out
}

func knownDimension(key string) bool {
	for _, dim := range domain.Dimensions {
		if string(dim) == key {
			return true
		}
	}
	return false
}
