package domain

import "strings"

// Scenario is a named content concept such as "hand holding product".
type Scenario struct {
	ID                  string   `json:"id" yaml:"id"`
	Name                string   `json:"name" yaml:"name"`
	IncludesHands       bool     `json:"includes_hands" yaml:"includes_hands"`
	IsInterior          bool     `json:"is_interior" yaml:"is_interior"`
	AllowedProductTypes []string `json:"allowed_product_types,omitempty" yaml:"allowed_product_types"`
	CompositionID       string   `json:"composition_id,omitempty" yaml:"composition_id"`
	Description         string   `json:"description" yaml:"description"`
	Moods               []string `json:"moods,omitempty" yaml:"moods"`
	TimeSlots           []string `json:"time_slots,omitempty" yaml:"time_slots"`
	Active              bool     `json:"active" yaml:"active"`
}

// AllowsProduct reports whether a product subtype may appear in the scenario.
// An empty allow list admits every product.
func (s Scenario) AllowsProduct(subtype string) bool {
	if len(s.AllowedProductTypes) == 0 {
		return true
	}
	for _, t := range s.AllowedProductTypes {
		if strings.EqualFold(t, subtype) {
			return true
		}
	}
	return false
}

// FitsTimeSlot reports whether the scenario is suitable for timeSlot. Scenarios
// without time slots fit any.
func (s Scenario) FitsTimeSlot(timeSlot string) bool {
	if len(s.TimeSlots) == 0 || timeSlot == "" {
		return true
	}
	for _, t := range s.TimeSlots {
		if strings.EqualFold(t, timeSlot) {
			return true
		}
	}
	return false
}

// HandStyle describes how hands are posed in scenarios that include them.
type HandStyle struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
}

// Composition is a framing/layout reference shared by scenarios.
type Composition struct {
	ID          string `json:"id" yaml:"id"`
	Description string `json:"description" yaml:"description"`
}

// SpecialElement is the recurring motif (for example a mascot) that appears
// every N posts.
type SpecialElement struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
}
