package domain

import (
	"sort"
	"time"
)

// Dimension is one axis along which consecutive posts must vary.
type Dimension string

const (
	DimensionScenario    Dimension = "scenario"
	DimensionTable       Dimension = "table"
	DimensionHandStyle   Dimension = "hand_style"
	DimensionComposition Dimension = "composition"
	DimensionProduct     Dimension = "product"
	DimensionPlate       Dimension = "plate"
	DimensionCup         Dimension = "cup"
)

// Dimensions lists every diversity dimension in a stable order.
var Dimensions = []Dimension{
	DimensionScenario,
	DimensionTable,
	DimensionHandStyle,
	DimensionComposition,
	DimensionProduct,
	DimensionPlate,
	DimensionCup,
}

// DimensionForRole maps an asset role onto the diversity dimension it is tracked under.
func DimensionForRole(r Role) (Dimension, bool) {
	switch r {
	case RoleProduct:
		return DimensionProduct, true
	case RolePlate:
		return DimensionPlate, true
	case RoleCup:
		return DimensionCup, true
	case RoleTable:
		return DimensionTable, true
	}
	return "", false
}

// HistoryEntry is the append-only record of one completed run.
type HistoryEntry struct {
	ID                     string    `json:"id"`
	SlotID                 string    `json:"slot_id"`
	CreatedAt              time.Time `json:"created_at"`
	ScenarioID             string    `json:"scenario_id,omitempty"`
	CompositionID          string    `json:"composition_id,omitempty"`
	TableID                string    `json:"table_id,omitempty"`
	HandStyleID            string    `json:"hand_style_id,omitempty"`
	ProductID              string    `json:"product_id,omitempty"`
	PlateID                string    `json:"plate_id,omitempty"`
	CupID                  string    `json:"cup_id,omitempty"`
	SpecialElementIncluded bool      `json:"special_element_included"`
}

// Value returns the identifier recorded for dim, or "" when none was used.
func (h HistoryEntry) Value(dim Dimension) string {
	switch dim {
	case DimensionScenario:
		return h.ScenarioID
	case DimensionTable:
		return h.TableID
	case DimensionHandStyle:
		return h.HandStyleID
	case DimensionComposition:
		return h.CompositionID
	case DimensionProduct:
		return h.ProductID
	case DimensionPlate:
		return h.PlateID
	case DimensionCup:
		return h.CupID
	}
	return ""
}

// IDSet is a set of identifiers.
type IDSet map[string]struct{}

func NewIDSet(ids ...string) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

// Sorted returns the members in lexical order.
func (s IDSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// VariationConfig holds the dynamic diversity knobs.
type VariationConfig struct {
	Gaps                    map[Dimension]int `json:"gaps"`
	SpecialElementFrequency int               `json:"special_element_frequency"`
}

// Gap returns the window length for dim; missing or negative values count as zero.
func (c VariationConfig) Gap(dim Dimension) int {
	if g := c.Gaps[dim]; g > 0 {
		return g
	}
	return 0
}

// HistoryWindow is the number of recent entries needed to evaluate c.
func (c VariationConfig) HistoryWindow() int {
	n := c.SpecialElementFrequency - 1
	for _, dim := range Dimensions {
		if g := c.Gap(dim); g > n {
			n = g
		}
	}
	if n < 0 {
		return 0
	}
	return n
}

// EffectiveRules is the derived per-run set of diversity constraints.
type EffectiveRules struct {
	Blocked               map[Dimension]IDSet `json:"-"`
	IncludeSpecialElement bool                `json:"include_special_element"`
	// Degraded is set when history could not be read and nothing is blocked.
	Degraded   bool      `json:"degraded,omitempty"`
	Window     int       `json:"window"`
	ComputedAt time.Time `json:"computed_at"`
}

// IsBlocked reports whether id is blocked for dim.
func (r EffectiveRules) IsBlocked(dim Dimension, id string) bool {
	return r.Blocked[dim].Has(id)
}

// BlockedFor returns the block set for dim; never nil.
func (r EffectiveRules) BlockedFor(dim Dimension) IDSet {
	if s, ok := r.Blocked[dim]; ok {
		return s
	}
	return IDSet{}
}

// Summary flattens the block sets for logging and persistence.
func (r EffectiveRules) Summary() map[string][]string {
	out := make(map[string][]string, len(r.Blocked))
	for dim, set := range r.Blocked {
		if len(set) > 0 {
			out[string(dim)] = set.Sorted()
		}
	}
	return out
}
