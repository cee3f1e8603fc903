package domain

import "time"

// Role is the part an asset category plays in a composed image.
type Role string

const (
	RoleProduct  Role = "product"
	RolePlate    Role = "plate"
	RoleCup      Role = "cup"
	RoleTable    Role = "table"
	RoleInterior Role = "interior"
	RoleProp     Role = "prop"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleProduct, RolePlate, RoleCup, RoleTable, RoleInterior, RoleProp:
		return true
	}
	return false
}

// EatingMethod hints how a product is physically held or eaten.
type EatingMethod string

const (
	EatingMethodHand  EatingMethod = "hand"
	EatingMethodFork  EatingMethod = "fork"
	EatingMethodSpoon EatingMethod = "spoon"
	EatingMethodDrink EatingMethod = "drink"
)

// Asset is a reusable visual element: a product photo, plate, cup, table,
// interior shot and so on.
type Asset struct {
	ID            string
	Category      string
	Subtype       string
	Name          string
	Tags          []string
	Moods         []string
	TimeSlots     []string
	ImageURL      string
	StorageKey    string
	UsageCount    int
	LastUsedAt    *time.Time
	Active        bool
	EatingMethod  EatingMethod
	PlateRequired *bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AssetRef is the snapshot of a selected asset stored on a pipeline result.
type AssetRef struct {
	ID       string  `json:"id"`
	Category string  `json:"category"`
	Subtype  string  `json:"subtype,omitempty"`
	Name     string  `json:"name,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
	Score    float64 `json:"score"`
}

// Ref converts the asset into the persisted reference form.
func (a Asset) Ref(score float64) AssetRef {
	return AssetRef{
		ID:       a.ID,
		Category: a.Category,
		Subtype:  a.Subtype,
		Name:     a.Name,
		ImageURL: a.ImageURL,
		Score:    score,
	}
}

// ForbidsPlate reports whether the product is explicitly marked as served without a plate.
func (a Asset) ForbidsPlate() bool {
	return a.PlateRequired != nil && !*a.PlateRequired
}

// NeedsPlate reports whether the product is explicitly marked as requiring a plate.
func (a Asset) NeedsPlate() bool {
	return a.PlateRequired != nil && *a.PlateRequired
}
