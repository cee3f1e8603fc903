// Package catalog loads the reference catalog and freezes it into a
// Snapshot taken once per pipeline run.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"contentgen/internal/domain"
)

//go:embed default.yaml
var defaultCatalog []byte

// File is the on-disk catalog document.
type File struct {
	Routes         map[string]domain.Role `yaml:"routes"`
	HandStyles     []domain.HandStyle     `yaml:"hand_styles"`
	Compositions   []domain.Composition   `yaml:"compositions"`
	Scenarios      []domain.Scenario      `yaml:"scenarios"`
	SpecialElement domain.SpecialElement  `yaml:"special_element"`
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog: document is empty")
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads a catalog from path, or the embedded default when path is empty.
func LoadFile(path string) (*File, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Default returns the embedded catalog.
func Default() (*File, error) {
	return Parse(defaultCatalog)
}

func (f *File) Validate() error {
	if len(f.Routes) == 0 {
		return fmt.Errorf("catalog: %w: no category routes", domain.ErrInvalidInput)
	}
	for category, role := range f.Routes {
		if !role.Valid() {
			return fmt.Errorf("catalog: %w: category %q routes to unknown role %q", domain.ErrInvalidInput, category, role)
		}
	}
	compositions := make(map[string]bool, len(f.Compositions))
	for _, c := range f.Compositions {
		if c.ID == "" {
			return fmt.Errorf("catalog: %w: composition without id", domain.ErrInvalidInput)
		}
		compositions[c.ID] = true
	}
	seen := make(map[string]bool, len(f.Scenarios))
	for _, s := range f.Scenarios {
		if s.ID == "" {
			return fmt.Errorf("catalog: %w: scenario without id", domain.ErrInvalidInput)
		}
		if seen[s.ID] {
			return fmt.Errorf("catalog: %w: duplicate scenario %q", domain.ErrInvalidInput, s.ID)
		}
		seen[s.ID] = true
		if s.CompositionID != "" && !compositions[s.CompositionID] {
			return fmt.Errorf("catalog: %w: scenario %q references unknown composition %q", domain.ErrInvalidInput, s.ID, s.CompositionID)
		}
	}
	for _, h := range f.HandStyles {
		if h.ID == "" {
			return fmt.Errorf("catalog: %w: hand style without id", domain.ErrInvalidInput)
		}
	}
	return nil
}

func normalizeCategory(category string) string {
	return strings.ToLower(strings.TrimSpace(category))
}
