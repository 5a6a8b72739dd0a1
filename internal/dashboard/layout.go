package dashboard

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"straitpulse/pkg/contracts/domain"
)

//go:embed default_layout.yaml
var defaultLayoutYAML []byte

// Layout is the declarative description of panels and indicators
type Layout struct {
	Panels     []domain.Panel     `yaml:"panels"`
	Indicators []domain.Indicator `yaml:"indicators"`
}

// DefaultLayout returns the built-in Taiwan Strait risk layout
func DefaultLayout() (Layout, error) {
	return ParseLayout(defaultLayoutYAML)
}

// ParseLayout decodes a YAML layout document
func ParseLayout(data []byte) (Layout, error) {
	var l Layout
	if err := yaml.UnmarshalStrict(data, &l); err != nil {
		return Layout{}, &ConfigurationError{Problems: []string{fmt.Sprintf("parse layout: %v", err)}}
	}
	return l, nil
}

// LoadLayout reads a layout file, falling back to the built-in one for an empty path
func LoadLayout(path string) (Layout, error) {
	if path == "" {
		return DefaultLayout()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout %s: %w", path, err)
	}
	return ParseLayout(data)
}

// Build validates the layout and constructs the registry and catalog.
// Panel requirements naming unknown indicators are rejected alongside the
// catalog's own checks.
func (l Layout) Build() (*Catalog, *Registry, error) {
	registry, err := NewRegistry(l.Panels)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := NewCatalog(l.Indicators, registry)
	if err != nil {
		return nil, nil, err
	}

	var problems []string
	for _, p := range registry.List() {
		for _, id := range p.RequiredIndicatorIDs {
			if !catalog.Has(id) {
				problems = append(problems,
					fmt.Sprintf("panel %q requires unknown indicator %q", p.ID, id))
			}
		}
	}
	if len(problems) > 0 {
		return nil, nil, &ConfigurationError{Problems: problems}
	}
	return catalog, registry, nil
}
