package dashboard

import (
	"fmt"

	"straitpulse/pkg/contracts/domain"
)

// Catalog is the ordered, immutable set of indicators.
// Declaration order fixes the column order of every export.
type Catalog struct {
	indicators []domain.Indicator
	index      map[string]int
}

// NewCatalog builds a catalog against a panel registry. Malformed or
// duplicate ids and panel references missing from the registry fail with a
// ConfigurationError.
func NewCatalog(indicators []domain.Indicator, panels *Registry) (*Catalog, error) {
	c := &Catalog{
		indicators: make([]domain.Indicator, 0, len(indicators)),
		index:      make(map[string]int, len(indicators)),
	}

	var problems []string
	for i, ind := range indicators {
		if ind.ID == "" {
			problems = append(problems, fmt.Sprintf("indicator #%d has no id", i+1))
			continue
		}
		if !domain.ValidID(ind.ID) {
			problems = append(problems, fmt.Sprintf("indicator id %q is malformed", ind.ID))
			continue
		}
		if _, dup := c.index[ind.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate indicator id %q", ind.ID))
			continue
		}
		for _, panelID := range ind.PanelIDs {
			if panels == nil || !panels.Has(panelID) {
				problems = append(problems,
					fmt.Sprintf("indicator %q references unknown panel %q", ind.ID, panelID))
			}
		}
		if ind.Label == "" {
			ind.Label = ind.ID
		}
		c.index[ind.ID] = len(c.indicators)
		c.indicators = append(c.indicators, cloneIndicator(ind))
	}

	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return c, nil
}

// List returns the indicators in declaration order
func (c *Catalog) List() []domain.Indicator {
	out := make([]domain.Indicator, len(c.indicators))
	for i, ind := range c.indicators {
		out[i] = cloneIndicator(ind)
	}
	return out
}

// Get returns the indicator with the given id
func (c *Catalog) Get(id string) (domain.Indicator, error) {
	i, ok := c.index[id]
	if !ok {
		return domain.Indicator{}, &NotFoundError{Kind: "indicator", ID: id}
	}
	return cloneIndicator(c.indicators[i]), nil
}

// Has reports whether an indicator id is in the catalog
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Len returns the number of indicators
func (c *Catalog) Len() int {
	return len(c.indicators)
}

// Defaults returns the set of indicators enabled at dashboard start
func (c *Catalog) Defaults() map[string]bool {
	active := make(map[string]bool)
	for _, ind := range c.indicators {
		if ind.DefaultEnabled {
			active[ind.ID] = true
		}
	}
	return active
}

// filter returns the indicators whose id is in the set, in catalog order
func (c *Catalog) filter(set map[string]bool) []domain.Indicator {
	out := make([]domain.Indicator, 0, len(set))
	for _, ind := range c.indicators {
		if set[ind.ID] {
			out = append(out, cloneIndicator(ind))
		}
	}
	return out
}

func cloneIndicator(ind domain.Indicator) domain.Indicator {
	ind.PanelIDs = append([]string(nil), ind.PanelIDs...)
	return ind
}
