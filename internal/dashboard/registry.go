package dashboard

import (
	"fmt"

	"straitpulse/pkg/contracts/domain"
)

// Registry is the ordered, immutable set of dashboard panels
type Registry struct {
	panels []domain.Panel
	index  map[string]int
}

// NewRegistry builds a registry in declaration order.
// Empty, malformed or duplicate panel ids fail with a ConfigurationError.
func NewRegistry(panels []domain.Panel) (*Registry, error) {
	r := &Registry{
		panels: make([]domain.Panel, 0, len(panels)),
		index:  make(map[string]int, len(panels)),
	}

	var problems []string
	for i, p := range panels {
		if p.ID == "" {
			problems = append(problems, fmt.Sprintf("panel #%d has no id", i+1))
			continue
		}
		if !domain.ValidID(p.ID) {
			problems = append(problems, fmt.Sprintf("panel id %q is malformed", p.ID))
			continue
		}
		if _, dup := r.index[p.ID]; dup {
			problems = append(problems, fmt.Sprintf("duplicate panel id %q", p.ID))
			continue
		}
		r.index[p.ID] = len(r.panels)
		r.panels = append(r.panels, clonePanel(p))
	}

	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}
	return r, nil
}

// List returns the panels in declaration order
func (r *Registry) List() []domain.Panel {
	out := make([]domain.Panel, len(r.panels))
	for i, p := range r.panels {
		out[i] = clonePanel(p)
	}
	return out
}

// Get returns the panel with the given id
func (r *Registry) Get(id string) (domain.Panel, error) {
	i, ok := r.index[id]
	if !ok {
		return domain.Panel{}, &NotFoundError{Kind: "panel", ID: id}
	}
	return clonePanel(r.panels[i]), nil
}

// Has reports whether a panel id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Len returns the number of panels
func (r *Registry) Len() int {
	return len(r.panels)
}

// IsRenderable reports whether a panel has live content for the active set:
// true when it requires nothing or when any required indicator is active.
func IsRenderable(panel domain.Panel, active map[string]bool) bool {
	if len(panel.RequiredIndicatorIDs) == 0 {
		return true
	}
	for _, id := range panel.RequiredIndicatorIDs {
		if active[id] {
			return true
		}
	}
	return false
}

// PanelStates evaluates every panel of reg, in order, against the active
// set of snap. Panels and indicators read from one snapshot always agree.
func PanelStates(reg *Registry, snap Snapshot) []PanelState {
	active := snap.ActiveSet()
	states := make([]PanelState, len(reg.panels))
	for i, p := range reg.panels {
		states[i] = PanelState{Panel: clonePanel(p), Renderable: IsRenderable(p, active)}
	}
	return states
}

func clonePanel(p domain.Panel) domain.Panel {
	p.RequiredIndicatorIDs = append([]string(nil), p.RequiredIndicatorIDs...)
	return p
}
