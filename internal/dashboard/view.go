package dashboard

import (
	"straitpulse/pkg/contracts/domain"
)

// Panel content states in a View
const (
	PanelLive        = "live"
	PanelPlaceholder = "placeholder"
)

// View is the rendering-agnostic description of the dashboard
type View struct {
	Panels     []PanelView     `json:"panels"`
	Indicators []IndicatorView `json:"indicators"`
}

// PanelView describes one panel and the active indicators that feed it
type PanelView struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Kind       string   `json:"kind,omitempty"`
	State      string   `json:"state"`
	Indicators []string `json:"indicators"`
}

// IndicatorView describes one active indicator
type IndicatorView struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Unit   string   `json:"unit,omitempty"`
	Panels []string `json:"panels"`
}

// BuildView derives the view from panel states and active indicators.
// It has no side effects and reads nothing else.
func BuildView(panels []PanelState, active []domain.Indicator) View {
	v := View{
		Panels:     make([]PanelView, 0, len(panels)),
		Indicators: make([]IndicatorView, 0, len(active)),
	}

	for _, ps := range panels {
		pv := PanelView{
			ID:         ps.Panel.ID,
			Title:      ps.Panel.Title,
			Kind:       ps.Panel.Kind,
			State:      PanelPlaceholder,
			Indicators: []string{},
		}
		if ps.Renderable {
			pv.State = PanelLive
		}
		for _, ind := range active {
			if ind.FeedsPanel(ps.Panel.ID) {
				pv.Indicators = append(pv.Indicators, ind.ID)
			}
		}
		v.Panels = append(v.Panels, pv)
	}

	for _, ind := range active {
		v.Indicators = append(v.Indicators, IndicatorView{
			ID:     ind.ID,
			Label:  ind.Label,
			Unit:   ind.Unit,
			Panels: append([]string(nil), ind.PanelIDs...),
		})
	}
	return v
}
