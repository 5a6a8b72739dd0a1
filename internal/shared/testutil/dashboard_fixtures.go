package testutil

import (
	"time"

	"straitpulse/pkg/contracts/domain"
)

// Date returns a UTC calendar date
func Date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FixedClock returns a clock that always reports t
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// ScenarioPanels returns three single-indicator panels plus an always-on gauge
func ScenarioPanels() []domain.Panel {
	return []domain.Panel{
		{ID: "P1", Title: "Market", RequiredIndicatorIDs: []string{"TAIEX"}},
		{ID: "P2", Title: "Financial risk", RequiredIndicatorIDs: []string{"CDS", "VIX"}},
		{ID: "P3", Title: "Supply chain", RequiredIndicatorIDs: []string{"AIS"}},
		{ID: "GAUGE", Title: "Risk gauge"},
	}
}

// ScenarioIndicators returns TAIEX, CDS and AIS enabled by default and VIX
// declared after CDS but disabled. Labels equal ids.
func ScenarioIndicators() []domain.Indicator {
	return []domain.Indicator{
		{ID: "TAIEX", Label: "TAIEX", DefaultEnabled: true, PanelIDs: []string{"P1"}},
		{ID: "CDS", Label: "CDS", DefaultEnabled: true, PanelIDs: []string{"P2"}},
		{ID: "VIX", Label: "VIX", DefaultEnabled: false, PanelIDs: []string{"P2"}},
		{ID: "AIS", Label: "AIS", DefaultEnabled: true, PanelIDs: []string{"P3"}},
	}
}

// ScenarioRange is 2024-01-01..2024-01-03
func ScenarioRange() domain.DateRange {
	return domain.DateRange{Start: Date(2024, 1, 1), End: Date(2024, 1, 3)}
}
