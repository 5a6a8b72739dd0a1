package api

import (
	"time"

	"straitpulse/pkg/contracts"
	"straitpulse/pkg/contracts/domain"
)

// IndicatorResponse is one catalog entry with its current state
type IndicatorResponse struct {
	ID             string   `json:"id"`
	Label          string   `json:"label"`
	Unit           string   `json:"unit,omitempty"`
	Panels         []string `json:"panels"`
	DefaultEnabled bool     `json:"default_enabled"`
	Active         bool     `json:"active"`
}

// IndicatorListResponse lists the catalog in catalog order
type IndicatorListResponse struct {
	Indicators []IndicatorResponse `json:"indicators"`
	Total      int                 `json:"total"`
}

// PanelResponse is one panel with its renderability
type PanelResponse struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Kind       string   `json:"kind,omitempty"`
	Requires   []string `json:"requires"`
	Renderable bool     `json:"renderable"`
}

// PanelListResponse lists panels in layout order
type PanelListResponse struct {
	Panels []PanelResponse `json:"panels"`
}

// SelectionResponse is the current selection
type SelectionResponse struct {
	Indicators []string         `json:"indicators"`
	Labels     []string         `json:"labels"`
	Range      domain.DateRange `json:"range"`
	Version    uint64           `json:"version"`
	TakenAt    time.Time        `json:"taken_at"`
}

// ToggleResponse reports the new state of a toggled indicator
type ToggleResponse struct {
	ID        string            `json:"id"`
	Active    bool              `json:"active"`
	Selection SelectionResponse `json:"selection"`
}

// HealthResponse is the body of the health endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// VersionResponse is the body of GET /version
type VersionResponse struct {
	contracts.VersionInfo
	Uptime    string    `json:"uptime"`
	StartTime time.Time `json:"start_time"`
}
