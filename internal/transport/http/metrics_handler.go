package http

import (
	"net/http"

	"github.com/go-chi/render"

	"straitpulse/internal/datasource"
	"straitpulse/internal/websocket"
)

// StatsResponse summarizes runtime counters of the event hub and data source
type StatsResponse struct {
	WebSocket  *websocket.HubStats      `json:"websocket,omitempty"`
	DataSource string                   `json:"datasource,omitempty"`
	Cache      *datasource.CacheStats   `json:"cache,omitempty"`
	Watcher    *datasource.WatcherStats `json:"watcher,omitempty"`
}

// MetricsHandler serves the Prometheus scrape endpoint and a JSON summary
type MetricsHandler struct {
	prometheus http.Handler
	hub        *websocket.Hub
	data       *datasource.Handle
}

// NewMetricsHandler creates a metrics handler. Any argument may be nil;
// the matching section is then left out.
func NewMetricsHandler(prometheus http.Handler, hub *websocket.Hub, data *datasource.Handle) *MetricsHandler {
	return &MetricsHandler{prometheus: prometheus, hub: hub, data: data}
}

// Enabled reports whether a scrape endpoint is available
func (h *MetricsHandler) Enabled() bool {
	return h.prometheus != nil
}

// ServeMetrics handles GET /metrics
func (h *MetricsHandler) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		http.NotFound(w, r)
		return
	}
	h.prometheus.ServeHTTP(w, r)
}

// GetStats handles GET /api/v1/stats
func (h *MetricsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse

	if h.hub != nil {
		stats := h.hub.Stats()
		resp.WebSocket = &stats
	}
	if h.data != nil {
		resp.DataSource = h.data.Kind
		if h.data.Cache != nil {
			stats := h.data.Cache.Stats()
			resp.Cache = &stats
		}
		if h.data.Watcher != nil {
			stats := h.data.Watcher.Stats()
			resp.Watcher = &stats
		}
	}

	render.JSON(w, r, resp)
}
