package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"straitpulse/internal/config"
	"straitpulse/internal/datasource"
	"straitpulse/internal/services"
	"straitpulse/internal/shared/testutil"
	"straitpulse/internal/websocket"
	api "straitpulse/pkg/contracts/api/v1"
)

type pingStub struct{ err error }

func (p pingStub) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		data       services.DataChecker
		wantStatus int
		wantBody   string
	}{
		{"health", "/healthz", nil, http.StatusOK, services.StatusOK},
		{"liveness", "/livez", nil, http.StatusOK, services.StatusAlive},
		{"ready", "/readyz", pingStub{}, http.StatusOK, services.StatusReady},
		{"not ready", "/readyz", pingStub{err: errors.New("refused")}, http.StatusServiceUnavailable, services.StatusNotReady},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			svc := services.NewHealthService(scenarioController(t), nil, tt.data, logger)
			handler := NewHealthHandler(svc, logger)

			rec := httptest.NewRecorder()
			handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp api.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
		})
	}
}

func TestHealthHandler_Version(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	handler := NewHealthHandler(services.NewHealthService(scenarioController(t), nil, nil, logger), logger)

	rec := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "v1", body["api_version"])
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "go_version")
}

func TestMetricsHandler(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	ctx := context.Background()

	hub := websocket.NewHub(logger)
	hub.Start()
	defer hub.Stop()

	data, err := datasource.Open(ctx, config.DataSourceConfig{Kind: datasource.KindMemory}, logger)
	require.NoError(t, err)
	defer data.Close()

	scrape := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# HELP exports_total CSV exports by outcome\n"))
	})

	t.Run("stats", func(t *testing.T) {
		h := NewMetricsHandler(scrape, hub, data)
		rec := httptest.NewRecorder()
		h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var resp StatsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.NotNil(t, resp.WebSocket)
		assert.Equal(t, 0, resp.WebSocket.ActiveClients)
		assert.Equal(t, datasource.KindMemory, resp.DataSource)
		assert.Nil(t, resp.Cache)
		assert.Nil(t, resp.Watcher)
	})

	t.Run("scrape", func(t *testing.T) {
		r := chi.NewRouter()
		h := NewMetricsHandler(scrape, nil, nil)
		assert.True(t, h.Enabled())
		r.Get("/metrics", h.ServeMetrics)

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "exports_total")
	})

	t.Run("scrape disabled", func(t *testing.T) {
		h := NewMetricsHandler(nil, nil, nil)
		assert.False(t, h.Enabled())

		rec := httptest.NewRecorder()
		h.ServeMetrics(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
