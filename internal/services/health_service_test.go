package services

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"straitpulse/internal/shared/testutil"
	"straitpulse/pkg/contracts"
)

type stubHub struct{ running bool }

func (h stubHub) Running() bool { return h.running }

type stubData struct{ err error }

func (d stubData) Ping(context.Context) error { return d.err }

func TestHealthService_HealthAndLiveness(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hs := NewHealthService(newScenarioController(t), nil, nil, logger)
	start := testutil.Date(2024, 1, 3)
	hs.startTime = start
	hs.now = testutil.FixedClock(start.Add(90 * time.Second))

	health := hs.HealthCheck(context.Background())
	assert.Equal(t, StatusOK, health.Status)
	assert.Equal(t, contracts.Version, health.Version)
	assert.Equal(t, "1m30s", health.Uptime)
	assert.Empty(t, health.Checks)

	assert.Equal(t, StatusAlive, hs.LivenessCheck(context.Background()).Status)

	v := hs.Version()
	assert.Equal(t, contracts.APIVersion, v.APIVersion)
	assert.Equal(t, start, v.StartTime)
}

func TestHealthService_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name   string
		hub    HubStatus
		data   DataChecker
		status string
		failed string
	}{
		{"all ready", stubHub{running: true}, stubData{}, StatusReady, ""},
		{"optional deps absent", nil, nil, StatusReady, ""},
		{"hub stopped", stubHub{running: false}, stubData{}, StatusNotReady, "websocket"},
		{"data unreachable", stubHub{running: true}, stubData{err: errors.New("dial tcp: refused")}, StatusNotReady, "datasource"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, handler := testutil.NewTestLogger(t)
			hs := NewHealthService(newScenarioController(t), tt.hub, tt.data, logger)

			resp := hs.ReadinessCheck(context.Background())
			assert.Equal(t, tt.status, resp.Status)
			assert.Len(t, resp.Checks, 3)

			for name, result := range resp.Checks {
				if name == tt.failed {
					assert.NotEqual(t, StatusReady, result)
				} else {
					assert.Equal(t, StatusReady, result, name)
				}
			}
			if tt.failed != "" {
				testutil.AssertLogContains(t, handler, slog.LevelWarn, "Readiness check failed")
				testutil.AssertLogAttr(t, handler, "check", tt.failed)
			}
		})
	}
}

func TestHealthService_NoController(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	hs := NewHealthService(nil, nil, nil, logger)

	resp := hs.ReadinessCheck(context.Background())
	assert.Equal(t, StatusNotReady, resp.Status)
	assert.Equal(t, "controller not initialized", resp.Checks["dashboard"])
}
