package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"straitpulse/internal/dashboard"
	"straitpulse/pkg/contracts"
	api "straitpulse/pkg/contracts/api/v1"
)

// Health statuses
const (
	StatusOK       = "ok"
	StatusReady    = "ready"
	StatusNotReady = "not_ready"
	StatusAlive    = "alive"
)

// HubStatus is the part of the websocket hub the readiness check reads
type HubStatus interface {
	Running() bool
}

// DataChecker reports whether the data source can answer queries
type DataChecker interface {
	Ping(ctx context.Context) error
}

// pingTimeout bounds the data source ping of a readiness check
const pingTimeout = 2 * time.Second

// HealthService provides health check functionality
type HealthService struct {
	controller *dashboard.Controller
	hub        HubStatus
	data       DataChecker
	startTime  time.Time
	now        func() time.Time
	logger     *slog.Logger
}

// NewHealthService creates a health service. hub and data may be nil, in
// which case their checks are skipped.
func NewHealthService(controller *dashboard.Controller, hub HubStatus, data DataChecker, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("HealthService initialized",
		slog.String("version", contracts.Version),
		slog.String("git_commit", contracts.GitCommit))

	return &HealthService{
		controller: controller,
		hub:        hub,
		data:       data,
		startTime:  time.Now(),
		now:        time.Now,
		logger:     logger.With(slog.String("service", "health")),
	}
}

func (hs *HealthService) uptime() string {
	return hs.now().Sub(hs.startTime).Round(time.Second).String()
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) api.HealthResponse {
	return api.HealthResponse{
		Status:    StatusOK,
		Version:   contracts.Version,
		Uptime:    hs.uptime(),
		Timestamp: hs.now().UTC(),
	}
}

// LivenessCheck reports that the process is serving requests
func (hs *HealthService) LivenessCheck(ctx context.Context) api.HealthResponse {
	resp := hs.HealthCheck(ctx)
	resp.Status = StatusAlive
	return resp
}

// ReadinessCheck checks the dashboard, the event hub and the data source.
// The service is ready only when every check passes.
func (hs *HealthService) ReadinessCheck(ctx context.Context) api.HealthResponse {
	resp := hs.HealthCheck(ctx)
	resp.Status = StatusReady
	resp.Checks = map[string]string{
		"dashboard":  hs.checkDashboard(),
		"websocket":  hs.checkWebSocket(),
		"datasource": hs.checkData(ctx),
	}

	for name, result := range resp.Checks {
		if result != StatusReady {
			resp.Status = StatusNotReady
			hs.logger.WarnContext(ctx, "Readiness check failed",
				slog.String("check", name),
				slog.String("result", result))
		}
	}
	return resp
}

// Version returns build and uptime information
func (hs *HealthService) Version() api.VersionResponse {
	return api.VersionResponse{
		VersionInfo: contracts.GetVersionInfo(),
		Uptime:      hs.uptime(),
		StartTime:   hs.startTime.UTC(),
	}
}

func (hs *HealthService) checkDashboard() string {
	if hs.controller == nil {
		return "controller not initialized"
	}
	if hs.controller.Catalog().Len() == 0 {
		return "indicator catalog is empty"
	}
	return StatusReady
}

func (hs *HealthService) checkWebSocket() string {
	if hs.hub == nil {
		return StatusReady
	}
	if !hs.hub.Running() {
		return "hub not running"
	}
	return StatusReady
}

func (hs *HealthService) checkData(ctx context.Context) string {
	if hs.data == nil {
		return StatusReady
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := hs.data.Ping(ctx); err != nil {
		return fmt.Sprintf("unreachable: %v", err)
	}
	return StatusReady
}
