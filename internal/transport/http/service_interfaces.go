package http

import (
	"context"
	"time"

	"straitpulse/internal/dashboard"
	"straitpulse/internal/exporter"
	"straitpulse/internal/services"
	api "straitpulse/pkg/contracts/api/v1"
)

// DashboardServiceInterface defines the selection operations handlers use
type DashboardServiceInterface interface {
	Indicators(ctx context.Context) api.IndicatorListResponse
	Panels(ctx context.Context) api.PanelListResponse
	Selection(ctx context.Context) api.SelectionResponse
	View(ctx context.Context) dashboard.View
	ToggleIndicator(ctx context.Context, id string) (api.ToggleResponse, error)
	SetIndicators(ctx context.Context, ids []string) (api.SelectionResponse, error)
	SetRange(ctx context.Context, start, end time.Time) (api.SelectionResponse, error)
	Reset(ctx context.Context) (api.SelectionResponse, error)
}

// ExportServiceInterface builds CSV documents
type ExportServiceInterface interface {
	Export(ctx context.Context, req services.ExportRequest) (*exporter.Document, error)
}

// HealthServiceInterface answers health checks
type HealthServiceInterface interface {
	HealthCheck(ctx context.Context) api.HealthResponse
	ReadinessCheck(ctx context.Context) api.HealthResponse
	LivenessCheck(ctx context.Context) api.HealthResponse
	Version() api.VersionResponse
}
