package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"straitpulse/internal/dashboard"
	"straitpulse/internal/infrastructure"
	"straitpulse/internal/websocket"
	api "straitpulse/pkg/contracts/api/v1"
	"straitpulse/pkg/contracts/events"
)

// publishTimeout bounds how long a mutation waits on a full event queue
const publishTimeout = 2 * time.Second

// EventPublisher delivers events to connected dashboards.
// *websocket.Hub implements it.
type EventPublisher interface {
	Publish(ctx context.Context, msgType events.MessageType, data interface{}) error
}

// DashboardService exposes the selection to handlers and forwards every
// accepted change to the event publisher
type DashboardService struct {
	controller  *dashboard.Controller
	publisher   EventPublisher
	metrics     *infrastructure.DashboardMetrics
	logger      *slog.Logger
	unsubscribe func()
}

// NewDashboardService wraps controller. publisher and metrics may be nil.
func NewDashboardService(controller *dashboard.Controller, publisher EventPublisher, metrics *infrastructure.DashboardMetrics, logger *slog.Logger) (*DashboardService, error) {
	if controller == nil {
		return nil, ErrNilController
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &DashboardService{
		controller: controller,
		publisher:  publisher,
		metrics:    metrics,
		logger:     logger.With(slog.String("service", "dashboard")),
	}
	// Subscribing here rather than publishing from each method means
	// mutations made directly on the controller are announced too
	s.unsubscribe = controller.Subscribe(s.onChange)

	s.logger.Info("DashboardService initialized",
		slog.Int("indicators", controller.Catalog().Len()),
		slog.Int("panels", controller.Registry().Len()))
	return s, nil
}

// Close stops forwarding controller changes
func (s *DashboardService) Close() {
	s.unsubscribe()
}

// Controller returns the wrapped controller
func (s *DashboardService) Controller() *dashboard.Controller {
	return s.controller
}

func (s *DashboardService) onChange(change dashboard.Change) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	infrastructure.RecordSelectionChange(ctx, s.metrics, string(change.Kind))
	if s.publisher == nil {
		return
	}

	payload := events.SelectionChanged{
		Kind:        string(change.Kind),
		IndicatorID: change.IndicatorID,
		Selection:   toEventSelection(change.Snapshot),
		Renderable:  renderableIDs(dashboard.PanelStates(s.controller.Registry(), change.Snapshot)),
	}
	if change.Kind == dashboard.ChangeIndicatorToggled {
		active := change.Active
		payload.Active = &active
	}

	err := s.publisher.Publish(ctx, events.MessageTypeSelectionChanged, payload)
	switch {
	case err == nil:
	case errors.Is(err, websocket.ErrHubStopped):
		s.logger.Debug("Selection change not published, hub stopped",
			slog.Uint64("version", change.Snapshot.Version))
	default:
		s.logger.Warn("Failed to publish selection change",
			slog.String("error", err.Error()),
			slog.String("kind", string(change.Kind)),
			slog.Uint64("version", change.Snapshot.Version))
		infrastructure.RecordSystemError(ctx, s.metrics, "publish_failed", "dashboard_service")
	}
}

// Indicators lists the catalog with the active flag of each entry
func (s *DashboardService) Indicators(ctx context.Context) api.IndicatorListResponse {
	active := make(map[string]bool)
	for _, ind := range s.controller.ActiveIndicators() {
		active[ind.ID] = true
	}

	list := s.controller.Catalog().List()
	resp := api.IndicatorListResponse{
		Indicators: make([]api.IndicatorResponse, 0, len(list)),
		Total:      len(list),
	}
	for _, ind := range list {
		resp.Indicators = append(resp.Indicators, api.IndicatorResponse{
			ID:             ind.ID,
			Label:          ind.Label,
			Unit:           ind.Unit,
			Panels:         nonNil(ind.PanelIDs),
			DefaultEnabled: ind.DefaultEnabled,
			Active:         active[ind.ID],
		})
	}
	return resp
}

// Panels lists every panel with its renderability
func (s *DashboardService) Panels(ctx context.Context) api.PanelListResponse {
	states := s.controller.RenderablePanels()

	resp := api.PanelListResponse{Panels: make([]api.PanelResponse, 0, len(states))}
	for _, ps := range states {
		resp.Panels = append(resp.Panels, api.PanelResponse{
			ID:         ps.Panel.ID,
			Title:      ps.Panel.Title,
			Kind:       ps.Panel.Kind,
			Requires:   nonNil(ps.Panel.RequiredIndicatorIDs),
			Renderable: ps.Renderable,
		})
	}
	return resp
}

// Selection returns the current selection
func (s *DashboardService) Selection(ctx context.Context) api.SelectionResponse {
	return toSelectionResponse(s.controller.Snapshot())
}

// View describes the dashboard as a renderer would draw it. Panels and
// indicators come from the same snapshot.
func (s *DashboardService) View(ctx context.Context) dashboard.View {
	snap := s.controller.Snapshot()
	return dashboard.BuildView(dashboard.PanelStates(s.controller.Registry(), snap), snap.Indicators)
}

// ToggleIndicator flips one indicator. The response carries the selection
// as it was right after this toggle.
func (s *DashboardService) ToggleIndicator(ctx context.Context, id string) (api.ToggleResponse, error) {
	change, err := s.controller.ApplyToggle(id)
	if err != nil {
		s.reject(ctx, "toggle", err)
		return api.ToggleResponse{}, err
	}

	s.logger.DebugContext(ctx, "Indicator toggled",
		slog.String("indicator", id),
		slog.Bool("active", change.Active))
	return api.ToggleResponse{
		ID:        id,
		Active:    change.Active,
		Selection: toSelectionResponse(change.Snapshot),
	}, nil
}

// SetIndicators replaces the active set
func (s *DashboardService) SetIndicators(ctx context.Context, ids []string) (api.SelectionResponse, error) {
	change, err := s.controller.ApplyActive(ids)
	if err != nil {
		s.reject(ctx, "set_indicators", err)
		return api.SelectionResponse{}, err
	}

	s.logger.DebugContext(ctx, "Indicators set", slog.Any("indicators", ids))
	return toSelectionResponse(change.Snapshot), nil
}

// SetRange replaces the date range
func (s *DashboardService) SetRange(ctx context.Context, start, end time.Time) (api.SelectionResponse, error) {
	change, err := s.controller.ApplyRange(start, end)
	if err != nil {
		s.reject(ctx, "set_range", err)
		return api.SelectionResponse{}, err
	}

	sel := toSelectionResponse(change.Snapshot)
	s.logger.DebugContext(ctx, "Range set", slog.String("range", sel.Range.String()))
	return sel, nil
}

// Reset restores the default indicators and range
func (s *DashboardService) Reset(ctx context.Context) (api.SelectionResponse, error) {
	change, err := s.controller.ApplyReset()
	if err != nil {
		s.reject(ctx, "reset", err)
		return api.SelectionResponse{}, err
	}

	s.logger.DebugContext(ctx, "Selection reset")
	return toSelectionResponse(change.Snapshot), nil
}

func (s *DashboardService) reject(ctx context.Context, operation string, err error) {
	reason := rejectionReason(err)
	infrastructure.RecordSelectionRejection(ctx, s.metrics, reason)
	s.logger.WarnContext(ctx, "Selection change rejected",
		slog.String("operation", operation),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
}

func rejectionReason(err error) string {
	switch {
	case dashboard.IsNotFound(err):
		return "not_found"
	case dashboard.IsInvalidRange(err):
		return "invalid_range"
	case dashboard.IsConfiguration(err):
		return "configuration"
	default:
		return "internal"
	}
}

func renderableIDs(states []dashboard.PanelState) []string {
	ids := []string{}
	for _, ps := range states {
		if ps.Renderable {
			ids = append(ids, ps.Panel.ID)
		}
	}
	return ids
}

func toSelectionResponse(snap dashboard.Snapshot) api.SelectionResponse {
	return api.SelectionResponse{
		Indicators: snap.IDs(),
		Labels:     snap.Labels(),
		Range:      snap.Range,
		Version:    snap.Version,
		TakenAt:    snap.TakenAt,
	}
}

func toEventSelection(snap dashboard.Snapshot) events.Selection {
	return events.Selection{
		Indicators: snap.IDs(),
		Labels:     snap.Labels(),
		Range:      snap.Range,
		Version:    snap.Version,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
