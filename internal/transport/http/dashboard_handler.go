package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apierrors "straitpulse/internal/errors"
	"straitpulse/internal/exporter"
	appmiddleware "straitpulse/internal/middleware"
	"straitpulse/internal/services"
	api "straitpulse/pkg/contracts/api/v1"
)

// DashboardHandler serves the selection and export endpoints
type DashboardHandler struct {
	service      DashboardServiceInterface
	exports      ExportServiceInterface
	validator    *appmiddleware.ValidationMiddleware
	query        *appmiddleware.QueryParamValidator
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service DashboardServiceInterface, exports ExportServiceInterface, validator *appmiddleware.ValidationMiddleware, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *DashboardHandler {
	return &DashboardHandler{
		service:      service,
		exports:      exports,
		validator:    validator,
		query:        appmiddleware.NewQueryParamValidator(logger, errorHandler),
		logger:       logger.With(slog.String("component", "dashboard_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the dashboard routes
func (h *DashboardHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/indicators", h.ListIndicators)
		r.Get("/panels", h.ListPanels)
		r.Get("/selection", h.GetSelection)
		r.Get("/view", h.GetView)

		// Mutations carry JSON bodies, or none at all
		r.Group(func(r chi.Router) {
			r.Use(h.validator.ContentTypeValidator("application/json"))
			r.Use(h.validator.ValidateRequest)

			r.Put("/indicators", h.SetIndicators)
			r.Post("/indicators/{id}/toggle", h.ToggleIndicator)
			r.Put("/range", h.SetRange)
			r.Post("/reset", h.Reset)
		})
	})

	r.Get("/export.csv", h.ExportCSV)

	return r
}

// ListIndicators handles GET /api/v1/dashboard/indicators
func (h *DashboardHandler) ListIndicators(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Indicators(r.Context()))
}

// ListPanels handles GET /api/v1/dashboard/panels
func (h *DashboardHandler) ListPanels(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Panels(r.Context()))
}

// GetSelection handles GET /api/v1/dashboard/selection
func (h *DashboardHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Selection(r.Context()))
}

// GetView handles GET /api/v1/dashboard/view
func (h *DashboardHandler) GetView(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.View(r.Context()))
}

// ToggleIndicator handles POST /api/v1/dashboard/indicators/{id}/toggle
func (h *DashboardHandler) ToggleIndicator(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.validator.ValidateVar("id", id, "required,indicator_id"); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp, err := h.service.ToggleIndicator(r.Context(), id)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// SetIndicators handles PUT /api/v1/dashboard/indicators
func (h *DashboardHandler) SetIndicators(w http.ResponseWriter, r *http.Request) {
	var req api.SetIndicatorsRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.service.SetIndicators(r.Context(), req.Indicators)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// SetRange handles PUT /api/v1/dashboard/range
func (h *DashboardHandler) SetRange(w http.ResponseWriter, r *http.Request) {
	var req api.SetRangeRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, end, err := req.Dates()
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	resp, err := h.service.SetRange(r.Context(), start, end)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// Reset handles POST /api/v1/dashboard/reset
func (h *DashboardHandler) Reset(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Reset(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, resp)
}

// decode reads a JSON body into v and validates it. On failure the problem
// response has been written.
func (h *DashboardHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
		return false
	}
	if err := h.validator.ValidateStruct(v); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return false
	}
	return true
}

// ExportCSV handles GET /api/v1/dashboard/export.csv.
//
// Query parameters line_ending (lf|crlf) and bom (bool) override the
// configured format for this download.
func (h *DashboardHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	var req services.ExportRequest

	lineEnding, ok := h.query.ValidateEnum(w, r, "line_ending", []string{string(exporter.LF), string(exporter.CRLF)}, "")
	if !ok {
		return
	}
	req.LineTerminator = exporter.LineTerminator(lineEnding)

	if r.URL.Query().Has("bom") {
		bom, ok := h.query.ValidateBool(w, r, "bom", false)
		if !ok {
			return
		}
		req.BOM = &bom
	}

	doc, err := h.exports.Export(r.Context(), req)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.DebugContext(r.Context(), "Serving export",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("filename", doc.Filename),
		slog.Uint64("selection_version", doc.Version))

	w.Header().Set("ETag", doc.ETag())
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), doc.ETag()) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", exporter.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(doc.Size()))
	w.WriteHeader(http.StatusOK)
	w.Write(doc.Bytes)
}

// etagMatches implements the weak comparison If-None-Match calls for
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" {
			return true
		}
		if strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
