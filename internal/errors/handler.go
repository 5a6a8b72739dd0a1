package errors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"straitpulse/internal/dashboard"
)

// ErrorHandler converts errors into RFC 7807 responses
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	reqID := middleware.GetReqID(r.Context())
	problem := ErrorToProblem(err, r.URL.Path)
	problem.WithExtension("trace_id", reqID)

	level := slog.LevelWarn
	if problem.Status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.LogAttrs(r.Context(), level, "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	if h.includeStack && problem.Status >= http.StatusInternalServerError {
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// ErrorToProblem maps an error onto problem details. Dashboard errors map to
// their own statuses; anything unrecognized is a 500 with a generic detail.
func ErrorToProblem(err error, instance string) *ProblemDetails {
	var (
		apiErr     *APIError
		notFound   *dashboard.NotFoundError
		invalidRng *dashboard.InvalidRangeError
		exportErr  *dashboard.ExportError
		configErr  *dashboard.ConfigurationError
	)

	switch {
	case errors.As(err, &apiErr):
		return apiErrorToProblem(apiErr, instance)

	case errors.As(err, &notFound):
		return NewProblemDetails(http.StatusNotFound, TypeIndicatorNotFound,
			"Not Found", notFound.Error(), instance).
			WithExtension("resource", notFound.Kind).
			WithExtension("id", notFound.ID)

	case errors.As(err, &exportErr):
		return exportProblem(exportErr, instance)

	case errors.As(err, &invalidRng):
		return invalidRangeProblem(invalidRng, instance)

	case errors.As(err, &configErr):
		return NewProblemDetails(http.StatusInternalServerError, TypeConfiguration,
			"Configuration Error", configErr.Error(), instance)

	case errors.Is(err, context.DeadlineExceeded):
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			"Request Timeout", "The request took too long to process and was cancelled", instance)

	case errors.Is(err, context.Canceled):
		return NewProblemDetails(StatusClientClosedRequest, TypeCancelled,
			"Request Cancelled", "The request was cancelled before it completed", instance)

	default:
		return NewProblemDetails(http.StatusInternalServerError, TypeInternal,
			"Internal Server Error", "An unexpected error occurred while processing your request", instance)
	}
}

func exportProblem(e *dashboard.ExportError, instance string) *ProblemDetails {
	var invalidRng *dashboard.InvalidRangeError

	switch {
	case e.NoIndicators():
		return NewProblemDetails(http.StatusUnprocessableEntity, TypeNoIndicators,
			"Nothing To Export", e.Error(), instance)
	case errors.Is(e, context.DeadlineExceeded):
		return NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			"Export Timeout", e.Error(), instance)
	case errors.Is(e, context.Canceled):
		return NewProblemDetails(StatusClientClosedRequest, TypeCancelled,
			"Export Cancelled", e.Error(), instance)
	case errors.As(e, &invalidRng):
		return invalidRangeProblem(invalidRng, instance)
	default:
		return NewProblemDetails(http.StatusBadGateway, TypeDataSource,
			"Data Source Failure", e.Error(), instance)
	}
}

func invalidRangeProblem(e *dashboard.InvalidRangeError, instance string) *ProblemDetails {
	return NewProblemDetails(http.StatusBadRequest, TypeInvalidRange,
		"Invalid Date Range", e.Error(), instance).
		WithExtension("start", e.Start.Format("2006-01-02")).
		WithExtension("end", e.End.Format("2006-01-02"))
}

func apiErrorToProblem(apiErr *APIError, instance string) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.ErrorCode {
	case CodeValidationFailed, CodeInvalidRequest, CodeInvalidJSON, CodeUnsupportedMedia:
		problemType = TypeValidation
	case CodeNotFound:
		problemType = TypeNotFound
	case CodePayloadTooLarge:
		problemType = TypePayloadTooLarge
	case CodeRateLimited:
		problemType = TypeRateLimit
	case CodeUnavailable:
		problemType = TypeServiceDown
	case CodeWebSocketUpgrade:
		problemType = TypeWebSocketUpgrade
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		instance,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// HandlePanic logs a recovered panic and responds with a 500 problem
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	reqID := middleware.GetReqID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("request_id", reqID),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", reqID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", getStackTrace())
	}

	render.Render(w, r, problem)
}

// NotFound returns a standard 404 error
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusNotFound,
		TypeNotFound,
		"Not Found",
		"The requested resource was not found",
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

// MethodNotAllowed returns a standard 405 error
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	problem := NewProblemDetails(
		http.StatusMethodNotAllowed,
		TypeMethodNotAllowed,
		"Method Not Allowed",
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method),
		r.URL.Path,
	).WithExtension("trace_id", middleware.GetReqID(r.Context()))

	render.Render(w, r, problem)
}

func getStackTrace() string {
	buf := make([]byte, 1024*8)
	n := runtime.Stack(buf, false)
	return string(buf[:n])
}
