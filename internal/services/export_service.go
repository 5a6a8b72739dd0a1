package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"straitpulse/internal/dashboard"
	"straitpulse/internal/datasource"
	"straitpulse/internal/exporter"
	"straitpulse/internal/infrastructure"
	"straitpulse/internal/websocket"
	"straitpulse/pkg/contracts/events"
)

// ExportRequest overrides the configured document format for one export.
// Zero values keep the configured defaults.
type ExportRequest struct {
	LineTerminator exporter.LineTerminator
	BOM            *bool
}

// ExportService builds CSV documents from the current selection
type ExportService struct {
	controller *dashboard.Controller
	source     datasource.Source
	options    exporter.Options
	archive    *exporter.CSVWriter
	publisher  EventPublisher
	metrics    *infrastructure.DashboardMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewExportService creates an export service. archive, publisher and
// metrics may be nil.
func NewExportService(controller *dashboard.Controller, source datasource.Source, options exporter.Options, archive *exporter.CSVWriter, publisher EventPublisher, metrics *infrastructure.DashboardMetrics, logger *slog.Logger) (*ExportService, error) {
	if controller == nil {
		return nil, ErrNilController
	}
	if source == nil {
		return nil, ErrNoSource
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ExportService{
		controller: controller,
		source:     source,
		options:    options,
		archive:    archive,
		publisher:  publisher,
		metrics:    metrics,
		tracer:     otel.Tracer(infrastructure.InstrumentationName),
		logger:     logger.With(slog.String("service", "export")),
	}, nil
}

// Export snapshots the selection and serializes it. The snapshot is taken
// before any data is fetched, so mutations made while the export runs do
// not affect the document.
func (s *ExportService) Export(ctx context.Context, req ExportRequest) (*exporter.Document, error) {
	snap := s.controller.Snapshot()

	ctx, span := s.tracer.Start(ctx, "export.csv",
		trace.WithAttributes(
			attribute.StringSlice("export.indicators", snap.IDs()),
			attribute.String("export.range", snap.Range.String()),
			attribute.Int64("export.selection_version", int64(snap.Version)),
		))
	defer span.End()

	opts := s.options
	if req.LineTerminator != "" {
		opts.LineTerminator = req.LineTerminator
	}
	if req.BOM != nil {
		opts.BOM = *req.BOM
	}

	start := time.Now()
	doc, err := exporter.Export(ctx, snap, s.source, opts)
	duration := time.Since(start)

	if err != nil {
		outcome := exportOutcome(err)
		infrastructure.RecordExport(ctx, s.metrics, outcome, duration, 0, 0)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		level := slog.LevelError
		if outcome != infrastructure.ExportOutcomeDataSource {
			level = slog.LevelWarn
		}
		s.logger.Log(ctx, level, "Export failed",
			slog.String("outcome", outcome),
			slog.Any("indicators", snap.IDs()),
			slog.String("range", snap.Range.String()),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, err
	}

	infrastructure.RecordExport(ctx, s.metrics, infrastructure.ExportOutcomeSuccess, duration, doc.Size(), doc.Rows)
	span.SetAttributes(
		attribute.Int("export.rows", doc.Rows),
		attribute.Int("export.bytes", doc.Size()),
	)

	s.logger.InfoContext(ctx, "Export completed",
		slog.String("filename", doc.Filename),
		slog.Any("indicators", doc.Indicators),
		slog.Int("days", doc.Range.Days()),
		slog.Int("bytes", doc.Size()),
		slog.Duration("duration", duration))

	if s.archive != nil {
		if _, err := s.archive.WriteDocument(ctx, doc); err != nil {
			// the download still succeeds
			s.logger.ErrorContext(ctx, "Failed to archive export",
				slog.String("filename", doc.Filename),
				slog.String("error", err.Error()))
			infrastructure.RecordSystemError(ctx, s.metrics, "archive_failed", "export_service")
		}
	}

	s.publish(ctx, doc)
	return doc, nil
}

func (s *ExportService) publish(ctx context.Context, doc *exporter.Document) {
	if s.publisher == nil {
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err := s.publisher.Publish(pctx, events.MessageTypeExportCompleted, events.ExportCompleted{
		Filename:   doc.Filename,
		Indicators: doc.Indicators,
		Range:      doc.Range,
		Rows:       doc.Rows,
		Bytes:      doc.Size(),
		Digest:     doc.Digest,
	})
	if err != nil && !errors.Is(err, websocket.ErrHubStopped) {
		s.logger.WarnContext(ctx, "Failed to publish export event",
			slog.String("error", err.Error()))
	}
}

func exportOutcome(err error) string {
	var exportErr *dashboard.ExportError
	if !errors.As(err, &exportErr) {
		return infrastructure.ExportOutcomeDataSource
	}
	switch {
	case exportErr.NoIndicators():
		return infrastructure.ExportOutcomeNoIndicators
	case exportErr.Reason == exporter.ReasonCancelled:
		return infrastructure.ExportOutcomeCancelled
	default:
		return infrastructure.ExportOutcomeDataSource
	}
}
