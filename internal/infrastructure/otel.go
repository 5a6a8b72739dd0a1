package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"straitpulse/internal/config"
)

// InstrumentationName names the tracer and meter
const InstrumentationName = "straitpulse"

// Export outcomes recorded on the exports_total counter
const (
	ExportOutcomeSuccess      = "success"
	ExportOutcomeNoIndicators = "no_indicators"
	ExportOutcomeDataSource   = "data_source"
	ExportOutcomeCancelled    = "cancelled"
)

// OTelProviders holds the OpenTelemetry providers. Tracer and Meter are
// always usable; they are no-ops when the feature is disabled.
type OTelProviders struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
	Tracer         trace.Tracer
	Meter          metric.Meter
	// PrometheusHTTP serves the scrape endpoint; nil when metrics are off
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel sets up tracing and metrics from the telemetry config
func InitializeOTel(cfg config.TelemetryConfig, version string, logger *slog.Logger) (*OTelProviders, error) {
	if logger == nil {
		logger = GetLogger()
	}
	ctx := context.Background()

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(version),
		semconv.DeploymentEnvironmentName(cfg.Environment),
		attribute.String("service.instance.id", generateInstanceID()),
	)

	providers := &OTelProviders{
		Tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		Meter:  metricnoop.NewMeterProvider().Meter(InstrumentationName),
		Logger: logger,
	}

	if cfg.TracingEnabled {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		providers.TracerProvider = tp
		providers.Tracer = tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(version))
		otel.SetTracerProvider(tp)
	}

	if cfg.MetricsEnabled {
		registry := promclient.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		providers.MeterProvider = mp
		providers.Meter = mp.Meter(InstrumentationName, metric.WithInstrumentationVersion(version))
		providers.PrometheusHTTP = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.InfoContext(ctx, "OpenTelemetry initialized",
		slog.String("service", cfg.ServiceName),
		slog.String("version", version),
		slog.Bool("tracing_enabled", cfg.TracingEnabled),
		slog.Bool("metrics_enabled", cfg.MetricsEnabled))

	return providers, nil
}

// Shutdown flushes and stops the providers
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	var errs []error

	if p.TracerProvider != nil {
		if err := p.TracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if p.MeterProvider != nil {
		if err := p.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func generateInstanceID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}

// DashboardMetrics holds the application metrics
type DashboardMetrics struct {
	HTTPRequestsTotal   metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
	HTTPActiveRequests  metric.Int64UpDownCounter

	SelectionChanges    metric.Int64Counter
	SelectionRejections metric.Int64Counter

	ExportsTotal   metric.Int64Counter
	ExportDuration metric.Float64Histogram
	ExportBytes    metric.Int64Counter
	ExportRows     metric.Int64Histogram

	WebSocketClients metric.Int64UpDownCounter
	SystemErrors     metric.Int64Counter
}

// NewDashboardMetrics creates every instrument on meter
func NewDashboardMetrics(meter metric.Meter) (*DashboardMetrics, error) {
	m := &DashboardMetrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.HTTPRequestsTotal, "http_requests_total", "Total number of HTTP requests", ""},
		{&m.SelectionChanges, "selection_changes_total", "Accepted selection mutations", ""},
		{&m.SelectionRejections, "selection_rejections_total", "Rejected selection mutations", ""},
		{&m.ExportsTotal, "exports_total", "CSV exports by outcome", ""},
		{&m.ExportBytes, "export_bytes_total", "Bytes of CSV produced", "By"},
		{&m.SystemErrors, "system_errors_total", "Total number of system errors", ""},
	}
	for _, c := range counters {
		opts := []metric.Int64CounterOption{metric.WithDescription(c.desc)}
		if c.unit != "" {
			opts = append(opts, metric.WithUnit(c.unit))
		}
		if *c.dst, err = meter.Int64Counter(c.name, opts...); err != nil {
			return nil, err
		}
	}

	if m.HTTPRequestDuration, err = meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ExportDuration, err = meter.Float64Histogram("export_duration_seconds",
		metric.WithDescription("CSV export duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.ExportRows, err = meter.Int64Histogram("export_rows",
		metric.WithDescription("Rows per CSV export")); err != nil {
		return nil, err
	}
	if m.HTTPActiveRequests, err = meter.Int64UpDownCounter("http_active_requests",
		metric.WithDescription("Number of active HTTP requests")); err != nil {
		return nil, err
	}
	if m.WebSocketClients, err = meter.Int64UpDownCounter("websocket_clients",
		metric.WithDescription("Connected WebSocket clients")); err != nil {
		return nil, err
	}

	return m, nil
}

// CacheStatsFunc reports cumulative cache hits, misses and current size
type CacheStatsFunc func() (hits, misses, size int64)

// RegisterCacheObservers exposes data source cache statistics as observable
// instruments read at collection time
func RegisterCacheObservers(meter metric.Meter, stats CacheStatsFunc) error {
	hits, err := meter.Int64ObservableCounter("datasource_cache_hits_total",
		metric.WithDescription("Data source cache hits"))
	if err != nil {
		return err
	}
	misses, err := meter.Int64ObservableCounter("datasource_cache_misses_total",
		metric.WithDescription("Data source cache misses"))
	if err != nil {
		return err
	}
	size, err := meter.Int64ObservableGauge("datasource_cache_entries",
		metric.WithDescription("Entries held by the data source cache"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		h, m, s := stats()
		o.ObserveInt64(hits, h)
		o.ObserveInt64(misses, m)
		o.ObserveInt64(size, s)
		return nil
	}, hits, misses, size)
	return err
}

// RecordSelectionChange counts an accepted selection mutation
func RecordSelectionChange(ctx context.Context, m *DashboardMetrics, kind string) {
	if m == nil {
		return
	}
	m.SelectionChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSelectionRejection counts a rejected selection mutation
func RecordSelectionRejection(ctx context.Context, m *DashboardMetrics, reason string) {
	if m == nil {
		return
	}
	m.SelectionRejections.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordExport records one export attempt
func RecordExport(ctx context.Context, m *DashboardMetrics, outcome string, duration time.Duration, bytes, rows int) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ExportsTotal.Add(ctx, 1, attrs)
	m.ExportDuration.Record(ctx, duration.Seconds(), attrs)
	if outcome == ExportOutcomeSuccess {
		m.ExportBytes.Add(ctx, int64(bytes))
		m.ExportRows.Record(ctx, int64(rows))
	}

	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("export.completed", trace.WithAttributes(
			attribute.String("outcome", outcome),
			attribute.Int("bytes", bytes),
			attribute.Int("rows", rows),
		))
	}
}

// RecordSystemError counts an unexpected failure in a component
func RecordSystemError(ctx context.Context, m *DashboardMetrics, errorType, component string) {
	if m == nil {
		return
	}
	m.SystemErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("error.type", errorType),
		attribute.String("component", component),
	))
}

// TraceIDFromContext extracts the OpenTelemetry trace ID, if any
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

// RecordError records an error on the current span
func RecordError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanAttributes sets attributes on the current span
func SetSpanAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}
