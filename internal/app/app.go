package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"straitpulse/internal/config"
	"straitpulse/internal/dashboard"
	"straitpulse/internal/datasource"
	apierrors "straitpulse/internal/errors"
	"straitpulse/internal/exporter"
	"straitpulse/internal/infrastructure"
	customMiddleware "straitpulse/internal/middleware"
	"straitpulse/internal/services"
	handlers "straitpulse/internal/transport/http"
	"straitpulse/internal/validation"
	ws "straitpulse/internal/websocket"
	"straitpulse/pkg/contracts"
	"straitpulse/pkg/contracts/events"
)

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.DashboardMetrics
	ErrorHandler  *apierrors.ErrorHandler
	Controller    *dashboard.Controller
	Data          *datasource.Handle
	WebSocketHub  *ws.Hub
	Services      *ServiceContainer
}

// ServiceContainer holds all application services
type ServiceContainer struct {
	Dashboard *services.DashboardService
	Export    *services.ExportService
	Health    *services.HealthService
}

// NewApplication loads configuration from the environment and wires the
// application
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return New(cfg, logger)
}

// New wires an application from an already loaded configuration
func New(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.String("commit", contracts.GitCommit))

	paths, err := cfg.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution(logger)

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, contracts.Version, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	metrics, err := infrastructure.NewDashboardMetrics(otelProviders.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: otelProviders,
		Metrics:       metrics,
		ErrorHandler:  apierrors.NewErrorHandler(logger, cfg.Telemetry.Environment == "development"),
	}

	if err := app.initializeServices(context.Background()); err != nil {
		app.release()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the dashboard state, the data source, the event
// hub and the services on top of them
func (a *Application) initializeServices(ctx context.Context) error {
	layout, err := a.loadLayout()
	if err != nil {
		return err
	}
	catalog, registry, err := layout.Build()
	if err != nil {
		return fmt.Errorf("invalid dashboard layout: %w", err)
	}

	controller, err := dashboard.NewController(catalog, registry,
		dashboard.WithDefaultRangeDays(a.Config.Dashboard.DefaultRangeDays),
		dashboard.WithLogger(a.Logger))
	if err != nil {
		return fmt.Errorf("failed to create dashboard controller: %w", err)
	}
	a.Controller = controller

	dsCfg := a.Config.DataSource
	if dsCfg.Path != "" && !filepath.IsAbs(dsCfg.Path) {
		dsCfg.Path = filepath.Join(a.Paths.DataDir, dsCfg.Path)
	}
	if err := validation.NewPathValidator(a.Logger).ValidateSource(dsCfg.Kind, dsCfg.Path); err != nil {
		return fmt.Errorf("invalid data source: %w", err)
	}
	data, err := datasource.Open(ctx, dsCfg, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open data source: %w", err)
	}
	a.Data = data

	if data.Cache != nil {
		cache := data.Cache
		if err := infrastructure.RegisterCacheObservers(a.OTelProviders.Meter, func() (int64, int64, int64) {
			s := cache.Stats()
			return s.HitCount, s.MissCount, int64(s.Entries)
		}); err != nil {
			a.Logger.Warn("Failed to register cache observers", slog.String("error", err.Error()))
		}
	}

	a.WebSocketHub = ws.NewHub(a.Logger,
		ws.WithMetrics(a.Metrics),
		ws.WithKeepalive(a.Config.WebSocket.PingPeriod, a.Config.WebSocket.PongWait))

	dashboardService, err := services.NewDashboardService(controller, a.WebSocketHub, a.Metrics, a.Logger)
	if err != nil {
		return err
	}

	exportOptions, err := exporter.OptionsFromConfig(a.Config.Export)
	if err != nil {
		return fmt.Errorf("invalid export configuration: %w", err)
	}
	var archive *exporter.CSVWriter
	if a.Config.Export.Archive {
		archive = exporter.NewCSVWriter(a.Paths.ExportsDir, a.Logger)
	}
	exportService, err := services.NewExportService(controller, data.Source, exportOptions, archive, a.WebSocketHub, a.Metrics, a.Logger)
	if err != nil {
		return err
	}

	a.Services = &ServiceContainer{
		Dashboard: dashboardService,
		Export:    exportService,
		Health:    services.NewHealthService(controller, a.WebSocketHub, data, a.Logger),
	}

	if data.Watcher != nil {
		source := data.Kind
		path := dsCfg.Path
		data.Watcher.OnReload(func(err error) {
			if err != nil {
				infrastructure.RecordSystemError(context.Background(), a.Metrics, "reload_failed", "datasource")
				return
			}
			pubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := a.WebSocketHub.Publish(pubCtx, events.MessageTypeDataReloaded, events.DataReloaded{Source: source, Path: path}); err != nil && !errors.Is(err, ws.ErrHubStopped) {
				a.Logger.Warn("Failed to publish data reload", slog.String("error", err.Error()))
			}
		})
	}

	return nil
}

// loadLayout reads the configured layout file, or the built-in layout
func (a *Application) loadLayout() (dashboard.Layout, error) {
	file := a.Config.Dashboard.LayoutFile
	if file == "" {
		return dashboard.DefaultLayout()
	}
	layout, err := dashboard.LoadLayout(file)
	if err != nil {
		return dashboard.Layout{}, fmt.Errorf("failed to load dashboard layout: %w", err)
	}
	a.Logger.Info("Dashboard layout loaded", slog.String("file", file))
	return layout, nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()
	r.NotFound(a.ErrorHandler.NotFound)
	r.MethodNotAllowed(a.ErrorHandler.MethodNotAllowed)

	// Minimal middleware only: the websocket route needs an unwrapped writer
	r.Use(customMiddleware.RequestID)
	r.Use(middleware.RealIP)

	upgrader := ws.NewUpgrader(a.Config.WebSocket, a.Config.Security.AllowedOrigins)
	r.With(customMiddleware.WebSocketTraceMiddleware(a.Logger)).
		Get("/ws", ws.Handler(a.WebSocketHub, upgrader, a.ErrorHandler))

	metricsHandler := handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP, a.WebSocketHub, a.Data)
	if metricsHandler.Enabled() {
		r.Get("/metrics", metricsHandler.ServeMetrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.NewOTelMiddleware(a.OTelProviders, a.Metrics).Handler)
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(apierrors.RecoveryMiddleware(a.ErrorHandler))
		r.Use(customMiddleware.DefaultSecureHeaders().Handler)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}

		health := handlers.NewHealthHandler(a.Services.Health, a.Logger)
		r.Get("/healthz", health.HealthCheck)
		r.Get("/livez", health.LivenessCheck)
		r.Get("/readyz", health.ReadinessCheck)
		r.Get("/version", health.Version)

		r.Group(func(r chi.Router) {
			if a.Config.Security.RateLimit.Enabled {
				r.Use(customMiddleware.NewRateLimiter(
					a.Config.Security.RateLimit.RPS,
					a.Config.Security.RateLimit.Burst,
					a.Logger,
					a.ErrorHandler,
				).Handler)
			}
			r.Use(customMiddleware.Timeout(a.Config.Server.RequestTimeout))

			a.setupAPIRoutes(r)
		})
	})

	a.Router = r
}

// setupAPIRoutes configures the versioned API
func (a *Application) setupAPIRoutes(r chi.Router) {
	validator := customMiddleware.NewValidationMiddleware(a.Logger, a.ErrorHandler)
	dashboardHandler := handlers.NewDashboardHandler(a.Services.Dashboard, a.Services.Export, validator, a.Logger, a.ErrorHandler)
	metricsHandler := handlers.NewMetricsHandler(nil, a.WebSocketHub, a.Data)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(customMiddleware.AuditLog(a.Logger)).Mount("/dashboard", dashboardHandler.Routes())
		r.Get("/stats", metricsHandler.GetStats)
	})
}

// getCORSConfig returns the CORS configuration for the API
func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins: a.Config.Security.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"If-None-Match",
			customMiddleware.RequestIDHeader,
		},
		ExposedHeaders: []string{
			customMiddleware.RequestIDHeader,
			"ETag",
			"Content-Disposition",
		},
		MaxAge: 300,
		Logger: a.Logger,
	}
}

// createServer creates the HTTP server
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(a.Logger.Handler(), slog.LevelWarn),
	}
}

// Start starts background services and the HTTP server. A listener failure
// calls cancel so Run can shut down instead of exiting the process.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level),
		slog.String("datasource", a.Data.Kind))

	a.WebSocketHub.Start()

	if err := a.Data.Start(ctx); err != nil {
		return fmt.Errorf("failed to start data source watcher: %w", err)
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if err := a.performStartupHealthCheck(ctx); err != nil {
		a.Logger.WarnContext(ctx, "Startup health check warnings", slog.String("warnings", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.Server != nil {
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if err := a.release(); err != nil {
		errs = append(errs, err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return errors.Join(errs...)
}

// release stops the hub, detaches services and closes the data source
func (a *Application) release() error {
	if a.Services != nil && a.Services.Dashboard != nil {
		a.Services.Dashboard.Close()
	}
	if a.WebSocketHub != nil {
		a.WebSocketHub.Stop()
	}
	if a.Data != nil {
		if err := a.Data.Close(); err != nil {
			return fmt.Errorf("data source close error: %w", err)
		}
	}
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case sig := <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		a.Logger.WarnContext(ctx, "Server stopped unexpectedly")
	}

	return a.Stop(context.Background())
}

// performStartupHealthCheck verifies the exports directory is writable and
// the data source answers
func (a *Application) performStartupHealthCheck(ctx context.Context) error {
	var warnings []string

	if a.Config.Export.Archive {
		if err := validation.NewPathValidator(a.Logger).ValidateOutputDirectory(a.Paths.ExportsDir); err != nil {
			warnings = append(warnings, fmt.Sprintf("exports directory not writable: %v", err))
		}
	}

	if err := a.Data.Ping(ctx); err != nil {
		warnings = append(warnings, fmt.Sprintf("data source unreachable: %v", err))
	}

	if len(warnings) > 0 {
		return fmt.Errorf("startup health check warnings: %s", strings.Join(warnings, "; "))
	}

	a.Logger.InfoContext(ctx, "Startup health check passed")
	return nil
}
