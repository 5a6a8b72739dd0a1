package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"straitpulse/internal/config"
	"straitpulse/pkg/contracts/domain"
)

// Handle bundles an opened source with the pieces that keep it fresh
type Handle struct {
	// Source is what exports read from; cached when caching is enabled
	Source  Source
	Cache   *CachedSource
	Watcher *Watcher
	Kind    string

	pinger  Pinger
	closers []func() error
}

// Pinger is implemented by sources backed by a network connection
type Pinger interface {
	Ping(ctx context.Context) error
}

// TransformOptionsFromConfig reads the file feed transforms of cfg
func TransformOptionsFromConfig(cfg config.DataSourceConfig) (TransformOptions, error) {
	opts := TransformOptions{ForwardFill: cfg.ForwardFill, Base100: cfg.Base100}
	if cfg.BaseDate != "" {
		d, err := domain.ParseDate(cfg.BaseDate)
		if err != nil {
			return TransformOptions{}, fmt.Errorf("base date: %w", err)
		}
		opts.BaseDate = d
	}
	return opts, nil
}

// Open builds the data source described by cfg
func Open(ctx context.Context, cfg config.DataSourceConfig, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := TransformOptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	h := &Handle{Kind: cfg.Kind}
	var upstream Source

	switch cfg.Kind {
	case KindMemory, "":
		h.Kind = KindMemory
		upstream = NewMemorySource()
		logger.Warn("memory data source is empty; exported columns stay blank until values are set",
			slog.String("hint", "use the csv, xlsx, postgres or sqlite kind for real data"))

	case KindCSV, KindXLSX:
		load := func(path string) (map[string]Values, error) {
			return LoadCSVDir(path, cfg.Symbols, opts)
		}
		if cfg.Kind == KindXLSX {
			load = func(path string) (map[string]Values, error) {
				return LoadWorkbook(path, cfg.Symbols, opts)
			}
		}
		fs, err := NewFileSource(ctx, cfg.Path, load, logger)
		if err != nil {
			return nil, err
		}
		upstream = fs

	case KindPostgres, KindSQLite:
		src, err := OpenSQL(ctx, cfg.Kind, cfg.DSN, cfg.Symbols, logger)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := src.EnsureSchema(ctx); err != nil {
				src.Close()
				return nil, err
			}
		}
		h.closers = append(h.closers, src.Close)
		h.pinger = src
		upstream = src

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, cfg.Kind)
	}

	h.Source = upstream
	if cfg.CacheTTL > 0 && cfg.CacheSize > 0 && h.Kind != KindMemory {
		h.Cache = NewCachedSource(upstream, cfg.CacheTTL, cfg.CacheSize)
		h.Source = h.Cache
		h.closers = append(h.closers, func() error {
			h.Cache.Stop()
			return nil
		})
	}

	if cfg.Watch && (h.Kind == KindCSV || h.Kind == KindXLSX) {
		var target Reloader = upstream.(Reloader)
		if h.Cache != nil {
			target = h.Cache
		}
		w, err := NewWatcher(cfg.Path, target, logger)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("create watcher: %w", err)
		}
		h.Watcher = w
	}

	logger.Info("data source opened",
		slog.String("kind", h.Kind),
		slog.Bool("cached", h.Cache != nil),
		slog.Bool("watched", h.Watcher != nil))
	return h, nil
}

// Start begins background file watching, if configured
func (h *Handle) Start(ctx context.Context) error {
	if h.Watcher == nil {
		return nil
	}
	return h.Watcher.Start(ctx)
}

// Ping reports whether the source can answer queries. File and memory
// sources are always reachable once opened.
func (h *Handle) Ping(ctx context.Context) error {
	if h.pinger == nil {
		return nil
	}
	return h.pinger.Ping(ctx)
}

// Close stops background work and releases connections
func (h *Handle) Close() error {
	var errs []error
	if h.Watcher != nil {
		h.Watcher.Stop()
		h.Watcher = nil
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	return errors.Join(errs...)
}
