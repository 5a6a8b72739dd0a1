package datasource

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"straitpulse/internal/infrastructure"
)

// LoadFunc reads a file-backed feed into per-indicator values
type LoadFunc func(path string) (map[string]Values, error)

// FileSource serves values loaded from a CSV directory or a workbook.
// Reload swaps the content atomically; queries never see a half-loaded state.
type FileSource struct {
	*MemorySource

	path   string
	load   LoadFunc
	logger *slog.Logger

	mu sync.Mutex
}

// NewFileSource loads path once and returns the source
func NewFileSource(ctx context.Context, path string, load LoadFunc, logger *slog.Logger) (*FileSource, error) {
	fs := &FileSource{
		MemorySource: NewMemorySource(),
		path:         path,
		load:         load,
		logger:       infrastructure.WithComponent(logger, "datasource").With(slog.String("path", path)),
	}
	if err := fs.Reload(ctx); err != nil {
		return nil, err
	}
	return fs, nil
}

// Path returns the watched file or directory
func (f *FileSource) Path() string {
	return f.path
}

// Reload re-reads the backing file. On failure the previous content is kept.
func (f *FileSource) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	start := time.Now()
	values, err := f.load(f.path)
	if err != nil {
		infrastructure.WithError(f.logger, err).Error("data reload failed")
		return err
	}
	f.MemorySource.Replace(values)

	f.logger.Info("data loaded",
		slog.Int("indicators", len(values)),
		slog.Duration("duration", time.Since(start)))
	return nil
}
