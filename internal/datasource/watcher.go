package datasource

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherStats tracks watcher activity
type WatcherStats struct {
	Events     int       `json:"events"`
	Reloads    int       `json:"reloads"`
	Errors     int       `json:"errors"`
	LastReload time.Time `json:"last_reload"`
}

// Watcher reloads a file-backed source when its files change.
// Bursts of events within the debounce window trigger one reload.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	target      Reloader
	dir         string
	match       func(name string) bool
	debounceDur time.Duration
	pendingAt   time.Time
	onReload    func(error)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       WatcherStats
	logger      *slog.Logger
}

// NewWatcher watches path, a CSV directory or a single workbook file
func NewWatcher(path string, target Reloader, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	w := &Watcher{
		watcher:     fw,
		target:      target,
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger.With(slog.String("component", "datasource_watcher")),
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		w.dir = path
		w.match = func(name string) bool {
			return strings.EqualFold(filepath.Ext(name), ".csv")
		}
	} else {
		w.dir = filepath.Dir(path)
		base := filepath.Base(path)
		w.match = func(name string) bool {
			return filepath.Base(name) == base
		}
	}
	return w, nil
}

// SetDebounce changes the quiet period required before a reload
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDur = d
}

// OnReload registers a callback run after every reload attempt
func (w *Watcher) OnReload(fn func(error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Start begins watching. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("watching data files", slog.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine to exit
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("closing watcher failed", slog.String("error", err.Error()))
	}
}

// Stats returns a copy of the watcher counters
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", slog.String("error", err.Error()))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processPending(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.match(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.mu.Lock()
	w.stats.Events++
	w.pendingAt = time.Now()
	w.mu.Unlock()

	w.logger.Debug("data file changed", slog.String("file", event.Name), slog.String("op", event.Op.String()))
}

func (w *Watcher) processPending(ctx context.Context) {
	w.mu.Lock()
	if w.pendingAt.IsZero() || time.Since(w.pendingAt) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	w.pendingAt = time.Time{}
	onReload := w.onReload
	w.mu.Unlock()

	err := w.target.Reload(ctx)

	w.mu.Lock()
	if err != nil {
		w.stats.Errors++
	} else {
		w.stats.Reloads++
		w.stats.LastReload = time.Now()
	}
	w.mu.Unlock()

	if onReload != nil {
		onReload(err)
	}
}
