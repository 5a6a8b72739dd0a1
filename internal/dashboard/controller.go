package dashboard

import (
	"log/slog"
	"sync"
	"time"

	"straitpulse/pkg/contracts/domain"
)

// DefaultRangeDays is the length of the trailing range a new dashboard shows
const DefaultRangeDays = 30

// ChangeKind names a selection mutation
type ChangeKind string

const (
	ChangeIndicatorToggled ChangeKind = "indicator_toggled"
	ChangeIndicatorsSet    ChangeKind = "indicators_set"
	ChangeRangeSet         ChangeKind = "range_set"
	ChangeReset            ChangeKind = "reset"
)

// Change is delivered to listeners after every successful mutation
type Change struct {
	Kind        ChangeKind `json:"kind"`
	IndicatorID string     `json:"indicator_id,omitempty"`
	Active      bool       `json:"active,omitempty"`
	Snapshot    Snapshot   `json:"snapshot"`
}

// Listener receives change notifications. Listeners run synchronously on the
// mutating goroutine, after the controller lock has been released.
type Listener func(Change)

// PanelState pairs a panel with its current renderability
type PanelState struct {
	Panel      domain.Panel `json:"panel"`
	Renderable bool         `json:"renderable"`
}

type subscription struct {
	id int
	fn Listener
}

// Controller owns the selection and is the only way to change it.
// Every mutation is atomic: it either applies in full or leaves the
// selection untouched and returns an error.
type Controller struct {
	catalog  *Catalog
	registry *Registry

	mu        sync.RWMutex
	selection Selection
	version   uint64

	listenersMu sync.Mutex
	listeners   []subscription
	nextID      int

	now       func() time.Time
	rangeDays int
	initial   *domain.DateRange
	logger    *slog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock overrides the time source used for default ranges and snapshots
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithDefaultRangeDays sets the length of the trailing default range
func WithDefaultRangeDays(days int) Option {
	return func(c *Controller) {
		if days > 0 {
			c.rangeDays = days
		}
	}
}

// WithInitialRange starts the dashboard on an explicit range
func WithInitialRange(r domain.DateRange) Option {
	return func(c *Controller) {
		c.initial = &r
	}
}

// NewController creates a controller whose selection starts from each
// indicator's default flag and the default range.
func NewController(catalog *Catalog, registry *Registry, opts ...Option) (*Controller, error) {
	if catalog == nil || registry == nil {
		return nil, &ConfigurationError{Problems: []string{"catalog and registry are required"}}
	}

	c := &Controller{
		catalog:   catalog,
		registry:  registry,
		now:       time.Now,
		rangeDays: DefaultRangeDays,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	rng, err := c.defaultRange()
	if err != nil {
		return nil, err
	}
	c.selection = newSelection(catalog.Defaults(), rng)
	c.logger = c.logger.With(slog.String("component", "dashboard"))

	return c, nil
}

func (c *Controller) defaultRange() (domain.DateRange, error) {
	if c.initial != nil {
		r := domain.NewDateRange(c.initial.Start, c.initial.End)
		if !r.Valid() {
			return domain.DateRange{}, &InvalidRangeError{Start: r.Start, End: r.End}
		}
		return r, nil
	}
	return domain.TrailingRange(c.now(), c.rangeDays), nil
}

// Catalog returns the indicator catalog
func (c *Controller) Catalog() *Catalog {
	return c.catalog
}

// Registry returns the panel registry
func (c *Controller) Registry() *Registry {
	return c.registry
}

// ToggleIndicator flips one indicator and returns its new state.
// The date range is never touched.
func (c *Controller) ToggleIndicator(id string) (bool, error) {
	change, err := c.ApplyToggle(id)
	return change.Active, err
}

// ApplyToggle is ToggleIndicator returning the whole change, including the
// snapshot taken under the same lock as the mutation
func (c *Controller) ApplyToggle(id string) (Change, error) {
	if !c.catalog.Has(id) {
		c.logger.Warn("toggle rejected", slog.String("indicator", id))
		return Change{}, &NotFoundError{Kind: "indicator", ID: id}
	}

	c.mu.Lock()
	active := c.selection.toggle(id)
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("indicator toggled",
		slog.String("indicator", id),
		slog.Bool("active", active),
		slog.Uint64("version", snap.Version))

	change := Change{Kind: ChangeIndicatorToggled, IndicatorID: id, Active: active, Snapshot: snap}
	c.notify(change)
	return change, nil
}

// SetActive replaces the whole active set. Every id is checked before
// anything changes.
func (c *Controller) SetActive(ids []string) error {
	_, err := c.ApplyActive(ids)
	return err
}

// ApplyActive is SetActive returning the resulting change
func (c *Controller) ApplyActive(ids []string) (Change, error) {
	next := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !c.catalog.Has(id) {
			c.logger.Warn("selection rejected", slog.String("indicator", id))
			return Change{}, &NotFoundError{Kind: "indicator", ID: id}
		}
		next[id] = true
	}

	c.mu.Lock()
	c.selection = newSelection(next, c.selection.rng)
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("indicators set", slog.Any("indicators", snap.IDs()))
	change := Change{Kind: ChangeIndicatorsSet, Snapshot: snap}
	c.notify(change)
	return change, nil
}

// SetRange replaces the date range. Both bounds change together or not at all.
func (c *Controller) SetRange(start, end time.Time) error {
	_, err := c.ApplyRange(start, end)
	return err
}

// ApplyRange is SetRange returning the resulting change
func (c *Controller) ApplyRange(start, end time.Time) (Change, error) {
	r := domain.NewDateRange(start, end)
	if !r.Valid() {
		c.logger.Warn("range rejected",
			slog.String("start", domain.FormatDate(r.Start)),
			slog.String("end", domain.FormatDate(r.End)))
		return Change{}, &InvalidRangeError{Start: r.Start, End: r.End}
	}

	c.mu.Lock()
	c.selection.rng = r
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Debug("range set", slog.String("range", r.String()))
	change := Change{Kind: ChangeRangeSet, Snapshot: snap}
	c.notify(change)
	return change, nil
}

// Reset restores the default indicators and the default range
func (c *Controller) Reset() error {
	_, err := c.ApplyReset()
	return err
}

// ApplyReset is Reset returning the resulting change
func (c *Controller) ApplyReset() (Change, error) {
	rng, err := c.defaultRange()
	if err != nil {
		return Change{}, err
	}

	c.mu.Lock()
	c.selection = newSelection(c.catalog.Defaults(), rng)
	c.version++
	snap := c.snapshotLocked()
	c.mu.Unlock()

	change := Change{Kind: ChangeReset, Snapshot: snap}
	c.notify(change)
	return change, nil
}

// Range returns the selected date range
func (c *Controller) Range() domain.DateRange {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection.rng
}

// IsActive reports whether an indicator is selected
func (c *Controller) IsActive(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection.active[id]
}

// ActiveIndicators returns the selected indicators in catalog order
func (c *Controller) ActiveIndicators() []domain.Indicator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog.filter(c.selection.active)
}

// RenderablePanels evaluates every panel against the current selection.
// Nothing is cached; each call reflects the selection at that moment.
func (c *Controller) RenderablePanels() []PanelState {
	return PanelStates(c.registry, c.Snapshot())
}

// Snapshot copies the selection. Exports work from a snapshot so later
// mutations never leak into a document being built.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Indicators: c.catalog.filter(c.selection.active),
		Range:      c.selection.rng,
		Version:    c.version,
		TakenAt:    c.now(),
	}
}

// Subscribe registers a listener and returns a function that removes it
func (c *Controller) Subscribe(fn Listener) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			defer c.listenersMu.Unlock()
			for i, s := range c.listeners {
				if s.id == id {
					c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

func (c *Controller) notify(change Change) {
	c.listenersMu.Lock()
	subs := make([]subscription, len(c.listeners))
	copy(subs, c.listeners)
	c.listenersMu.Unlock()

	for _, s := range subs {
		s.fn(change)
	}
}
