package datasource

import (
	"context"
	"sync"
	"time"

	"straitpulse/pkg/contracts/domain"
)

// MemorySource keeps indicator values in process
type MemorySource struct {
	mu     sync.RWMutex
	values map[string]Values
}

// NewMemorySource creates an empty in-memory source
func NewMemorySource() *MemorySource {
	return &MemorySource{values: make(map[string]Values)}
}

// Set stores one value
func (m *MemorySource) Set(indicatorID string, date time.Time, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[indicatorID]
	if !ok {
		v = make(Values)
		m.values[indicatorID] = v
	}
	v[domain.FormatDate(date)] = value
}

// SetSeries stores the observed values of a series, replacing what the indicator had
func (m *MemorySource) SetSeries(indicatorID string, s Series) {
	vals := s.Values()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[indicatorID] = vals
}

// Replace swaps the whole content in one step
func (m *MemorySource) Replace(all map[string]Values) {
	next := make(map[string]Values, len(all))
	for id, vals := range all {
		cp := make(Values, len(vals))
		for k, v := range vals {
			cp[k] = v
		}
		next[id] = cp
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.values = next
}

// Indicators returns the ids that have at least one stored value
func (m *MemorySource) Indicators() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.values))
	for id, v := range m.values {
		if len(v) > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// ValueAt implements Source
func (m *MemorySource) ValueAt(ctx context.Context, indicatorID string, date time.Time) (float64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[indicatorID].Get(date)
	return v, ok, nil
}

// Range implements RangeSource
func (m *MemorySource) Range(ctx context.Context, indicatorID string, r domain.DateRange) (Values, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.values[indicatorID]
	out := make(Values)
	for _, d := range r.Dates() {
		key := domain.FormatDate(d)
		if v, ok := src[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}
