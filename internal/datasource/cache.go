package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"straitpulse/pkg/contracts/domain"
)

type cacheEntry struct {
	values    Values
	cachedAt  time.Time
	expiresAt time.Time
	hitCount  int
}

// CacheStats is a point-in-time view of cache counters
type CacheStats struct {
	Entries    int     `json:"entries"`
	MaxSize    int     `json:"max_size"`
	HitCount   int64   `json:"hit_count"`
	MissCount  int64   `json:"miss_count"`
	HitRatio   float64 `json:"hit_ratio"`
	TTLSeconds float64 `json:"ttl_seconds"`
}

// CachedSource memoizes range queries of a slower source for a TTL.
// Concurrent misses for the same key share one upstream query.
type CachedSource struct {
	upstream Source

	entries   map[string]cacheEntry
	mutex     sync.RWMutex
	ttl       time.Duration
	maxSize   int
	hitCount  int64
	missCount int64
	// generation is bumped by Invalidate; fetches started under an older
	// generation are neither stored nor joined
	generation uint64

	group    singleflight.Group
	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewCachedSource wraps upstream. A cleanup goroutine runs until Stop.
func NewCachedSource(upstream Source, ttl time.Duration, maxSize int) *CachedSource {
	c := &CachedSource{
		upstream: upstream,
		entries:  make(map[string]cacheEntry),
		ttl:      ttl,
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.cleanup()

	return c
}

// ValueAt implements Source
func (c *CachedSource) ValueAt(ctx context.Context, indicatorID string, date time.Time) (float64, bool, error) {
	d := domain.CalendarDate(date)
	vals, err := c.Range(ctx, indicatorID, domain.DateRange{Start: d, End: d})
	if err != nil {
		return 0, false, err
	}
	v, ok := vals.Get(d)
	return v, ok, nil
}

// Range implements RangeSource
func (c *CachedSource) Range(ctx context.Context, indicatorID string, r domain.DateRange) (Values, error) {
	key := fmt.Sprintf("%s|%s", indicatorID, r.String())

	vals, gen, ok := c.get(key)
	if ok {
		return vals, nil
	}

	flight := fmt.Sprintf("%d|%s", gen, key)
	ch := c.group.DoChan(flight, func() (interface{}, error) {
		// The shared fetch must not die with the first caller's context
		vals, err := Fetch(context.WithoutCancel(ctx), c.upstream, indicatorID, r)
		if err != nil {
			return nil, err
		}
		c.set(key, vals, gen)
		return vals, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Values), nil
	}
}

func (c *CachedSource) get(key string) (Values, uint64, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expiresAt) {
		c.missCount++
		return nil, c.generation, false
	}

	entry.hitCount++
	c.entries[key] = entry
	c.hitCount++

	return entry.values, c.generation, true
}

func (c *CachedSource) set(key string, vals Values, gen uint64) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.maxSize <= 0 || c.ttl <= 0 || gen != c.generation {
		return
	}
	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	now := time.Now()
	c.entries[key] = cacheEntry{
		values:    vals,
		cachedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
}

// Invalidate drops every cached entry. Fetches already in flight still
// answer their callers but are not stored.
func (c *CachedSource) Invalidate() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]cacheEntry)
	c.generation++
}

// Reload reloads the upstream when it supports it, then drops cached entries
func (c *CachedSource) Reload(ctx context.Context) error {
	if r, ok := c.upstream.(Reloader); ok {
		if err := r.Reload(ctx); err != nil {
			return err
		}
	}
	c.Invalidate()
	return nil
}

// Stats returns cache statistics
func (c *CachedSource) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	total := c.hitCount + c.missCount
	ratio := float64(0)
	if total > 0 {
		ratio = float64(c.hitCount) / float64(total)
	}

	return CacheStats{
		Entries:    len(c.entries),
		MaxSize:    c.maxSize,
		HitCount:   c.hitCount,
		MissCount:  c.missCount,
		HitRatio:   ratio,
		TTLSeconds: c.ttl.Seconds(),
	}
}

func (c *CachedSource) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.cachedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.cachedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// Stop ends the cleanup goroutine and waits for it to exit
func (c *CachedSource) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
	})
	<-c.done
}

func (c *CachedSource) cleanup() {
	defer close(c.done)

	interval := c.ttl
	if interval <= 0 || interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			now := time.Now()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
				}
			}
			c.mutex.Unlock()
		case <-c.stopChan:
			return
		}
	}
}
