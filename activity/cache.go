package activity

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"bandwatch/internal/observability"
)

// Cache keeps the latest snapshot for TTL and collapses concurrent refreshes
// into a single aggregation run. Readers either get the cached snapshot or
// wait on the one in-flight refresh; the store never sees a thundering herd.
type Cache struct {
	agg      *Aggregator
	ttl      time.Duration
	clock    clockwork.Clock
	notifier *Notifier
	metrics  *observability.Metrics

	group singleflight.Group

	mu        sync.RWMutex
	snapshot  map[Key]BandActivity
	expiresAt time.Time
	have      bool
}

// CacheOptions tune the cache. Zero values fall back to defaults.
type CacheOptions struct {
	TTL      time.Duration // snapshot lifetime (default 30s)
	Clock    clockwork.Clock
	Notifier *Notifier
	Metrics  *observability.Metrics
}

// NewCache wraps the aggregator with TTL caching.
func NewCache(agg *Aggregator, opts CacheOptions) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Cache{
		agg:      agg,
		ttl:      opts.TTL,
		clock:    opts.Clock,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
	}
}

// Current returns the cached snapshot, refreshing it first if expired or
// never computed. When a refresh fails but an older snapshot exists, the
// stale snapshot is returned instead of an error; serving yesterday's
// weather beats serving none.
func (c *Cache) Current(ctx context.Context) (map[Key]BandActivity, error) {
	c.mu.RLock()
	if c.have && c.clock.Now().Before(c.expiresAt) {
		snap := c.snapshot
		c.mu.RUnlock()
		return snap, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("snapshot", func() (interface{}, error) {
		// Another caller may have refreshed while we queued on the group.
		c.mu.RLock()
		if c.have && c.clock.Now().Before(c.expiresAt) {
			snap := c.snapshot
			c.mu.RUnlock()
			return snap, nil
		}
		c.mu.RUnlock()
		return c.refresh(ctx)
	})
	if err != nil {
		c.mu.RLock()
		defer c.mu.RUnlock()
		if c.have {
			log.Printf("activity: refresh failed, serving stale snapshot: %v", err)
			return c.snapshot, nil
		}
		return nil, err
	}
	return v.(map[Key]BandActivity), nil
}

// Get returns one band/mode summary from the current snapshot.
func (c *Cache) Get(ctx context.Context, band, mode string) (BandActivity, bool, error) {
	snap, err := c.Current(ctx)
	if err != nil {
		return BandActivity{}, false, err
	}
	act, ok := snap[Key{Band: band, Mode: mode}]
	return act, ok, nil
}

// Clear drops the cached snapshot so the next read recomputes.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.have = false
	c.snapshot = nil
	c.mu.Unlock()
}

// ComputedAt returns when the cached snapshot was built, if one exists.
func (c *Cache) ComputedAt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.have {
		return time.Time{}, false
	}
	return c.expiresAt.Add(-c.ttl), true
}

func (c *Cache) refresh(ctx context.Context) (map[Key]BandActivity, error) {
	snap, err := c.agg.Snapshot(ctx, c.clock.Now())
	if err != nil {
		if c.metrics != nil {
			c.metrics.CacheRefreshErrors.Inc()
		}
		return nil, err
	}

	c.mu.Lock()
	c.snapshot = snap
	c.expiresAt = c.clock.Now().Add(c.ttl)
	c.have = true
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheRefreshes.Inc()
		c.metrics.ActiveBandModeCount.Set(float64(len(snap)))
	}
	if c.notifier != nil {
		c.notifier.Publish(snap)
	}
	return snap, nil
}
