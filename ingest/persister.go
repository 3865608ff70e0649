// Package ingest decouples the bursty arrival rate of enriched spots from the
// write rate of the durable store. Spots accumulate in an in-memory queue and
// are flushed as bounded batches when either a size or a time threshold is
// reached, whichever comes first. A failed flush leaves the batch queued for
// the next cycle; combined with the store's natural-key upsert this makes the
// path at-least-once and duplicate-safe.
package ingest

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"bandwatch/internal/observability"
	"bandwatch/spot"
)

// Store is the slice of the spot store the persister needs.
type Store interface {
	UpsertBatch(ctx context.Context, batch []*spot.Spot) (inserted, merged int, err error)
}

// Persister owns the pending queue and the background flush loop.
type Persister struct {
	store         Store
	clock         clockwork.Clock
	batchSize     int
	flushInterval time.Duration
	maxPending    int
	metrics       *observability.Metrics

	mu      sync.Mutex
	pending []*spot.Spot
	kick    chan struct{}

	// flushMu serializes flushes so batch ordering and upsert lookups stay
	// consistent; only one flush may be in flight at a time.
	flushMu sync.Mutex

	accepted     atomic.Uint64
	batches      atomic.Uint64
	rowsInserted atomic.Uint64
	rowsMerged   atomic.Uint64
	overflow     atomic.Uint64
}

// Options tune the persister. Zero values fall back to defaults.
type Options struct {
	BatchSize     int           // flush when this many spots are pending (default 200)
	FlushInterval time.Duration // flush at least this often (default 5s)
	MaxPending    int           // hard memory bound during store outages (default 50000)
	Clock         clockwork.Clock
	Metrics       *observability.Metrics
}

// NewPersister builds a persister over the store. Call Run to start flushing.
func NewPersister(store Store, opts Options) *Persister {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}
	if opts.MaxPending <= 0 {
		opts.MaxPending = 50000
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Persister{
		store:         store,
		clock:         opts.Clock,
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		maxPending:    opts.MaxPending,
		metrics:       opts.Metrics,
		kick:          make(chan struct{}, 1),
	}
}

// Accept enqueues one enriched spot. Safe for concurrent use from the feed
// callback. When the pending queue is at its hard bound (a prolonged store
// outage), the incoming spot is discarded and counted rather than growing
// the queue without limit. The queue is append-only between flush trims, so
// an in-flight flush always removes exactly the prefix it wrote.
func (p *Persister) Accept(s *spot.Spot) {
	if p == nil || s == nil {
		return
	}
	p.mu.Lock()
	if len(p.pending) >= p.maxPending {
		p.mu.Unlock()
		p.overflow.Add(1)
		return
	}
	p.pending = append(p.pending, s)
	full := len(p.pending) >= p.batchSize
	pendingNow := len(p.pending)
	p.mu.Unlock()

	p.accepted.Add(1)
	if p.metrics != nil {
		p.metrics.SpotsAccepted.Inc()
		p.metrics.PendingSpots.Set(float64(pendingNow))
	}
	if full {
		select {
		case p.kick <- struct{}{}:
		default:
		}
	}
}

// Run flushes on the size/time schedule until the context ends, then performs
// one final flush so a clean shutdown loses nothing that the store will take.
func (p *Persister) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			// Shutdown flush runs on a fresh context; the loop's own context
			// is already cancelled.
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			p.Flush(flushCtx)
			cancel()
			return
		case <-p.kick:
			p.Flush(ctx)
		case <-ticker.Chan():
			p.Flush(ctx)
		}
	}
}

// Flush writes pending spots in bounded batches until the queue is drained or
// a batch fails. Failed batches stay queued; the upsert makes the retry safe.
func (p *Persister) Flush(ctx context.Context) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	for {
		p.mu.Lock()
		if len(p.pending) == 0 {
			p.mu.Unlock()
			break
		}
		n := len(p.pending)
		if n > p.batchSize {
			n = p.batchSize
		}
		batch := make([]*spot.Spot, n)
		copy(batch, p.pending[:n])
		p.mu.Unlock()

		inserted, merged, err := p.store.UpsertBatch(ctx, batch)
		if err != nil {
			if p.metrics != nil {
				p.metrics.FlushFailures.Inc()
			}
			log.Printf("ingest: batch flush failed, %d spots kept queued: %v", len(batch), err)
			break
		}

		// Success: drop the flushed prefix. New spots may have been appended
		// concurrently; they stay for the next iteration.
		p.mu.Lock()
		p.pending = p.pending[n:]
		pendingNow := len(p.pending)
		p.mu.Unlock()

		p.batches.Add(1)
		p.rowsInserted.Add(uint64(inserted))
		p.rowsMerged.Add(uint64(merged))
		if p.metrics != nil {
			p.metrics.BatchesFlushed.Inc()
			p.metrics.RowsPersisted.Add(float64(inserted))
			p.metrics.RowsMerged.Add(float64(merged))
			p.metrics.PendingSpots.Set(float64(pendingNow))
		}
	}
}

// Accepted returns how many spots have been accepted into the buffer. The
// counter is monotonic and, once the feed is idle and flushing has completed,
// equals RowsInserted + RowsMerged.
func (p *Persister) Accepted() uint64 { return p.accepted.Load() }

// BatchesPersisted returns the number of successfully flushed batches.
func (p *Persister) BatchesPersisted() uint64 { return p.batches.Load() }

// RowsInserted returns the number of new rows created in the store.
func (p *Persister) RowsInserted() uint64 { return p.rowsInserted.Load() }

// RowsMerged returns the number of redeliveries merged onto existing rows.
func (p *Persister) RowsMerged() uint64 { return p.rowsMerged.Load() }

// Overflow returns how many spots were discarded at the hard memory bound.
func (p *Persister) Overflow() uint64 { return p.overflow.Load() }

// Pending returns the current queue depth.
func (p *Persister) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
