// Package dedup implements a shard-locked duplicate cache that suppresses
// redelivered spots within a time window, in front of the ingestion buffer.
//
// The upstream feed is best-effort publish/subscribe: redelivery and
// reordering are normal. Correctness against duplicates is owned by the
// store's natural-key upsert; this cache just keeps the common redelivery case
// from wasting buffer space and write bandwidth. An optional persistent
// journal extends suppression across process restarts.
package dedup

import (
	"context"
	"sync"
	"time"

	"bandwatch/spot"
)

// shardCount must remain a power of two so shard selection is a bit mask.
const shardCount = 64

// Deduplicator tracks recently seen natural-key hashes. A zero or negative
// window disables suppression while keeping the pipeline topology intact.
type Deduplicator struct {
	window  time.Duration
	shards  []cacheShard
	journal *Journal // optional, may be nil
	now     func() time.Time
}

type cacheShard struct {
	mu             sync.Mutex
	cache          map[uint64]time.Time
	processedCount uint64
	duplicateCount uint64
}

// NewDeduplicator creates a deduplicator with the given suppression window.
// journal may be nil to run memory-only.
func NewDeduplicator(window time.Duration, journal *Journal) *Deduplicator {
	shards := make([]cacheShard, shardCount)
	for i := range shards {
		shards[i].cache = make(map[uint64]time.Time)
	}
	return &Deduplicator{
		window:  window,
		shards:  shards,
		journal: journal,
		now:     time.Now,
	}
}

// Seen records the spot and reports whether it is a duplicate of one already
// observed inside the window. Safe for concurrent use.
func (d *Deduplicator) Seen(s *spot.Spot) bool {
	if d == nil || s == nil {
		return false
	}
	hash := s.KeyHash()
	shard := &d.shards[hash&(shardCount-1)]

	shard.mu.Lock()
	shard.processedCount++
	dup := false
	if d.window > 0 {
		if last, ok := shard.cache[hash]; ok {
			age := s.SpottedAt.Sub(last)
			if age < 0 {
				age = -age // tolerate out-of-order delivery
			}
			dup = age < d.window
		}
	}
	if dup {
		shard.duplicateCount++
		shard.mu.Unlock()
		return true
	}
	shard.cache[hash] = s.SpottedAt
	shard.mu.Unlock()

	// Journal lookups happen off the shard lock; the journal only matters for
	// duplicates that span a restart, so missing an in-flight race is fine.
	if d.journal != nil && d.window > 0 {
		if d.journal.SeenWithin(hash, s.SpottedAt, d.window) {
			shard.mu.Lock()
			shard.duplicateCount++
			shard.mu.Unlock()
			return true
		}
		d.journal.Record(hash, s.SpottedAt)
	}
	return false
}

// Run evicts expired cache entries once a minute until the context ends.
func (d *Deduplicator) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cleanup(d.now().UTC())
			if d.journal != nil {
				d.journal.Sweep(d.now().UTC(), d.window)
			}
		}
	}
}

func (d *Deduplicator) cleanup(now time.Time) {
	if d.window <= 0 {
		return
	}
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		for hash, last := range shard.cache {
			if now.Sub(last) > d.window {
				delete(shard.cache, hash)
			}
		}
		shard.mu.Unlock()
	}
}

// Stats returns processed and duplicate counts plus the live cache size.
func (d *Deduplicator) Stats() (processed, duplicates uint64, cacheSize int) {
	for i := range d.shards {
		shard := &d.shards[i]
		shard.mu.Lock()
		processed += shard.processedCount
		duplicates += shard.duplicateCount
		cacheSize += len(shard.cache)
		shard.mu.Unlock()
	}
	return processed, duplicates, cacheSize
}
