// Package buffer provides a lock-free ring of recent enriched spots so
// recent-spot queries never touch SQLite on the hot path. Each slot stores an
// atomic pointer, so readers either see a complete entry or the previous one,
// never a partially written structure.
package buffer

import (
	"sync/atomic"
	"time"

	"bandwatch/spot"
)

// entry pairs a spot with its monotonic sequence number so readers can skip
// slots that were overwritten after the ring wrapped.
type entry struct {
	seq uint64
	s   *spot.Spot
}

// RingBuffer is a thread-safe circular buffer of the most recent spots.
// Writers atomically publish completed entries; readers walk backwards from
// the newest index to gather a newest-first snapshot.
type RingBuffer struct {
	slots    []atomic.Pointer[entry]
	capacity int
	total    atomic.Uint64 // total spots added, may exceed capacity
}

// NewRingBuffer allocates a ring with the given capacity. Capacity only
// bounds how far back recent-spot queries can see; persistence is handled
// elsewhere.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &RingBuffer{
		slots:    make([]atomic.Pointer[entry], capacity),
		capacity: capacity,
	}
}

// Add publishes a spot into the ring.
func (rb *RingBuffer) Add(s *spot.Spot) {
	if s == nil {
		return
	}
	seq := rb.total.Add(1)
	idx := (seq - 1) % uint64(rb.capacity)
	rb.slots[idx].Store(&entry{seq: seq, s: s})
}

// Recent returns up to max spots matching band (empty band matches all) with
// SpottedAt at or after since, newest first. Readers take no locks and never
// disturb writers.
func (rb *RingBuffer) Recent(band string, since time.Time, max int) []*spot.Spot {
	if max <= 0 {
		return nil
	}
	total := rb.total.Load()
	available := total
	if available > uint64(rb.capacity) {
		available = uint64(rb.capacity)
	}

	result := make([]*spot.Spot, 0, max)
	minSeq := total - available
	for seq := total; seq > minSeq && len(result) < max; seq-- {
		slot := (seq - 1) % uint64(rb.capacity)
		e := rb.slots[slot].Load()
		if e == nil || e.seq != seq {
			continue // overwritten after wraparound
		}
		if band != "" && e.s.Band != band {
			continue
		}
		if e.s.SpottedAt.Before(since) {
			continue
		}
		result = append(result, e.s)
	}
	return result
}

// Count returns the total number of spots ever added.
func (rb *RingBuffer) Count() uint64 {
	return rb.total.Load()
}
