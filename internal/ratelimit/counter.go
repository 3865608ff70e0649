// Package ratelimit provides a lightweight counter for throttling log
// emission. A feed of mixed good and bad messages drops the bad ones silently;
// this counter keeps the occasional diagnostic line without flooding the log.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Counter tracks a total count and the last time a log line was allowed.
// It is safe for concurrent use.
type Counter struct {
	interval time.Duration
	lastLog  atomic.Int64
	total    atomic.Uint64
}

// NewCounter constructs a Counter that allows one log line per interval.
// A zero or negative interval disables throttling.
func NewCounter(interval time.Duration) *Counter {
	return &Counter{interval: interval}
}

// Inc increments the counter and reports the running total plus whether the
// caller may log right now.
func (c *Counter) Inc() (uint64, bool) {
	if c == nil {
		return 0, false
	}
	total := c.total.Add(1)
	if c.interval <= 0 {
		return total, true
	}
	now := time.Now().UTC().UnixNano()
	last := c.lastLog.Load()
	if now-last < c.interval.Nanoseconds() {
		return total, false
	}
	if c.lastLog.CompareAndSwap(last, now) {
		return total, true
	}
	return total, false
}

// Total returns the running count without incrementing.
func (c *Counter) Total() uint64 {
	if c == nil {
		return 0
	}
	return c.total.Load()
}
