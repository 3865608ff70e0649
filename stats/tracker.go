// Package stats tracks per-source and per-mode spot counters plus drop
// counters for the periodic console summary.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// Tracker accumulates pipeline counters. Per-spot increments go through
// sync.Map + atomic.Uint64 so the hot path never contends on a mutex.
type Tracker struct {
	modeCounts   sync.Map // string -> *atomic.Uint64
	sourceCounts sync.Map // string -> *atomic.Uint64
	parseDrops   atomic.Uint64
	duplicates   atomic.Uint64
	start        atomic.Int64
}

// NewTracker creates a tracker with the uptime clock started now.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementSourceMode counts one spot against both its source and its mode.
func (t *Tracker) IncrementSourceMode(source, mode string) {
	source = strings.ToUpper(strings.TrimSpace(source))
	mode = strings.ToUpper(strings.TrimSpace(mode))
	if source != "" {
		incrementCounter(&t.sourceCounts, source)
	}
	if mode != "" {
		incrementCounter(&t.modeCounts, mode)
	}
}

// IncrementParseDrop counts one message that failed to parse.
func (t *Tracker) IncrementParseDrop() {
	t.parseDrops.Add(1)
}

// IncrementDuplicate counts one spot suppressed as a transport duplicate.
func (t *Tracker) IncrementDuplicate() {
	t.duplicates.Add(1)
}

// ParseDrops returns the running parse-failure count.
func (t *Tracker) ParseDrops() uint64 { return t.parseDrops.Load() }

// Duplicates returns the running duplicate-suppression count.
func (t *Tracker) Duplicates() uint64 { return t.duplicates.Load() }

// ModeCounts returns a copy of the per-mode counters.
func (t *Tracker) ModeCounts() map[string]uint64 {
	return snapshot(&t.modeCounts)
}

// SourceCounts returns a copy of the per-source counters.
func (t *Tracker) SourceCounts() map[string]uint64 {
	return snapshot(&t.sourceCounts)
}

// Uptime returns time since the tracker was created.
func (t *Tracker) Uptime() time.Duration {
	return time.Since(time.Unix(0, t.start.Load()))
}

// Summary renders a single console line for the periodic stats ticker, e.g.
// "up 2h3m | spots FT8=1,204,112 FT4=88,021 | drops parse=17 dup=3,509".
func (t *Tracker) Summary() string {
	modes := t.ModeCounts()
	keys := make([]string, 0, len(modes))
	for k := range modes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "up %s | spots", t.Uptime().Round(time.Second))
	if len(keys) == 0 {
		b.WriteString(" none")
	}
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, humanize.Comma(int64(modes[k])))
	}
	fmt.Fprintf(&b, " | drops parse=%s dup=%s",
		humanize.Comma(int64(t.parseDrops.Load())),
		humanize.Comma(int64(t.duplicates.Load())))
	return b.String()
}

func incrementCounter(m *sync.Map, key string) {
	if counter, ok := m.Load(key); ok {
		counter.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	counter.Add(1)
	if existing, loaded := m.LoadOrStore(key, counter); loaded {
		existing.(*atomic.Uint64).Add(1)
	}
}

func snapshot(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		out[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return out
}
