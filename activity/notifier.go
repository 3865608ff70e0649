package activity

import (
	"sync"

	"bandwatch/internal/observability"
)

// Notifier fans fresh snapshots out to in-process subscribers. Delivery is
// best effort: a subscriber that is not draining its channel misses updates
// instead of stalling the refresh path.
type Notifier struct {
	metrics *observability.Metrics

	mu     sync.Mutex
	nextID int
	subs   map[int]chan map[Key]BandActivity

	sent    uint64
	dropped uint64
}

// NewNotifier builds an empty notifier.
func NewNotifier(metrics *observability.Metrics) *Notifier {
	return &Notifier{
		metrics: metrics,
		subs:    map[int]chan map[Key]BandActivity{},
	}
}

// Subscribe registers a new subscriber and returns its channel plus a cancel
// function. buffer <= 0 gets a buffer of 1 so a slow reader still sees the
// latest snapshot it missed.
func (n *Notifier) Subscribe(buffer int) (<-chan map[Key]BandActivity, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan map[Key]BandActivity, buffer)

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish offers the snapshot to every subscriber without blocking. Full
// subscriber channels count as drops.
func (n *Notifier) Publish(snap map[Key]BandActivity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- snap:
			n.sent++
			if n.metrics != nil {
				n.metrics.NotificationsSent.Inc()
			}
		default:
			n.dropped++
			if n.metrics != nil {
				n.metrics.NotificationDrops.Inc()
			}
		}
	}
}

// Subscribers returns the current subscriber count.
func (n *Notifier) Subscribers() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

// Stats returns sent and dropped delivery counts.
func (n *Notifier) Stats() (sent, dropped uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent, n.dropped
}
