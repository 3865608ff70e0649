// Package observability holds the Prometheus instrumentation for the spot
// pipeline. All counters are monotonic; gauges reflect current state only.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the ingestion pipeline.
type Metrics struct {
	SpotsConsumed  prometheus.Counter
	ParseDrops     prometheus.Counter
	Duplicates     prometheus.Counter
	SpotsAccepted  prometheus.Counter
	BatchesFlushed prometheus.Counter
	RowsPersisted  prometheus.Counter
	RowsMerged     prometheus.Counter
	FlushFailures  prometheus.Counter
	PendingSpots   prometheus.Gauge

	CacheRefreshes      prometheus.Counter
	CacheRefreshErrors  prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationDrops   prometheus.Counter
	FeedConnected       prometheus.Gauge
	ActiveBandModeCount prometheus.Gauge
}

// New creates the pipeline metrics and registers them with reg. Passing nil
// registers with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		SpotsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "spots_consumed_total",
			Help:      "Raw messages received from the feed.",
		}),
		ParseDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "parse_drops_total",
			Help:      "Messages dropped because they could not be parsed into a spot.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "duplicates_total",
			Help:      "Spots suppressed by the transport-level duplicate cache.",
		}),
		SpotsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "spots_accepted_total",
			Help:      "Spots accepted into the ingestion buffer.",
		}),
		BatchesFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "batches_flushed_total",
			Help:      "Batches successfully persisted to the store.",
		}),
		RowsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "rows_persisted_total",
			Help:      "New rows inserted into the spot store.",
		}),
		RowsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "rows_merged_total",
			Help:      "Redelivered spots merged onto existing rows by the upsert.",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "flush_failures_total",
			Help:      "Batch flushes that failed and were left queued for retry.",
		}),
		PendingSpots: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bandwatch",
			Name:      "pending_spots",
			Help:      "Spots buffered in memory awaiting a flush.",
		}),
		CacheRefreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "activity_cache_refreshes_total",
			Help:      "Successful band activity aggregation passes.",
		}),
		CacheRefreshErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "activity_cache_refresh_errors_total",
			Help:      "Aggregation passes that failed and left the stale value in place.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "activity_notifications_total",
			Help:      "Change notifications delivered to in-process subscribers.",
		}),
		NotificationDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "bandwatch",
			Name:      "activity_notification_drops_total",
			Help:      "Change notifications dropped because a subscriber was slow.",
		}),
		FeedConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bandwatch",
			Name:      "feed_connected",
			Help:      "1 when the spot feed is connected, 0 otherwise.",
		}),
		ActiveBandModeCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "bandwatch",
			Name:      "active_band_modes",
			Help:      "Band/mode keys present in the latest activity snapshot.",
		}),
	}
	reg.MustRegister(
		m.SpotsConsumed, m.ParseDrops, m.Duplicates, m.SpotsAccepted,
		m.BatchesFlushed, m.RowsPersisted, m.RowsMerged, m.FlushFailures,
		m.PendingSpots, m.CacheRefreshes, m.CacheRefreshErrors,
		m.NotificationsSent, m.NotificationDrops, m.FeedConnected,
		m.ActiveBandModeCount,
	)
	return m
}
