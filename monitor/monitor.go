// Package monitor is the read-only query surface over the running pipeline.
// It answers the operational questions (is the feed up, how many spots, what
// is hot right now) without exposing the components behind them.
package monitor

import (
	"context"
	"sort"
	"time"

	"bandwatch/activity"
	"bandwatch/spot"
)

// Source is the feed the monitor reports connection state for.
type Source interface {
	IsConnected() bool
	SourceName() string
}

// SpotStore is the slice of the store the monitor reads.
type SpotStore interface {
	CountSpots(ctx context.Context) (int64, error)
	CountSpotsSince(ctx context.Context, since time.Time) (int64, error)
	LastSpotTime(ctx context.Context) (time.Time, bool, error)
	RecentSpots(ctx context.Context, band string, since time.Time, limit int) ([]*spot.Spot, error)
}

// Ingest exposes the persister counters the monitor reports.
type Ingest interface {
	Accepted() uint64
	BatchesPersisted() uint64
}

// RecentBuffer serves hot-path recent-spot reads without touching the store.
type RecentBuffer interface {
	Recent(band string, since time.Time, max int) []*spot.Spot
	Count() uint64
}

// Monitor aggregates the pipeline's read paths behind one facade.
type Monitor struct {
	source Source
	store  SpotStore
	ingest Ingest
	cache  *activity.Cache
	ring   RecentBuffer
}

// New wires the facade. Any nil collaborator degrades that answer rather than
// panicking; the monitor is also used in partial test setups.
func New(source Source, store SpotStore, ingest Ingest, cache *activity.Cache, ring RecentBuffer) *Monitor {
	return &Monitor{source: source, store: store, ingest: ingest, cache: cache, ring: ring}
}

// IsConnected reports whether the spot feed is currently connected.
func (m *Monitor) IsConnected() bool {
	return m.source != nil && m.source.IsConnected()
}

// SourceName returns the name of the configured feed.
func (m *Monitor) SourceName() string {
	if m.source == nil {
		return ""
	}
	return m.source.SourceName()
}

// SpotCount returns the total number of persisted spots.
func (m *Monitor) SpotCount(ctx context.Context) (int64, error) {
	if m.store == nil {
		return 0, nil
	}
	return m.store.CountSpots(ctx)
}

// SpotCountSince returns how many spots were persisted in the last N minutes.
func (m *Monitor) SpotCountSince(ctx context.Context, minutes int) (int64, error) {
	if m.store == nil {
		return 0, nil
	}
	return m.store.CountSpotsSince(ctx, time.Now().UTC().Add(-time.Duration(minutes)*time.Minute))
}

// LastSpotTime returns the timestamp of the newest persisted spot.
func (m *Monitor) LastSpotTime(ctx context.Context) (time.Time, bool, error) {
	if m.store == nil {
		return time.Time{}, false, nil
	}
	return m.store.LastSpotTime(ctx)
}

// SpotsProcessed returns the number of spots accepted into the ingest buffer.
func (m *Monitor) SpotsProcessed() uint64 {
	if m.ingest == nil {
		return 0
	}
	return m.ingest.Accepted()
}

// BatchesPersisted returns the number of batches flushed to the store.
func (m *Monitor) BatchesPersisted() uint64 {
	if m.ingest == nil {
		return 0
	}
	return m.ingest.BatchesPersisted()
}

// BandActivityResponse is the full activity answer for API consumers.
type BandActivityResponse struct {
	Activities []activity.BandActivity `json:"activities"`
	Timestamp  time.Time               `json:"timestamp"`
	Connected  bool                    `json:"connected"`
}

// CurrentActivity returns every band/mode summary, busiest first.
func (m *Monitor) CurrentActivity(ctx context.Context) (BandActivityResponse, error) {
	resp := BandActivityResponse{
		Timestamp:  time.Now().UTC(),
		Connected:  m.IsConnected(),
		Activities: []activity.BandActivity{},
	}
	if m.cache == nil {
		return resp, nil
	}
	snap, err := m.cache.Current(ctx)
	if err != nil {
		return resp, err
	}
	for _, act := range snap {
		resp.Activities = append(resp.Activities, act)
	}
	sort.Slice(resp.Activities, func(i, j int) bool {
		a, b := resp.Activities[i], resp.Activities[j]
		if a.SpotCount != b.SpotCount {
			return a.SpotCount > b.SpotCount
		}
		if a.Band != b.Band {
			return a.Band < b.Band
		}
		return a.Mode < b.Mode
	})
	return resp, nil
}

// BandActivity returns the summaries for one band across all modes.
func (m *Monitor) BandActivity(ctx context.Context, band string) ([]activity.BandActivity, error) {
	resp, err := m.CurrentActivity(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]activity.BandActivity, 0, 4)
	for _, act := range resp.Activities {
		if act.Band == band {
			out = append(out, act)
		}
	}
	return out, nil
}

// RecentSpots returns the newest spots for a band within the lookback window,
// newest first. The in-memory ring serves warm reads; right after a restart
// the ring is empty and the store answers instead.
func (m *Monitor) RecentSpots(ctx context.Context, band string, lookback time.Duration, limit int) ([]*spot.Spot, error) {
	since := time.Now().UTC().Add(-lookback)
	if m.ring != nil && m.ring.Count() > 0 {
		return m.ring.Recent(band, since, limit), nil
	}
	if m.store == nil {
		return nil, nil
	}
	return m.store.RecentSpots(ctx, band, since, limit)
}
