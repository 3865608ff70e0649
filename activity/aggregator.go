package activity

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"bandwatch/geo"
)

// StoreReader is the read side of the spot store the aggregator queries.
// *store.Store satisfies it.
type StoreReader interface {
	ActiveBandModes(ctx context.Context, since time.Time) ([][2]string, error)
	CountSpotsInWindow(ctx context.Context, band, mode string, from, to time.Time) (int64, error)
	MaxDistancePath(ctx context.Context, band, mode string, from, to time.Time) (float64, string, string, bool, error)
	ContinentPairs(ctx context.Context, band, mode string, from, to time.Time) ([][2]string, error)
}

// Aggregator computes window summaries straight from the store. It holds no
// state of its own; freshness and fan-in live in the Cache.
type Aggregator struct {
	reader StoreReader
	window time.Duration
}

// NewAggregator builds an aggregator over the reader. windowMinutes <= 0
// falls back to 60.
func NewAggregator(reader StoreReader, windowMinutes int) *Aggregator {
	if windowMinutes <= 0 {
		windowMinutes = 60
	}
	return &Aggregator{reader: reader, window: time.Duration(windowMinutes) * time.Minute}
}

// WindowMinutes returns the configured current-window length.
func (a *Aggregator) WindowMinutes() int { return int(a.window / time.Minute) }

// Snapshot computes one summary per band/mode key active in the current
// window, ending at now. The baseline is the equal-length window immediately
// before the current one. A key whose queries fail is logged and omitted so
// one bad query cannot take down the whole snapshot; only the key discovery
// itself is fatal.
func (a *Aggregator) Snapshot(ctx context.Context, now time.Time) (map[Key]BandActivity, error) {
	now = now.UTC()
	curFrom := now.Add(-a.window)
	baseFrom := curFrom.Add(-a.window)

	keys, err := a.reader.ActiveBandModes(ctx, curFrom)
	if err != nil {
		return nil, fmt.Errorf("activity: list active band/modes: %w", err)
	}

	out := make(map[Key]BandActivity, len(keys))
	for _, bm := range keys {
		key := Key{Band: bm[0], Mode: bm[1]}
		summary, err := a.summarize(ctx, key, curFrom, now, baseFrom)
		if err != nil {
			log.Printf("activity: %s: %v (key omitted from snapshot)", key, err)
			continue
		}
		out[key] = summary
	}
	return out, nil
}

func (a *Aggregator) summarize(ctx context.Context, key Key, curFrom, now, baseFrom time.Time) (BandActivity, error) {
	current, err := a.reader.CountSpotsInWindow(ctx, key.Band, key.Mode, curFrom, now)
	if err != nil {
		return BandActivity{}, fmt.Errorf("count current window: %w", err)
	}
	baseline, err := a.reader.CountSpotsInWindow(ctx, key.Band, key.Mode, baseFrom, curFrom)
	if err != nil {
		return BandActivity{}, fmt.Errorf("count baseline window: %w", err)
	}

	act := BandActivity{
		Band:              key.Band,
		Mode:              key.Mode,
		SpotCount:         current,
		BaselineSpotCount: baseline,
		TrendPercentage:   Trend(current, baseline),
		WindowMinutes:     a.WindowMinutes(),
		WindowStart:       curFrom,
		WindowEnd:         now,
		ComputedAt:        now,
		ActivePaths:       []ContinentPath{},
	}

	km, spotted, spotter, ok, err := a.reader.MaxDistancePath(ctx, key.Band, key.Mode, curFrom, now)
	if err != nil {
		return BandActivity{}, fmt.Errorf("max distance path: %w", err)
	}
	if ok {
		act.MaxDxKm = &km
		act.MaxDxPath = FormatPath(spotted, spotter)
	}

	pairs, err := a.reader.ContinentPairs(ctx, key.Band, key.Mode, curFrom, now)
	if err != nil {
		return BandActivity{}, fmt.Errorf("continent pairs: %w", err)
	}
	act.ActivePaths = canonicalPaths(pairs)
	return act, nil
}

// canonicalPaths collapses directed continent pairs into a sorted, unique set
// of unordered paths.
func canonicalPaths(pairs [][2]string) []ContinentPath {
	seen := make(map[ContinentPath]struct{}, len(pairs))
	for _, p := range pairs {
		path, ok := NewContinentPath(geo.Continent(p[0]), geo.Continent(p[1]))
		if !ok {
			continue
		}
		seen[path] = struct{}{}
	}
	out := make([]ContinentPath, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
