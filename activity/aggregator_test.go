package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves canned per-key window data and counts calls.
type fakeReader struct {
	mu    sync.Mutex
	keys  [][2]string
	data  map[Key]fakeKeyData
	err   map[Key]error
	calls int
}

type fakeKeyData struct {
	current  int64
	baseline int64
	maxKm    float64
	spotted  string
	spotter  string
	hasMax   bool
	pairs    [][2]string
}

func (f *fakeReader) ActiveBandModes(context.Context, time.Time) ([][2]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.keys, nil
}

func (f *fakeReader) CountSpotsInWindow(_ context.Context, band, mode string, from, to time.Time) (int64, error) {
	key := Key{Band: band, Mode: mode}
	if err := f.err[key]; err != nil {
		return 0, err
	}
	d := f.data[key]
	// The baseline window ends where the current one starts; tell them apart
	// by the window end.
	if to.Before(time.Now().Add(-30 * time.Minute)) {
		return d.baseline, nil
	}
	return d.current, nil
}

func (f *fakeReader) MaxDistancePath(_ context.Context, band, mode string, _, _ time.Time) (float64, string, string, bool, error) {
	d := f.data[Key{Band: band, Mode: mode}]
	return d.maxKm, d.spotted, d.spotter, d.hasMax, nil
}

func (f *fakeReader) ContinentPairs(_ context.Context, band, mode string, _, _ time.Time) ([][2]string, error) {
	return f.data[Key{Band: band, Mode: mode}].pairs, nil
}

func TestSnapshotComputesWindows(t *testing.T) {
	now := time.Now().UTC()
	reader := &fakeReader{
		keys: [][2]string{{"20m", "FT8"}},
		data: map[Key]fakeKeyData{
			{Band: "20m", Mode: "FT8"}: {
				current:  150,
				baseline: 100,
				maxKm:    9412.3,
				spotted:  "PY2XB",
				spotter:  "S53ZO",
				hasMax:   true,
				pairs:    [][2]string{{"EU", "NA"}, {"NA", "EU"}, {"EU", "SA"}},
			},
		},
	}
	agg := NewAggregator(reader, 60)

	snap, err := agg.Snapshot(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, snap, 1)

	got := snap[Key{Band: "20m", Mode: "FT8"}]
	km := 9412.3
	want := BandActivity{
		Band:              "20m",
		Mode:              "FT8",
		SpotCount:         150,
		BaselineSpotCount: 100,
		TrendPercentage:   50,
		MaxDxKm:           &km,
		MaxDxPath:         "PY2XB → S53ZO",
		ActivePaths:       []ContinentPath{"EU-NA", "EU-SA"},
		WindowMinutes:     60,
		WindowStart:       now.Add(-time.Hour),
		WindowEnd:         now,
		ComputedAt:        now,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotZeroBaselineTrend(t *testing.T) {
	reader := &fakeReader{
		keys: [][2]string{{"40m", "FT4"}},
		data: map[Key]fakeKeyData{
			{Band: "40m", Mode: "FT4"}: {current: 500, baseline: 0},
		},
	}
	snap, err := NewAggregator(reader, 60).Snapshot(context.Background(), time.Now().UTC())
	require.NoError(t, err)

	got := snap[Key{Band: "40m", Mode: "FT4"}]
	assert.Equal(t, int64(500), got.SpotCount)
	assert.Zero(t, got.TrendPercentage, "no baseline data must not look like a surge")
}

func TestSnapshotOmitsFailingKey(t *testing.T) {
	reader := &fakeReader{
		keys: [][2]string{{"20m", "FT8"}, {"40m", "FT8"}},
		data: map[Key]fakeKeyData{
			{Band: "20m", Mode: "FT8"}: {current: 10, baseline: 5},
		},
		err: map[Key]error{
			{Band: "40m", Mode: "FT8"}: errors.New("disk gremlin"),
		},
	}
	snap, err := NewAggregator(reader, 60).Snapshot(context.Background(), time.Now().UTC())
	require.NoError(t, err, "one bad key must not fail the snapshot")
	require.Len(t, snap, 1)
	_, ok := snap[Key{Band: "20m", Mode: "FT8"}]
	assert.True(t, ok)
}

func TestSnapshotNoMaxPath(t *testing.T) {
	reader := &fakeReader{
		keys: [][2]string{{"20m", "FT8"}},
		data: map[Key]fakeKeyData{
			{Band: "20m", Mode: "FT8"}: {current: 3},
		},
	}
	snap, err := NewAggregator(reader, 60).Snapshot(context.Background(), time.Now().UTC())
	require.NoError(t, err)

	got := snap[Key{Band: "20m", Mode: "FT8"}]
	assert.Nil(t, got.MaxDxKm)
	assert.Empty(t, got.MaxDxPath)
	assert.NotNil(t, got.ActivePaths, "paths should be an empty slice, not nil")
	assert.Empty(t, got.ActivePaths)
}
