package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"bandwatch/spot"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "spots.db"), 1000)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func makeSpot(t *testing.T, band, mode string, at time.Time, spotted, spotter string) *spot.Spot {
	t.Helper()
	s, err := spot.New(band, mode, at)
	if err != nil {
		t.Fatal(err)
	}
	s.SpottedCall = spotted
	s.SpotterCall = spotter
	s.Source = "PSKREPORTER"
	return s
}

var base = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestUpsertBatchInsertsAndCounts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	batch := []*spot.Spot{
		makeSpot(t, "20m", "FT8", base, "K1ABC", "S53ZO"),
		makeSpot(t, "40m", "FT4", base.Add(time.Minute), "W1AW", "S53ZO"),
	}
	inserted, merged, err := s.UpsertBatch(ctx, batch)
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 2 || merged != 0 {
		t.Fatalf("inserted=%d merged=%d, want 2/0", inserted, merged)
	}

	total, err := s.CountSpots(ctx)
	if err != nil || total != 2 {
		t.Fatalf("CountSpots = %d (%v), want 2", total, err)
	}
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := makeSpot(t, "20m", "FT8", base, "K1ABC", "S53ZO")
	if _, _, err := s.UpsertBatch(ctx, []*spot.Spot{first}); err != nil {
		t.Fatal(err)
	}

	// Redelivery carries extra data this time; it must update, not duplicate.
	redelivered := makeSpot(t, "20m", "FT8", base.Add(20*time.Second), "K1ABC", "S53ZO")
	snr := -12
	redelivered.SNR = &snr
	inserted, merged, err := s.UpsertBatch(ctx, []*spot.Spot{redelivered})
	if err != nil {
		t.Fatal(err)
	}
	if inserted != 0 || merged != 1 {
		t.Fatalf("inserted=%d merged=%d, want 0/1", inserted, merged)
	}

	total, err := s.CountSpots(ctx)
	if err != nil || total != 1 {
		t.Fatalf("redelivery duplicated a row: count=%d (%v)", total, err)
	}
	recent, err := s.RecentSpots(ctx, "20m", base.Add(-time.Hour), 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("RecentSpots: %v, %d rows", err, len(recent))
	}
	if recent[0].SNR == nil || *recent[0].SNR != -12 {
		t.Fatalf("second write did not refresh SNR: %v", recent[0].SNR)
	}
}

func TestCountSpotsSinceAndLastSpotTime(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.LastSpotTime(ctx); err != nil || ok {
		t.Fatalf("empty store should report no last spot (ok=%v err=%v)", ok, err)
	}

	batch := []*spot.Spot{
		makeSpot(t, "20m", "FT8", base.Add(-2*time.Hour), "OLD", "S53ZO"),
		makeSpot(t, "20m", "FT8", base, "NEW", "S53ZO"),
	}
	if _, _, err := s.UpsertBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountSpotsSince(ctx, base.Add(-time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("CountSpotsSince = %d (%v), want 1", n, err)
	}
	last, ok, err := s.LastSpotTime(ctx)
	if err != nil || !ok || !last.Equal(base) {
		t.Fatalf("LastSpotTime = %v ok=%v err=%v, want %v", last, ok, err, base)
	}
}

func TestWindowQueries(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Two spots in the current window, one in the baseline window.
	cur1 := makeSpot(t, "20m", "FT8", base.Add(-10*time.Minute), "K1ABC", "S53ZO")
	cur1.SpottedGrid = "FN42"
	cur1.SpotterGrid = "JN76"
	cur1 = spot.Enrich(cur1)
	cur2 := makeSpot(t, "20m", "FT8", base.Add(-5*time.Minute), "PY2XB", "S53ZO")
	cur2.SpottedGrid = "GG66"
	cur2.SpotterGrid = "JN76"
	cur2 = spot.Enrich(cur2)
	baseline := makeSpot(t, "20m", "FT8", base.Add(-90*time.Minute), "W1AW", "S53ZO")
	other := makeSpot(t, "40m", "FT8", base.Add(-10*time.Minute), "G4ABC", "S53ZO")

	if _, _, err := s.UpsertBatch(ctx, []*spot.Spot{cur1, cur2, baseline, other}); err != nil {
		t.Fatal(err)
	}

	from := base.Add(-60 * time.Minute)
	n, err := s.CountSpotsInWindow(ctx, "20m", "FT8", from, base)
	if err != nil || n != 2 {
		t.Fatalf("current window count = %d (%v), want 2", n, err)
	}
	n, err = s.CountSpotsInWindow(ctx, "20m", "FT8", base.Add(-120*time.Minute), from)
	if err != nil || n != 1 {
		t.Fatalf("baseline window count = %d (%v), want 1", n, err)
	}

	km, spotted, spotter, ok, err := s.MaxDistancePath(ctx, "20m", "FT8", from, base)
	if err != nil || !ok {
		t.Fatalf("MaxDistancePath ok=%v err=%v", ok, err)
	}
	// Brazil-Slovenia is the longer of the two enriched paths.
	if spotted != "PY2XB" || spotter != "S53ZO" || km < 9000 {
		t.Fatalf("max path %s>%s at %v km unexpected", spotted, spotter, km)
	}

	pairs, err := s.ContinentPairs(ctx, "20m", "FT8", from, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 2 {
		t.Fatalf("expected EU-NA and EU-SA pairs, got %v", pairs)
	}

	keys, err := s.ActiveBandModes(ctx, base.Add(-30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("active keys = %v, want 20m/FT8 and 40m/FT8", keys)
	}
}

func TestMaxDistanceAbsentWithoutDistances(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.UpsertBatch(ctx, []*spot.Spot{
		makeSpot(t, "20m", "FT8", base, "K1ABC", "S53ZO"),
	}); err != nil {
		t.Fatal(err)
	}
	_, _, _, ok, err := s.MaxDistancePath(ctx, "20m", "FT8", base.Add(-time.Hour), base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("window without distance-bearing spots must report absent")
	}
}

func TestRecentSpotsOrderAndFields(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := makeSpot(t, "20m", "FT8", base.Add(-2*time.Minute), "A1AA", "S53ZO")
	freq := int64(14074000)
	a.FrequencyHz = &freq
	b := makeSpot(t, "20m", "FT8", base, "B2BB", "S53ZO")
	if _, _, err := s.UpsertBatch(ctx, []*spot.Spot{a, b}); err != nil {
		t.Fatal(err)
	}

	recent, err := s.RecentSpots(ctx, "20m", base.Add(-time.Hour), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].SpottedCall != "B2BB" {
		t.Fatalf("recent order wrong: %+v", recent)
	}
	if recent[1].FrequencyHz == nil || *recent[1].FrequencyHz != 14074000 {
		t.Fatalf("frequency not round-tripped: %v", recent[1].FrequencyHz)
	}
	if recent[0].FrequencyHz != nil {
		t.Fatal("absent frequency should stay absent after round trip")
	}
	if recent[0].Enriched() {
		t.Fatal("unenriched spot came back enriched")
	}
	if !recent[0].SpottedAt.Equal(base) {
		t.Fatalf("timestamp mismatch: %v", recent[0].SpottedAt)
	}
}

func TestRetentionDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, _, err := s.UpsertBatch(ctx, []*spot.Spot{
		makeSpot(t, "20m", "FT8", base.Add(-48*time.Hour), "OLD", "S53ZO"),
		makeSpot(t, "20m", "FT8", base, "NEW", "S53ZO"),
	}); err != nil {
		t.Fatal(err)
	}
	n, err := s.DeleteOlderThan(ctx, base.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("DeleteOlderThan removed %d (%v), want 1", n, err)
	}
	total, _ := s.CountSpots(ctx)
	if total != 1 {
		t.Fatalf("count after retention = %d, want 1", total)
	}
}

func TestPreflightHealthyAndFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spots.db")

	// Fresh path: preflight creates an empty healthy database.
	res, err := Preflight(path, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Healthy || res.Quarantined {
		t.Fatalf("fresh db should be healthy: %+v", res)
	}

	// Existing populated database passes too.
	s, err := Open(path, 1000)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.UpsertBatch(context.Background(), []*spot.Spot{
		makeSpot(t, "20m", "FT8", base, "K1ABC", "S53ZO"),
	}); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	res, err = Preflight(path, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Healthy {
		t.Fatalf("populated db should pass preflight: %+v", res)
	}
}
