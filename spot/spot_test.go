package spot

import (
	"testing"
	"time"
)

var testTime = time.Date(2026, 3, 14, 12, 30, 45, 0, time.UTC)

func TestNewRequiresBandModeTime(t *testing.T) {
	if _, err := New("20m", "FT8", testTime); err != nil {
		t.Fatalf("valid spot rejected: %v", err)
	}
	if _, err := New("", "FT8", testTime); err == nil {
		t.Fatal("missing band accepted")
	}
	if _, err := New("20m", "", testTime); err == nil {
		t.Fatal("missing mode accepted")
	}
	if _, err := New("20m", "FT8", time.Time{}); err == nil {
		t.Fatal("zero timestamp accepted")
	}
	if _, err := New("  ", " ", testTime); err == nil {
		t.Fatal("whitespace band/mode accepted")
	}
}

func TestTruncateGrid(t *testing.T) {
	cases := map[string]string{
		"FN42AB12": "FN42AB", // 8 chars truncate to 6
		"FN42AB":   "FN42AB", // 6 chars unchanged
		"FN42":     "FN42",   // 4 chars unchanged
		"FN4":      "FN4",    // odd length kept as-is, validation deferred
		"":         "",
		"  FN42  ": "FN42",
	}
	for in, want := range cases {
		if got := TruncateGrid(in); got != want {
			t.Errorf("TruncateGrid(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNaturalKeyStableAcrossRedelivery(t *testing.T) {
	a, _ := New("20m", "FT8", testTime)
	a.SpottedCall = "K1ABC"
	a.SpotterCall = "S53ZO"

	// Redelivery a few seconds later within the same minute.
	b, _ := New("20m", "ft8", testTime.Add(10*time.Second))
	b.SpottedCall = "k1abc"
	b.SpotterCall = "s53zo"

	if a.NaturalKey() != b.NaturalKey() {
		t.Fatalf("redelivered spot changed key: %q vs %q", a.NaturalKey(), b.NaturalKey())
	}
	if a.KeyHash() != b.KeyHash() {
		t.Fatal("redelivered spot changed hash")
	}
}

func TestNaturalKeyDistinguishesSpots(t *testing.T) {
	base, _ := New("20m", "FT8", testTime)
	base.SpottedCall = "K1ABC"
	base.SpotterCall = "S53ZO"

	otherBand := *base
	otherBand.Band = "40m"
	otherCall := *base
	otherCall.SpottedCall = "K1ABD"
	otherTime := *base
	otherTime.SpottedAt = testTime.Add(2 * time.Minute)

	for name, other := range map[string]*Spot{
		"band": &otherBand, "call": &otherCall, "time": &otherTime,
	} {
		if base.NaturalKey() == other.NaturalKey() {
			t.Errorf("%s change did not alter natural key", name)
		}
		if base.KeyHash() == other.KeyHash() {
			t.Errorf("%s change did not alter key hash", name)
		}
	}
}

func TestEnrichedPredicate(t *testing.T) {
	raw, _ := New("20m", "FT8", testTime)
	if raw.Enriched() {
		t.Fatal("raw spot reported enriched")
	}
	raw.SpotterGrid = "FN42"
	enriched := Enrich(raw)
	if !enriched.Enriched() {
		t.Fatal("enriched spot with resolvable grid reported raw")
	}
}

func TestSupportedBands(t *testing.T) {
	if len(Bands) != 12 {
		t.Fatalf("expected 12 supported bands, got %d", len(Bands))
	}
	for _, b := range Bands {
		if !IsSupportedBand(b) {
			t.Errorf("band %s not reported as supported", b)
		}
	}
	if IsSupportedBand("23cm") {
		t.Error("unexpected band reported as supported")
	}
}
