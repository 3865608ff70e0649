package geo

import (
	"math"
	"testing"
)

func TestDecodeLengths(t *testing.T) {
	cases := []struct {
		locator string
		prec    float64
	}{
		{"JN", 1100},
		{"JN76", 110},
		{"JN76TO", 18},
		{"JN76TO34", 2},
	}
	for _, tc := range cases {
		coords, prec, err := Decode(tc.locator)
		if err != nil {
			t.Fatalf("Decode(%s): %v", tc.locator, err)
		}
		if prec != tc.prec {
			t.Fatalf("Decode(%s): precision %v, want %v", tc.locator, prec, tc.prec)
		}
		if coords.Lat < -90 || coords.Lat > 90 || coords.Lon < -180 || coords.Lon > 180 {
			t.Fatalf("Decode(%s): coordinates out of range: %+v", tc.locator, coords)
		}
	}
}

func TestDecodeRefinesTowardCenter(t *testing.T) {
	// JN76TO (Slovenia) should stay inside the JN76 square.
	c4, _, err := Decode("JN76")
	if err != nil {
		t.Fatal(err)
	}
	c6, _, err := Decode("JN76TO")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(c6.Lat-c4.Lat) > 0.5 || math.Abs(c6.Lon-c4.Lon) > 1.0 {
		t.Fatalf("6-char decode %+v strayed outside 4-char square %+v", c6, c4)
	}
}

func TestDecodeLowercase(t *testing.T) {
	upper, _, err := Decode("FN42")
	if err != nil {
		t.Fatal(err)
	}
	lower, _, err := Decode("fn42")
	if err != nil {
		t.Fatal(err)
	}
	if upper != lower {
		t.Fatalf("case sensitivity: %+v vs %+v", upper, lower)
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, bad := range []string{"", "J", "JN7", "JN76T", "JN76TO3", "JN76TO345", "ZZ76", "JNXX", "JN76YZ", "1234"} {
		if _, _, err := Decode(bad); err == nil {
			t.Fatalf("Decode(%q): expected error", bad)
		}
	}
}

func TestContinentOf(t *testing.T) {
	cases := map[string]Continent{
		"FN42":   ContinentNA, // New England
		"EM10":   ContinentNA, // Texas
		"JN76":   ContinentEU, // Slovenia
		"IO91":   ContinentEU, // England
		"PM95":   ContinentAS, // Tokyo
		"QF56":   ContinentOC, // Sydney
		"GG66":   ContinentSA, // Brazil
		"RB32":   ContinentAN, // latitude override
		"":       ContinentUnknown,
		"X":      ContinentUnknown,
		"ZZ11":   ContinentUnknown,
		"jn76to": ContinentEU,
	}
	for locator, want := range cases {
		if got := ContinentOf(locator); got != want {
			t.Errorf("ContinentOf(%q) = %q, want %q", locator, got, want)
		}
	}
}

func TestDistanceKm(t *testing.T) {
	boston := Coordinates{Lat: 42.36, Lon: -71.06}
	ljubljana := Coordinates{Lat: 46.05, Lon: 14.51}

	d := DistanceKm(boston, ljubljana)
	if d < 6300 || d > 6700 {
		t.Fatalf("Boston-Ljubljana distance %v km out of expected range", d)
	}
	if rev := DistanceKm(ljubljana, boston); math.Abs(rev-d) > 1e-9 {
		t.Fatalf("distance not symmetric: %v vs %v", d, rev)
	}
	if z := DistanceKm(boston, boston); z != 0 {
		t.Fatalf("identical points should be 0 km, got %v", z)
	}

	// Monotonic in angular separation along a meridian.
	prev := 0.0
	for _, lat := range []float64{43, 50, 60, 80} {
		d := DistanceKm(boston, Coordinates{Lat: lat, Lon: boston.Lon})
		if d <= prev {
			t.Fatalf("distance not monotonic at lat %v: %v <= %v", lat, d, prev)
		}
		prev = d
	}
}

func TestGrid4RoundTrip(t *testing.T) {
	for _, grid := range []string{"FN42", "JN76", "PM95", "QF56", "AA00", "RR99"} {
		coords, _, err := Decode(grid)
		if err != nil {
			t.Fatalf("Decode(%s): %v", grid, err)
		}
		back, ok := Grid4FromLatLon(coords.Lat, coords.Lon)
		if !ok || back != grid {
			t.Fatalf("round trip %s -> %+v -> %s (ok=%v)", grid, coords, back, ok)
		}
	}
	if _, ok := Grid4FromLatLon(91, 0); ok {
		t.Fatal("latitude out of range should fail")
	}
	if _, ok := Grid4FromLatLon(math.NaN(), 0); ok {
		t.Fatal("NaN should fail")
	}
}
