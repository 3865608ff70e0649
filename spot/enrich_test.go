package spot

import (
	"testing"

	"bandwatch/geo"
)

func TestEnrichBothGrids(t *testing.T) {
	s, _ := New("20m", "FT8", testTime)
	s.SpottedCall = "S53ZO"
	s.SpottedGrid = "JN76TO"
	s.SpotterCall = "K1ABC"
	s.SpotterGrid = "FN42"

	e := Enrich(s)
	if e.SpottedContinent != geo.ContinentEU {
		t.Fatalf("spotted continent = %q, want EU", e.SpottedContinent)
	}
	if e.SpotterContinent != geo.ContinentNA {
		t.Fatalf("spotter continent = %q, want NA", e.SpotterContinent)
	}
	if e.DistanceKm == nil {
		t.Fatal("distance missing with both grids resolvable")
	}
	if *e.DistanceKm < 6000 || *e.DistanceKm > 7000 {
		t.Fatalf("EU-NA east coast distance %v km implausible", *e.DistanceKm)
	}
}

func TestEnrichOneGrid(t *testing.T) {
	s, _ := New("20m", "FT8", testTime)
	s.SpotterGrid = "FN42"

	e := Enrich(s)
	if e.SpotterContinent != geo.ContinentNA {
		t.Fatalf("spotter continent = %q, want NA", e.SpotterContinent)
	}
	if e.SpottedContinent != geo.ContinentUnknown {
		t.Fatalf("spotted continent should stay unknown, got %q", e.SpottedContinent)
	}
	if e.DistanceKm != nil {
		t.Fatal("distance must be absent when only one grid resolves")
	}
}

func TestEnrichUnresolvableGrid(t *testing.T) {
	s, _ := New("20m", "FT8", testTime)
	s.SpotterGrid = "FN4" // too short to decode
	s.SpottedGrid = "JN76"

	e := Enrich(s)
	if e.DistanceKm != nil {
		t.Fatal("distance must be absent when a grid fails to decode")
	}
	if e.SpottedContinent != geo.ContinentEU {
		t.Fatalf("resolvable grid should still classify, got %q", e.SpottedContinent)
	}
}

func TestEnrichIsPure(t *testing.T) {
	s, _ := New("20m", "FT8", testTime)
	s.SpotterGrid = "FN42"
	s.SpottedGrid = "JN76"

	_ = Enrich(s)
	if s.Enriched() {
		t.Fatal("Enrich mutated its input")
	}
}

func TestEnrichNoGrids(t *testing.T) {
	s, _ := New("20m", "FT8", testTime)
	e := Enrich(s)
	if e.Enriched() {
		t.Fatal("spot with no grids must remain raw-shaped after enrichment")
	}
}
