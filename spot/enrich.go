package spot

import "bandwatch/geo"

// Enrich returns a copy of the spot with continent-of-origin,
// continent-of-destination, and great-circle distance filled in from the grid
// locators. It is a pure function: the input spot is never modified.
//
// Each field is only set when its precondition data resolves. An unresolvable
// grid leaves the continent unknown; distance is computed only when both grids
// decode to coordinates. Missing data stays absent, never a placeholder zero.
func Enrich(s *Spot) *Spot {
	out := *s

	if s.SpotterGrid != "" {
		out.SpotterContinent = geo.ContinentOf(s.SpotterGrid)
	}
	if s.SpottedGrid != "" {
		out.SpottedContinent = geo.ContinentOf(s.SpottedGrid)
	}

	spotterCoords, _, spotterErr := geo.Decode(s.SpotterGrid)
	spottedCoords, _, spottedErr := geo.Decode(s.SpottedGrid)
	if spotterErr == nil && spottedErr == nil {
		d := geo.DistanceKm(spotterCoords, spottedCoords)
		out.DistanceKm = &d
	}

	return &out
}
