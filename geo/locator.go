// Package geo provides Maidenhead locator decoding, approximate continent
// classification, and great-circle distance math for the spot pipeline.
package geo

import (
	"errors"
	"math"
	"strings"
)

const (
	fieldLonSize  = 20.0
	fieldLatSize  = 10.0
	squareLonSize = 2.0
	squareLatSize = 1.0
	subLonSize    = squareLonSize / 24.0
	subLatSize    = squareLatSize / 24.0
	extLonSize    = subLonSize / 10.0
	extLatSize    = subLatSize / 10.0

	earthRadiusKm = 6371.0
)

// ErrInvalidLocator is returned for locators whose length or characters do not
// form a valid 2/4/6/8 character Maidenhead grid.
var ErrInvalidLocator = errors.New("geo: invalid locator")

// Coordinates is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinates struct {
	Lat float64
	Lon float64
}

// Continent is a two-letter continent code, or empty when unknown.
type Continent string

const (
	ContinentNA      Continent = "NA"
	ContinentSA      Continent = "SA"
	ContinentEU      Continent = "EU"
	ContinentAF      Continent = "AF"
	ContinentAS      Continent = "AS"
	ContinentOC      Continent = "OC"
	ContinentAN      Continent = "AN"
	ContinentUnknown Continent = ""
)

// Approximate precision (cell diagonal, km) per locator length.
var precisionKm = map[int]float64{
	2: 1100,
	4: 110,
	6: 18,
	8: 2,
}

// fieldContinent maps the first locator character (a 20 degree longitude band)
// to the continent that dominates amateur activity in that band. Longitude
// alone cannot split stacked continents (NA/SA, EU/AF), so this table is right
// roughly 80% of the time. That is a documented limitation, not a bug: the
// classification only feeds coarse path statistics.
var fieldContinent = [18]Continent{
	ContinentOC, // A: -180..-160, central Pacific
	ContinentOC, // B: -160..-140, Hawaii / south Pacific
	ContinentNA, // C: -140..-120, west coast NA
	ContinentNA, // D: -120..-100
	ContinentNA, // E: -100..-80
	ContinentNA, // F: -80..-60, east coast NA
	ContinentSA, // G: -60..-40, eastern South America
	ContinentSA, // H: -40..-20, Atlantic South America
	ContinentEU, // I: -20..0, western Europe
	ContinentEU, // J: 0..20, central Europe
	ContinentEU, // K: 20..40, eastern Europe
	ContinentAS, // L: 40..60, Middle East / western Russia
	ContinentAS, // M: 60..80
	ContinentAS, // N: 80..100
	ContinentAS, // O: 100..120
	ContinentAS, // P: 120..140, Japan / east Asia
	ContinentOC, // Q: 140..160, eastern Australia
	ContinentOC, // R: 160..180, New Zealand / west Pacific
}

// Decode converts a 2/4/6/8 character Maidenhead locator to the center
// coordinates of its cell and the approximate precision of that cell in km.
func Decode(locator string) (Coordinates, float64, error) {
	g := strings.ToUpper(strings.TrimSpace(locator))
	prec, ok := precisionKm[len(g)]
	if !ok {
		return Coordinates{}, 0, ErrInvalidLocator
	}

	a, b := g[0], g[1]
	if a < 'A' || a > 'R' || b < 'A' || b > 'R' {
		return Coordinates{}, 0, ErrInvalidLocator
	}
	lon := -180.0 + float64(a-'A')*fieldLonSize
	lat := -90.0 + float64(b-'A')*fieldLatSize
	if len(g) == 2 {
		return Coordinates{Lat: lat + fieldLatSize/2, Lon: lon + fieldLonSize/2}, prec, nil
	}

	d0, d1 := g[2], g[3]
	if d0 < '0' || d0 > '9' || d1 < '0' || d1 > '9' {
		return Coordinates{}, 0, ErrInvalidLocator
	}
	lon += float64(d0-'0') * squareLonSize
	lat += float64(d1-'0') * squareLatSize
	if len(g) == 4 {
		return Coordinates{Lat: lat + squareLatSize/2, Lon: lon + squareLonSize/2}, prec, nil
	}

	s0, s1 := g[4], g[5]
	if s0 < 'A' || s0 > 'X' || s1 < 'A' || s1 > 'X' {
		return Coordinates{}, 0, ErrInvalidLocator
	}
	lon += float64(s0-'A') * subLonSize
	lat += float64(s1-'A') * subLatSize
	if len(g) == 6 {
		return Coordinates{Lat: lat + subLatSize/2, Lon: lon + subLonSize/2}, prec, nil
	}

	e0, e1 := g[6], g[7]
	if e0 < '0' || e0 > '9' || e1 < '0' || e1 > '9' {
		return Coordinates{}, 0, ErrInvalidLocator
	}
	lon += float64(e0-'0') * extLonSize
	lat += float64(e1-'0') * extLatSize
	return Coordinates{Lat: lat + extLatSize/2, Lon: lon + extLonSize/2}, prec, nil
}

// ContinentOf classifies a locator into a continent using the fixed longitude
// band table, with a latitude override for Antarctica. Returns
// ContinentUnknown when the locator cannot be read at all.
func ContinentOf(locator string) Continent {
	g := strings.ToUpper(strings.TrimSpace(locator))
	if len(g) < 2 {
		return ContinentUnknown
	}
	a, b := g[0], g[1]
	if a < 'A' || a > 'R' || b < 'A' || b > 'R' {
		return ContinentUnknown
	}
	// Fields A and B in latitude cover -90..-70: Antarctica regardless of longitude.
	if b <= 'B' {
		return ContinentAN
	}
	return fieldContinent[a-'A']
}

// DistanceKm returns the haversine great-circle distance between two points.
func DistanceKm(a, b Coordinates) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Grid4FromLatLon returns the 4-character Maidenhead grid for a lat/lon pair.
// It returns false when coordinates are out of range or non-finite.
func Grid4FromLatLon(lat, lon float64) (string, bool) {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return "", false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return "", false
	}
	if lat == 90 {
		lat = 89.999999
	}
	if lon == 180 {
		lon = 179.999999
	}
	adjLon := lon + 180
	adjLat := lat + 90
	fieldLon := int(adjLon / 20)
	fieldLat := int(adjLat / 10)
	if fieldLon < 0 || fieldLon >= 18 || fieldLat < 0 || fieldLat >= 18 {
		return "", false
	}
	squareLon := int((adjLon - float64(fieldLon)*20) / 2)
	squareLat := int(adjLat - float64(fieldLat)*10)
	if squareLon < 0 || squareLon >= 10 || squareLat < 0 || squareLat >= 10 {
		return "", false
	}
	return string([]byte{
		byte('A' + fieldLon),
		byte('A' + fieldLat),
		byte('0' + squareLon),
		byte('0' + squareLat),
	}), true
}
