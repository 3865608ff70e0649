// Package activity turns the persisted spot history into per-band-and-mode
// activity summaries: how busy a slice of spectrum is right now, how that
// compares to the immediately preceding window, the longest confirmed path,
// and which continent pairs are currently workable.
package activity

import (
	"fmt"
	"time"

	"bandwatch/geo"
)

// FavorableFloor is the minimum current-window spot count before a band/mode
// can be called favorable. Below it, trend percentages are mostly noise.
const FavorableFloor = 100

// Key identifies one aggregation bucket.
type Key struct {
	Band string
	Mode string
}

func (k Key) String() string { return k.Band + "/" + k.Mode }

// ContinentPath is an unordered continent pair in canonical form, the
// alphabetically earlier code first, e.g. "EU-NA". Direction does not matter
// for propagation so EU>NA and NA>EU collapse to the same path.
type ContinentPath string

// NewContinentPath canonicalizes a spotter/spotted continent pair. It reports
// false when either side is unknown.
func NewContinentPath(a, b geo.Continent) (ContinentPath, bool) {
	if a == "" || b == "" {
		return "", false
	}
	if b < a {
		a, b = b, a
	}
	return ContinentPath(string(a) + "-" + string(b)), true
}

// BandActivity is one computed summary for a band/mode key.
type BandActivity struct {
	Band              string          `json:"band"`
	Mode              string          `json:"mode"`
	SpotCount         int64           `json:"spot_count"`
	BaselineSpotCount int64           `json:"baseline_spot_count"`
	TrendPercentage   float64         `json:"trend_percentage"`
	MaxDxKm           *float64        `json:"max_dx_km,omitempty"`
	MaxDxPath         string          `json:"max_dx_path,omitempty"`
	ActivePaths       []ContinentPath `json:"active_paths"`
	WindowMinutes     int             `json:"window_minutes"`
	WindowStart       time.Time       `json:"window_start"`
	WindowEnd         time.Time       `json:"window_end"`
	ComputedAt        time.Time       `json:"computed_at"`
}

// Key returns the bucket this summary belongs to.
func (a BandActivity) Key() Key { return Key{Band: a.Band, Mode: a.Mode} }

// Favorable reports whether the band/mode looks worth calling on: enough
// spots to trust the numbers, activity rising against the baseline, and at
// least one continent path open.
func (a BandActivity) Favorable() bool {
	return a.SpotCount >= FavorableFloor &&
		a.TrendPercentage > 0 &&
		len(a.ActivePaths) > 0
}

// Trend computes the percentage change of current over baseline. A zero
// baseline yields 0 rather than a division blowup; "no prior data" is not a
// surge.
func Trend(current, baseline int64) float64 {
	if baseline == 0 {
		return 0
	}
	return float64(current-baseline) / float64(baseline) * 100
}

// FormatPath renders the max-DX endpoints the way operators read spots,
// spotted station first.
func FormatPath(spottedCall, spotterCall string) string {
	return fmt.Sprintf("%s → %s", spottedCall, spotterCall)
}
