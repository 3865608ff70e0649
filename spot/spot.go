// Package spot defines the canonical reception report and helpers used across
// the pipeline: construction, grid normalization, enrichment, and natural-key
// hashing for deduplication.
package spot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"bandwatch/geo"
)

// MaxGridLen is the locator precision retained on a spot. Finer sub-squares add
// nothing to continent or distance work, so longer grids are truncated here.
const MaxGridLen = 6

var errIncomplete = errors.New("spot: band, mode and timestamp are required")

// Spot is a single reception report. It is treated as immutable once it leaves
// the parser/enricher: downstream components copy rather than mutate.
//
// A spot is either raw (continents and distance all absent) or enriched
// (continents set whenever the corresponding grid resolved, distance set when
// both grids resolved). Optional numeric fields use pointers so a genuine
// zero value is distinguishable from "not reported".
type Spot struct {
	Band        string // Band code, e.g. "20m" (required)
	Mode        string // Mode code, e.g. "FT8" (required)
	FrequencyHz *int64 // Frequency in Hz (optional)
	SNR         *int   // Signal report in dB (optional)

	SpottedAt time.Time // When the reception happened (required)

	SpottedCall string // Station that was heard (optional)
	SpottedGrid string // Its Maidenhead locator, at most MaxGridLen chars
	SpotterCall string // Station that heard it (optional)
	SpotterGrid string // Its Maidenhead locator, at most MaxGridLen chars

	SpotterContinent geo.Continent // Set by Enrich when SpotterGrid classifies
	SpottedContinent geo.Continent // Set by Enrich when SpottedGrid classifies
	DistanceKm       *float64      // Set by Enrich when both grids decode

	Source string // Label of the feed that delivered the report
}

// New constructs a raw spot. Band, mode and timestamp are mandatory; a report
// missing any of them is not representable as a Spot at all.
func New(band, mode string, spottedAt time.Time) (*Spot, error) {
	band = strings.TrimSpace(band)
	mode = strings.TrimSpace(mode)
	if band == "" || mode == "" || spottedAt.IsZero() {
		return nil, errIncomplete
	}
	return &Spot{
		Band:      band,
		Mode:      strings.ToUpper(mode),
		SpottedAt: spottedAt.UTC(),
	}, nil
}

// TruncateGrid caps a locator at MaxGridLen characters. Shorter grids pass
// through unchanged, including odd lengths; validity is decided at decode time.
func TruncateGrid(grid string) string {
	grid = strings.TrimSpace(grid)
	if len(grid) > MaxGridLen {
		return grid[:MaxGridLen]
	}
	return grid
}

// Enriched reports whether the spot has been through the enricher. Raw spots
// carry no continent or distance data at all.
func (s *Spot) Enriched() bool {
	return s.SpotterContinent != geo.ContinentUnknown ||
		s.SpottedContinent != geo.ContinentUnknown ||
		s.DistanceKm != nil
}

// NaturalKey is the stable identifier used for idempotent persistence.
// Redeliveries of the same report from a best-effort feed produce the same key:
// the timestamp is truncated to the minute so retransmissions with sub-minute
// jitter still collapse onto one row.
func (s *Spot) NaturalKey() string {
	return fmt.Sprintf("%d|%s|%s|%s|%s",
		s.SpottedAt.Truncate(time.Minute).Unix(),
		strings.ToUpper(s.Band),
		strings.ToUpper(s.Mode),
		strings.ToUpper(s.SpottedCall),
		strings.ToUpper(s.SpotterCall))
}

// KeyHash returns a 64-bit xxh3 hash over a fixed-layout buffer covering the
// same fields as NaturalKey. Used by the in-memory duplicate cache where a
// compact key beats the formatted string.
func (s *Spot) KeyHash() uint64 {
	var buf [48]byte
	t := s.SpottedAt.Truncate(time.Minute).Unix()
	binary.LittleEndian.PutUint64(buf[0:8], uint64(t))
	writeFixedUpper(buf[8:16], s.Band)
	writeFixedUpper(buf[16:24], s.Mode)
	writeFixedUpper(buf[24:36], s.SpottedCall)
	writeFixedUpper(buf[36:48], s.SpotterCall)
	return xxh3.Hash(buf[:])
}

// writeFixedUpper copies an uppercased ASCII value into a fixed-width window,
// zero padded, so the hash layout is deterministic across platforms.
func writeFixedUpper(dst []byte, v string) {
	n := 0
	for i := 0; i < len(v) && n < len(dst); i++ {
		c := v[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		dst[n] = c
		n++
	}
	for n < len(dst) {
		dst[n] = 0
		n++
	}
}
