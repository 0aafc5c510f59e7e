package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
)

// Source identifies which upstream file an incident was normalized from.
type Source string

const (
	SourceHistorical Source = "historical" // per-victim rows, 1985–2018
	SourceRecent     Source = "recent"     // incident-level rows, 2019–2025
	SourceCurrent    Source = "current"    // incident-level rows, current year
)

// Incident is the normalized representation shared by all three sources.
// Month is 0 when the source row carries no month information.
type Incident struct {
	ID        string  `json:"id"`
	Year      int     `json:"year"`
	Month     int     `json:"month,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Killed    int     `json:"killed"`
	Injured   int     `json:"injured"`
	State     string  `json:"state"`
	City      string  `json:"city,omitempty"`
	County    string  `json:"county,omitempty"`
	Source    Source  `json:"source"`
}

// Casualties is the combined victim count.
func (i Incident) Casualties() int {
	return i.Killed + i.Injured
}

// HasValidCoordinates reports whether the incident sits at a usable map
// position: finite, in range, and neither axis exactly zero. A zero on
// either axis is the geocoding-failure sentinel; no U.S. incident lies on
// the equator or the prime meridian.
func (i Incident) HasValidCoordinates() bool {
	if math.IsNaN(i.Latitude) || math.IsInf(i.Latitude, 0) ||
		math.IsNaN(i.Longitude) || math.IsInf(i.Longitude, 0) {
		return false
	}
	if i.Latitude == 0 || i.Longitude == 0 {
		return false
	}
	return math.Abs(i.Latitude) <= 90 && math.Abs(i.Longitude) <= 180
}

// GenerateID produces a deterministic ID for rows that lack an upstream one.
// Reprocessing the same file produces the same IDs, which keeps replays and
// re-publishes idempotent downstream.
func GenerateID(source Source, lat, lng float64, year, ordinal int) string {
	input := fmt.Sprintf("%s|%.5f|%.5f|%d|%d", source, lat, lng, year, ordinal)
	hash := sha256.Sum256([]byte(input))
	return string(source) + "-" + hex.EncodeToString(hash[:8])
}
