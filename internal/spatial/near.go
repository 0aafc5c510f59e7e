// Package spatial implements the cursor-neighborhood query behind the
// hover panel and the map-click state inference.
package spatial

import (
	"math"
	"sort"

	"github.com/pacifymap/incident-map-service/internal/domain"
)

// DefaultMax caps the number of hits returned by a neighborhood query.
const DefaultMax = 100

// StateInferenceRadius is the fixed degree radius used when inferring the
// clicked state from nearby incidents.
const StateInferenceRadius = 1.0

const earthRadiusKm = 6371

// Cursor is a map cursor position with the current zoom level.
type Cursor struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom"`
}

// Hit is an incident within the search radius, annotated with its
// great-circle distance from the cursor.
type Hit struct {
	domain.Incident
	DistanceKm float64 `json:"distance_km"`
}

// RadiusForZoom returns the search radius in degrees for a zoom level.
// The schedule is a monotone-decreasing step function: tighter neighborhoods
// as the user zooms in.
func RadiusForZoom(zoom float64) float64 {
	switch {
	case zoom >= 12:
		return 0.05
	case zoom >= 10:
		return 0.10
	case zoom >= 8:
		return 0.25
	case zoom >= 6:
		return 0.50
	case zoom >= 4:
		return 1.00
	default:
		return 2.00
	}
}

// Near returns up to max incidents within the zoom-dependent radius of the
// cursor, sorted by ascending great-circle distance. Incidents with invalid
// coordinates are silently dropped and duplicate IDs are collapsed.
func Near(cur Cursor, incidents []domain.Incident, max int) []Hit {
	return NearWithRadius(cur, incidents, RadiusForZoom(cur.Zoom), max)
}

// NearWithRadius is Near with an explicit degree radius. The prefilter is
// Euclidean in degree space, which is cheap and acceptable at these radii;
// reported distances are haversine kilometers.
func NearWithRadius(cur Cursor, incidents []domain.Incident, radiusDeg float64, max int) []Hit {
	if max <= 0 {
		max = DefaultMax
	}

	seen := make(map[string]bool)
	hits := make([]Hit, 0, 32)
	for _, inc := range incidents {
		if !inc.HasValidCoordinates() {
			continue
		}
		dLat := inc.Latitude - cur.Lat
		dLng := inc.Longitude - cur.Lng
		if math.Sqrt(dLat*dLat+dLng*dLng) > radiusDeg {
			continue
		}
		if seen[inc.ID] {
			continue
		}
		seen[inc.ID] = true
		hits = append(hits, Hit{
			Incident:   inc,
			DistanceKm: HaversineKm(cur.Lat, cur.Lng, inc.Latitude, inc.Longitude),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].DistanceKm < hits[j].DistanceKm
	})
	if len(hits) > max {
		hits = hits[:max]
	}
	return hits
}

// InferState guesses the state under a map click: the modal state among
// incidents within one degree, ties broken by first occurrence. Returns ""
// when no incidents are near enough, in which case the caller leaves the
// selection unchanged.
func InferState(cur Cursor, incidents []domain.Incident) string {
	hits := NearWithRadius(cur, incidents, StateInferenceRadius, DefaultMax)

	counts := make(map[string]int)
	order := make([]string, 0, 8)
	for _, h := range hits {
		if h.State == "" {
			continue
		}
		if counts[h.State] == 0 {
			order = append(order, h.State)
		}
		counts[h.State]++
	}

	best := ""
	for _, state := range order {
		if best == "" || counts[state] > counts[best] {
			best = state
		}
	}
	return best
}

// HaversineKm computes the great-circle distance between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const degToRad = math.Pi / 180

	dLat := (lat2 - lat1) * degToRad
	dLng := (lng2 - lng1) * degToRad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}
