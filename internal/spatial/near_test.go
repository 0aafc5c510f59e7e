package spatial

import (
	"fmt"
	"math"
	"testing"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func incident(id string, lat, lng float64, state string) domain.Incident {
	return domain.Incident{
		ID: id, Year: 1990, Latitude: lat, Longitude: lng,
		Killed: 1, State: state, Source: domain.SourceHistorical,
	}
}

func TestRadiusForZoom_Schedule(t *testing.T) {
	tests := []struct {
		zoom float64
		want float64
	}{
		{14, 0.05},
		{12, 0.05},
		{11, 0.10},
		{10, 0.10},
		{8, 0.25},
		{6, 0.50},
		{4, 1.00},
		{3, 2.00},
		{0, 2.00},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RadiusForZoom(tt.zoom), "zoom %v", tt.zoom)
	}
}

func TestRadiusForZoom_MonotoneDecreasing(t *testing.T) {
	for z := 0.0; z < 16; z += 0.5 {
		assert.GreaterOrEqual(t, RadiusForZoom(z), RadiusForZoom(z+0.5), "zoom %v", z)
	}
}

func TestNear_DistanceAndOrdering(t *testing.T) {
	incidents := []domain.Incident{
		incident("far", 40.5, -75.5, "PA"),
		incident("near", 40.05, -75.05, "PA"),
		incident("mid", 40.2, -75.2, "PA"),
	}

	hits := Near(Cursor{Lat: 40, Lng: -75, Zoom: 2}, incidents, 10)
	require.Len(t, hits, 3)

	assert.Equal(t, "near", hits[0].ID)
	assert.Equal(t, "mid", hits[1].ID)
	assert.Equal(t, "far", hits[2].ID)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].DistanceKm, hits[i].DistanceKm)
	}
}

func TestNear_HaversineReference(t *testing.T) {
	// Cursor 0.1° away in both axes from a point at (40, -75). Haversine
	// with R=6371 gives 14.003 km for this pair.
	incidents := []domain.Incident{incident("h-1", 40, -75, "PA")}

	hits := Near(Cursor{Lat: 40.1, Lng: -75.1, Zoom: 8}, incidents, 100)
	require.Len(t, hits, 1)
	assert.InDelta(t, 14.003, hits[0].DistanceKm, 0.01)
}

func TestNear_RadiusExcludes(t *testing.T) {
	incidents := []domain.Incident{
		incident("in", 40.02, -75.02, "PA"),
		incident("out", 40.5, -75.5, "PA"),
	}

	// Zoom 12 → 0.05° radius.
	hits := Near(Cursor{Lat: 40, Lng: -75, Zoom: 12}, incidents, 100)
	require.Len(t, hits, 1)
	assert.Equal(t, "in", hits[0].ID)
}

func TestNear_DropsInvalidCoordinates(t *testing.T) {
	incidents := []domain.Incident{
		incident("zero", 0, 0, "PA"),
		{ID: "nan", Year: 1990, Latitude: math.NaN(), Longitude: -75, Killed: 1, Source: domain.SourceHistorical},
		incident("ok", 40.01, -75.01, "PA"),
	}

	hits := Near(Cursor{Lat: 40, Lng: -75, Zoom: 2}, incidents, 100)
	require.Len(t, hits, 1)
	assert.Equal(t, "ok", hits[0].ID)
}

func TestNear_CollapsesDuplicateIDs(t *testing.T) {
	incidents := []domain.Incident{
		incident("dup", 40.01, -75.01, "PA"),
		incident("dup", 40.02, -75.02, "PA"),
	}

	hits := Near(Cursor{Lat: 40, Lng: -75, Zoom: 2}, incidents, 100)
	assert.Len(t, hits, 1)
}

func TestNear_TruncatesToMax(t *testing.T) {
	incidents := make([]domain.Incident, 0, 150)
	for i := 0; i < 150; i++ {
		incidents = append(incidents, incident(
			fmt.Sprintf("i-%d", i), 40+float64(i)*0.0001, -75, "PA"))
	}

	hits := Near(Cursor{Lat: 40, Lng: -75, Zoom: 8}, incidents, 0)
	assert.Len(t, hits, DefaultMax)
}

func TestInferState_Modal(t *testing.T) {
	incidents := []domain.Incident{
		incident("1", 40.1, -75.1, "PA"),
		incident("2", 40.2, -75.2, "PA"),
		incident("3", 40.3, -75.3, "NJ"),
	}

	assert.Equal(t, "PA", InferState(Cursor{Lat: 40, Lng: -75, Zoom: 8}, incidents))
}

func TestInferState_TieBrokenByFirstOccurrence(t *testing.T) {
	incidents := []domain.Incident{
		incident("nj", 40.01, -75.01, "NJ"),
		incident("pa", 40.02, -75.02, "PA"),
	}

	// NJ appears first among sorted hits, so the 1–1 tie goes to NJ.
	assert.Equal(t, "NJ", InferState(Cursor{Lat: 40, Lng: -75, Zoom: 8}, incidents))
}

func TestInferState_EmptyWhenNothingNear(t *testing.T) {
	incidents := []domain.Incident{incident("far", 45, -120, "OR")}
	assert.Equal(t, "", InferState(Cursor{Lat: 40, Lng: -75, Zoom: 8}, incidents))
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Philadelphia to New York City, roughly 130 km.
	d := HaversineKm(39.9526, -75.1652, 40.7128, -74.0060)
	assert.InDelta(t, 130, d, 5)
}
