package timeline

import (
	"sort"
	"strings"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/viewstate"
)

// Marker is one clickable point on the scrubber track.
type Marker struct {
	Year     int     `json:"year"`
	Position float64 `json:"position"` // percent along the track
	Count    int     `json:"count"`
}

// PolicyTimeline derives the per-state policy view from the loaded policy
// set. It never mutates policies: filtering and grouping are pure functions
// of the inputs.
type PolicyTimeline struct {
	policies []domain.Policy
	store    *viewstate.Store
	yMin     int
	yMax     int
}

// NewPolicyTimeline creates a timeline over the loaded policies and the
// available-years range.
func NewPolicyTimeline(policies []domain.Policy, store *viewstate.Store, yMin, yMax int) *PolicyTimeline {
	return &PolicyTimeline{policies: policies, store: store, yMin: yMin, yMax: yMax}
}

// GroupByYear filters policies to the selected state (case-insensitive)
// and years inside [yMin, yMax], grouped by year with source order kept.
// An empty state yields an empty grouping: the timeline renders a hint.
func GroupByYear(policies []domain.Policy, selectedState string, yMin, yMax int) map[int][]domain.Policy {
	grouped := make(map[int][]domain.Policy)
	if selectedState == "" {
		return grouped
	}
	for _, p := range policies {
		if !strings.EqualFold(p.State, selectedState) {
			continue
		}
		y := p.Year()
		if y < yMin || y > yMax {
			continue
		}
		grouped[y] = append(grouped[y], p)
	}
	return grouped
}

// MarkerPosition places a year on the track as a percentage.
func MarkerPosition(year, yMin, yMax int) float64 {
	if yMax == yMin {
		return 0
	}
	return float64(year-yMin) / float64(yMax-yMin) * 100
}

// ForState returns the grouped policies for a state.
func (t *PolicyTimeline) ForState(state string) map[int][]domain.Policy {
	return GroupByYear(t.policies, state, t.yMin, t.yMax)
}

// Markers returns the sorted marker set for a state.
func (t *PolicyTimeline) Markers(state string) []Marker {
	grouped := t.ForState(state)
	markers := make([]Marker, 0, len(grouped))
	for y, ps := range grouped {
		markers = append(markers, Marker{
			Year:     y,
			Position: MarkerPosition(y, t.yMin, t.yMax),
			Count:    len(ps),
		})
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].Year < markers[j].Year })
	return markers
}

// OpenYear handles a marker click: the current year propagates to the
// scrubber through the store, and the modal opens with that year's
// policies for the state.
func (t *PolicyTimeline) OpenYear(state string, year int) []domain.Policy {
	policies := t.ForState(state)[year]
	t.store.SetYear(year)
	t.store.SetModal(true)
	return policies
}
