package timeline

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/viewstate"
)

func policy(lawID, state, date string, effect domain.Effect) domain.Policy {
	return domain.Policy{
		LawID: lawID, State: state, LawClass: "background checks",
		Effect: effect, EffectiveDate: date,
	}
}

var testPolicies = []domain.Policy{
	policy("PA-1", "Pennsylvania", "2001-06-15", domain.EffectRestrictive),
	policy("PA-2", "Pennsylvania", "2001-11-02", domain.EffectPermissive),
	policy("PA-3", "pennsylvania", "2010-01-01", domain.EffectUnknown),
	policy("PA-old", "Pennsylvania", "1950-01-01", domain.EffectRestrictive),
	policy("NJ-1", "New Jersey", "2005-03-01", domain.EffectRestrictive),
}

func TestGroupByYear(t *testing.T) {
	grouped := GroupByYear(testPolicies, "Pennsylvania", 1990, 2025)

	require.Len(t, grouped, 2)
	require.Len(t, grouped[2001], 2)
	// Source order within a year is preserved.
	assert.Equal(t, "PA-1", grouped[2001][0].LawID)
	assert.Equal(t, "PA-2", grouped[2001][1].LawID)
	// Case-insensitive state match.
	require.Len(t, grouped[2010], 1)
	assert.Equal(t, "PA-3", grouped[2010][0].LawID)
}

func TestGroupByYear_ExcludesOutOfRangeYears(t *testing.T) {
	grouped := GroupByYear(testPolicies, "Pennsylvania", 1990, 2025)
	assert.NotContains(t, grouped, 1950)
}

func TestGroupByYear_EmptyStateYieldsNoGroups(t *testing.T) {
	assert.Empty(t, GroupByYear(testPolicies, "", 1990, 2025))
}

func TestGroupByYear_DoesNotMutateInput(t *testing.T) {
	before := append([]domain.Policy(nil), testPolicies...)
	_ = GroupByYear(testPolicies, "Pennsylvania", 1990, 2025)
	assert.Equal(t, before, testPolicies)
}

func TestMarkerPosition(t *testing.T) {
	// (2001-1990)/(2025-1990) × 100 = 31.43%.
	assert.InDelta(t, 31.43, MarkerPosition(2001, 1990, 2025), 0.01)
	assert.InDelta(t, 0, MarkerPosition(1990, 1990, 2025), 1e-9)
	assert.InDelta(t, 100, MarkerPosition(2025, 1990, 2025), 1e-9)
	assert.InDelta(t, 0, MarkerPosition(2000, 2000, 2000), 1e-9)
}

func newPolicyTimeline(t *testing.T) (*PolicyTimeline, *viewstate.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := viewstate.New(func(int) []domain.Incident { return nil }, 1990, logger)
	return NewPolicyTimeline(testPolicies, store, 1990, 2025), store
}

func TestPolicyTimeline_Markers(t *testing.T) {
	tl, _ := newPolicyTimeline(t)

	markers := tl.Markers("Pennsylvania")
	require.Len(t, markers, 2)
	assert.Equal(t, Marker{Year: 2001, Position: MarkerPosition(2001, 1990, 2025), Count: 2}, markers[0])
	assert.Equal(t, 2010, markers[1].Year)

	assert.Empty(t, tl.Markers(""))
}

func TestPolicyTimeline_OpenYear(t *testing.T) {
	tl, store := newPolicyTimeline(t)

	policies := tl.OpenYear("Pennsylvania", 2001)
	require.Len(t, policies, 2)

	v := store.Snapshot()
	assert.Equal(t, 2001, v.CurrentYear)
	assert.True(t, v.PolicyModalOpen)
}
