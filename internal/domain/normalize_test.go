package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func historicalColumns() Columns {
	return ResolveColumns([]string{"incident_id", "year", "month", "Latitude", "Longitude", "state"})
}

func recentColumns() Columns {
	return ResolveColumns([]string{
		"Incident ID", "Incident Date", "State", "City Or County", "Address",
		"Latitude", "Longitude", "Victims Killed", "Victims Injured", "County_Name",
	})
}

func currentColumns() Columns {
	return ResolveColumns([]string{
		"Incident ID", "Incident Date", "State", "City Or County",
		"Latitude", "Longitude", "Victims Killed", "Victims Injured", "Geocoding Match",
	})
}

func TestResolveColumns_ToleratesRenames(t *testing.T) {
	// Older exports use "City" instead of "City Or County" and omit County_Name.
	cols := ResolveColumns([]string{"Incident ID", "Incident Date", "State", "City", "Latitude", "Longitude"})
	rec := []string{"42", "3/4/2022", "NJ", "Newark", "41", "-74"}

	assert.Equal(t, "Newark", cols.get(rec, "city"))
	assert.Equal(t, "", cols.get(rec, "county"))
}

func TestNormalizeHistoricalRow(t *testing.T) {
	cols := historicalColumns()

	inc, err := NormalizeHistoricalRow(cols, []string{"h-1", "1990", "6", "40", "-75", "PA"}, 0)
	require.NoError(t, err)

	assert.Equal(t, "h-1", inc.ID)
	assert.Equal(t, 1990, inc.Year)
	assert.Equal(t, 6, inc.Month)
	assert.Equal(t, 1, inc.Killed)
	assert.Equal(t, 0, inc.Injured)
	assert.Equal(t, 1, inc.Casualties())
	assert.Equal(t, "PA", inc.State)
	assert.Equal(t, SourceHistorical, inc.Source)
}

func TestNormalizeHistoricalRow_Drops(t *testing.T) {
	cols := historicalColumns()

	tests := []struct {
		name   string
		rec    []string
		reason DropReason
	}{
		{"unparseable year", []string{"h-1", "n/a", "", "40", "-75", "PA"}, DropBadYear},
		{"pre-1985 year", []string{"h-1", "1800", "", "40", "-75", "PA"}, DropBadYear},
		{"zero coordinates", []string{"h-1", "1990", "", "0", "0", "PA"}, DropBadCoordinates},
		{"zero latitude only", []string{"h-1", "1990", "", "0", "-75", "PA"}, DropBadCoordinates},
		{"zero longitude only", []string{"h-1", "1990", "", "40", "0", "PA"}, DropBadCoordinates},
		{"out-of-range latitude", []string{"h-1", "1990", "", "95", "-75", "PA"}, DropBadCoordinates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeHistoricalRow(cols, tt.rec, 0)
			var rowErr *RowError
			require.ErrorAs(t, err, &rowErr)
			assert.Equal(t, tt.reason, rowErr.Reason)
		})
	}
}

func TestNormalizeIncidentRow_Recent(t *testing.T) {
	cols := recentColumns()
	rec := []string{"900001", "3/4/2022", "NJ", "Newark", "1 Main St", "41", "-74", "1", "2", "Essex"}

	inc, err := NormalizeIncidentRow(SourceRecent, cols, rec, 0)
	require.NoError(t, err)

	assert.Equal(t, "900001", inc.ID)
	assert.Equal(t, 2022, inc.Year)
	assert.Equal(t, 3, inc.Month)
	assert.Equal(t, 1, inc.Killed)
	assert.Equal(t, 2, inc.Injured)
	assert.Equal(t, 3, inc.Casualties())
	assert.Equal(t, "Newark", inc.City)
	assert.Equal(t, "Essex", inc.County)
	assert.Equal(t, SourceRecent, inc.Source)
}

func TestNormalizeIncidentRow_DateVariants(t *testing.T) {
	cols := recentColumns()

	tests := []struct {
		date      string
		wantYear  int
		wantMonth int
	}{
		{"3/4/2022", 2022, 3},
		{"2022-03-04", 2022, 3},
		{"March 4, 2022", 2022, 3},
		// Year-only dates count as mid-year.
		{"2022", 2022, 7},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			rec := []string{"1", tt.date, "NJ", "", "", "41", "-74", "1", "0", ""}
			inc, err := NormalizeIncidentRow(SourceRecent, cols, rec, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.wantYear, inc.Year)
			assert.Equal(t, tt.wantMonth, inc.Month)
		})
	}
}

func TestNormalizeIncidentRow_RecentRejectsZeroCasualties(t *testing.T) {
	cols := recentColumns()
	rec := []string{"1", "3/4/2022", "NJ", "", "", "41", "-74", "0", "0", ""}

	_, err := NormalizeIncidentRow(SourceRecent, cols, rec, 0)
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, DropNoCasualties, rowErr.Reason)
}

func TestNormalizeIncidentRow_CurrentDropsNoMatch(t *testing.T) {
	cols := currentColumns()
	rec := []string{"1", "1/5/2025", "NY", "", "42", "-73", "0", "1", "No_Match"}

	_, err := NormalizeIncidentRow(SourceCurrent, cols, rec, 0)
	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, DropNotGeocoded, rowErr.Reason)
}

func TestNormalizeIncidentRow_CurrentDefaultsToClockYear(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)))
	defer SetClock(nil)

	cols := currentColumns()
	rec := []string{"1", "", "NY", "", "42", "-73", "0", "1", "Match"}

	inc, err := NormalizeIncidentRow(SourceCurrent, cols, rec, 0)
	require.NoError(t, err)
	assert.Equal(t, 2025, inc.Year)
	assert.Equal(t, 0, inc.Month)
}

func TestNormalizeIncidentRow_GeneratesDeterministicID(t *testing.T) {
	cols := recentColumns()
	rec := []string{"", "3/4/2022", "NJ", "", "", "41", "-74", "1", "0", ""}

	a, err := NormalizeIncidentRow(SourceRecent, cols, rec, 7)
	require.NoError(t, err)
	b, err := NormalizeIncidentRow(SourceRecent, cols, rec, 7)
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, a.ID, b.ID)

	c, err := NormalizeIncidentRow(SourceRecent, cols, rec, 8)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestRowError_Unwrap(t *testing.T) {
	err := dropRow(DropBadYear, "year %q", "x")
	var rowErr *RowError
	require.True(t, errors.As(err, &rowErr))
	assert.Contains(t, err.Error(), "bad_year")
}
