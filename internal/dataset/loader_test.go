package dataset

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/observability"
)

const (
	historicalCSV = "incident_id,year,month,Latitude,Longitude,state\n" +
		"h-1,1990,3,40,-75,PA\n"

	recentCSV = "Incident ID,Incident Date,State,City Or County,Address,Latitude,Longitude,Victims Killed,Victims Injured,County_Name\n" +
		"900001,3/4/2022,NJ,Newark,1 Main St,41,-74,1,2,Essex\n"

	currentCSV = "Incident ID,Incident Date,State,City Or County,Latitude,Longitude,Victims Killed,Victims Injured,Geocoding Match\n" +
		"900002,,NY,Albany,42,-73,0,1,Match\n"

	policiesJSON = `[
		{"law_id": "PA-101", "state": "Pennsylvania", "law_class": "background checks",
		 "effect": "Restrictive", "effective_date": "2001-06-15",
		 "original_content": "Section 1.", "human_explanation": "Checks required.",
		 "state_mass_shooting_stats": {"total": 12, "avg_per_year": NaN, "killed": 30, "injured": 41}},
		{"law_id": "", "state": "Texas", "law_class": "carry", "effect": "permissive",
		 "effective_date": "1995-01-01", "original_content": "", "human_explanation": ""}
	]`
)

func testSources(t *testing.T, historical, recent, current, policies http.HandlerFunc) Sources {
	t.Helper()
	h := httptest.NewServer(historical)
	r := httptest.NewServer(recent)
	c := httptest.NewServer(current)
	p := httptest.NewServer(policies)
	t.Cleanup(func() { h.Close(); r.Close(); c.Close(); p.Close() })
	return Sources{HistoricalURL: h.URL, RecentURL: r.URL, CurrentURL: c.URL, PoliciesURL: p.URL}
}

func serve(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	}
}

func testLoader(t *testing.T, sources Sources) *Loader {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewLoader(sources, 5*time.Second, logger, observability.NewMetricsForTesting())
}

func TestLoader_Load(t *testing.T) {
	// Fix the clock so the undated current-year row lands in 2025.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	sources := testSources(t, serve(historicalCSV), serve(recentCSV), serve(currentCSV), serve(policiesJSON))
	ds, err := testLoader(t, sources).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{1990, 2022, 2025}, ds.AvailableYears())
	assert.Equal(t, Stats{TotalIncidents: 1, TotalKilled: 1, TotalInjured: 2, TotalCasualties: 3}, ds.YearStats(2022))

	// Policy with empty law_id is dropped; the NaN token parses as a zero field.
	policies := ds.Policies()
	require.Len(t, policies, 1)
	assert.Equal(t, "PA-101", policies[0].LawID)
	assert.Equal(t, domain.EffectRestrictive, policies[0].Effect)
	require.NotNil(t, policies[0].StateStats)
	assert.Equal(t, 12, policies[0].StateStats.Total)
	assert.Zero(t, policies[0].StateStats.AvgPerYear)
}

func TestLoader_Load_FetchFailureAborts(t *testing.T) {
	sources := testSources(t, serve(historicalCSV), serve(recentCSV), serve(currentCSV),
		func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

	_, err := testLoader(t, sources).Load(context.Background())
	var fetchErr *domain.SourceFetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "policies", fetchErr.Source)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.Status)
}

func TestLoader_Load_MalformedPolicyJSON(t *testing.T) {
	sources := testSources(t, serve(historicalCSV), serve(recentCSV), serve(currentCSV), serve("{not json"))

	_, err := testLoader(t, sources).Load(context.Background())
	var parseErr *domain.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "policies", parseErr.Source)
}

func TestParseIncidentsCSV_CountsDrops(t *testing.T) {
	csvBody := "Incident ID,Incident Date,State,City Or County,Latitude,Longitude,Victims Killed,Victims Injured\n" +
		"1,3/4/2022,NJ,Newark,41,-74,1,0\n" +
		"2,3/4/2022,NJ,Newark,0,0,1,0\n" +
		"3,3/4/2022,NJ,Newark,41,-74,0,0\n" +
		"4,bad-date,NJ,Newark,41,-74,1,0\n"

	kept, dropped, err := ParseIncidentsCSV(domain.SourceRecent, []byte(csvBody))
	require.NoError(t, err)

	assert.Len(t, kept, 1)
	assert.Equal(t, 1, dropped[domain.DropBadCoordinates])
	assert.Equal(t, 1, dropped[domain.DropNoCasualties])
	assert.Equal(t, 1, dropped[domain.DropBadYear])
}

func TestCleanPolicyJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"value position", `{"a": NaN}`, `{"a": null}`},
		{"array", `[NaN, NaN]`, `[null, null]`},
		{"adjacent tokens", `{"a":NaN,"b":NaN}`, `{"a":null,"b":null}`},
		{"quote-adjacent string content untouched", `{"a": "NaN is odd"}`, `{"a": "NaN is odd"}`},
		// Word-boundary matching rewrites space-delimited NaN even inside
		// string values, matching the upstream producer's own cleanup.
		{"space-delimited string content rewritten", `{"a": "stats were NaN in 2020"}`, `{"a": "stats were null in 2020"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(CleanPolicyJSON([]byte(tt.in))))
		})
	}
}
