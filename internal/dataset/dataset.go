package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"

	gocache "github.com/patrickmn/go-cache"

	"github.com/pacifymap/incident-map-service/internal/domain"
)

// YearAll is the sentinel passed to DataForYear and YearStats to mean the
// full, unfiltered dataset.
const YearAll = -1

// Stats are the single-pass aggregates for one year (or the whole dataset).
type Stats struct {
	TotalIncidents  int `json:"total_incidents"`
	TotalKilled     int `json:"total_killed"`
	TotalInjured    int `json:"total_injured"`
	TotalCasualties int `json:"total_casualties"`
}

// Dataset is the immutable result of a load: incidents indexed by year plus
// the policy records. Per-year slices and stats are memoized; the data
// never changes after load, so cached entries never expire.
type Dataset struct {
	byYear   map[int][]domain.Incident
	years    []int
	policies []domain.Policy
	cache    *gocache.Cache
}

// New builds a Dataset from normalized incidents and policies.
func New(incidents []domain.Incident, policies []domain.Policy) *Dataset {
	byYear := make(map[int][]domain.Incident)
	for _, inc := range incidents {
		byYear[inc.Year] = append(byYear[inc.Year], inc)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Ints(years)

	return &Dataset{
		byYear:   byYear,
		years:    years,
		policies: policies,
		cache:    gocache.New(gocache.NoExpiration, 0),
	}
}

// IncidentsByYear returns the year index. The map and its slices must not
// be mutated.
func (d *Dataset) IncidentsByYear() map[int][]domain.Incident {
	return d.byYear
}

// AvailableYears returns the sorted distinct years across all sources.
func (d *Dataset) AvailableYears() []int {
	out := make([]int, len(d.years))
	copy(out, d.years)
	return out
}

// YearRange returns the first and last available year. Both are 0 when the
// dataset is empty.
func (d *Dataset) YearRange() (min, max int) {
	if len(d.years) == 0 {
		return 0, 0
	}
	return d.years[0], d.years[len(d.years)-1]
}

// DataForYear returns the incidents whose year equals y, or the full
// dataset for YearAll. The returned slice must not be mutated.
func (d *Dataset) DataForYear(y int) []domain.Incident {
	if y != YearAll {
		return d.byYear[y]
	}

	if all, ok := d.cache.Get("all"); ok {
		return all.([]domain.Incident)
	}
	all := make([]domain.Incident, 0)
	for _, y := range d.years {
		all = append(all, d.byYear[y]...)
	}
	d.cache.SetDefault("all", all)
	return all
}

// YearStats computes the aggregate counts for y in a single pass,
// memoizing per year.
func (d *Dataset) YearStats(y int) Stats {
	key := fmt.Sprintf("stats:%d", y)
	if s, ok := d.cache.Get(key); ok {
		return s.(Stats)
	}

	var stats Stats
	for _, inc := range d.DataForYear(y) {
		stats.TotalIncidents++
		stats.TotalKilled += inc.Killed
		stats.TotalInjured += inc.Injured
		stats.TotalCasualties += inc.Casualties()
	}
	d.cache.SetDefault(key, stats)
	return stats
}

// Policies returns the loaded policy records. The slice must not be mutated.
func (d *Dataset) Policies() []domain.Policy {
	return d.policies
}

// PolicyByID finds a policy by law_id.
func (d *Dataset) PolicyByID(lawID string) (domain.Policy, bool) {
	for _, p := range d.policies {
		if p.LawID == lawID {
			return p, true
		}
	}
	return domain.Policy{}, false
}

// CheckReadiness reports whether the dataset holds any incidents. It backs
// the HTTP readiness probe.
func (d *Dataset) CheckReadiness(_ context.Context) error {
	if len(d.years) == 0 {
		return errors.New("dataset is empty")
	}
	return nil
}
