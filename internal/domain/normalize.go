package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DropReason classifies why a source row was excluded during normalization.
// Drops are counted and logged, never fatal.
type DropReason string

const (
	DropBadYear        DropReason = "bad_year"
	DropBadCoordinates DropReason = "bad_coordinates"
	DropNoCasualties   DropReason = "no_casualties"
	DropNotGeocoded    DropReason = "not_geocoded"
)

// RowError carries the drop reason for a rejected row.
type RowError struct {
	Reason DropReason
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row dropped (%s): %v", e.Reason, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

func dropRow(reason DropReason, format string, args ...any) error {
	return &RowError{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Columns maps normalized field names to CSV column indexes. The upstream
// files are version-forked with subtle renames, so every lookup goes
// through the variant table below.
type Columns map[string]int

// columnVariants lists accepted header spellings per normalized field,
// in preference order.
var columnVariants = map[string][]string{
	"id":       {"incident id", "incident_id", "id"},
	"date":     {"incident date", "incident_date", "date"},
	"year":     {"year"},
	"month":    {"month"},
	"lat":      {"latitude", "lat", "y"},
	"lng":      {"longitude", "lon", "lng", "x"},
	"state":    {"state"},
	"city":     {"city or county", "city_or_county", "city"},
	"county":   {"county_name", "county"},
	"killed":   {"victims killed", "victims_killed", "killed"},
	"injured":  {"victims injured", "victims_injured", "injured"},
	"geomatch": {"geocoding match", "geocoding_match"},
}

// ResolveColumns builds a column index from a CSV header row. Header
// matching is case-insensitive and tolerant of the known renames.
func ResolveColumns(header []string) Columns {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}

	cols := make(Columns)
	for field, variants := range columnVariants {
		for _, v := range variants {
			if i, ok := byName[v]; ok {
				cols[field] = i
				break
			}
		}
	}
	return cols
}

func (c Columns) get(rec []string, field string) string {
	i, ok := c[field]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// NormalizeHistoricalRow converts one victim-level row (1985–2018 file)
// into an Incident. Every historical row is exactly one fatality.
func NormalizeHistoricalRow(cols Columns, rec []string, ordinal int) (Incident, error) {
	year, err := strconv.Atoi(cols.get(rec, "year"))
	if err != nil || year < 1985 {
		return Incident{}, dropRow(DropBadYear, "year %q", cols.get(rec, "year"))
	}

	inc := Incident{
		ID:        cols.get(rec, "id"),
		Year:      year,
		Latitude:  parseFloatOrZero(cols.get(rec, "lat")),
		Longitude: parseFloatOrZero(cols.get(rec, "lng")),
		Killed:    1,
		Injured:   0,
		State:     cols.get(rec, "state"),
		Source:    SourceHistorical,
	}
	if m, err := strconv.Atoi(cols.get(rec, "month")); err == nil && m >= 1 && m <= 12 {
		inc.Month = m
	}
	if !inc.HasValidCoordinates() {
		return Incident{}, dropRow(DropBadCoordinates, "coordinates (%v, %v)", inc.Latitude, inc.Longitude)
	}
	if inc.ID == "" {
		inc.ID = GenerateID(SourceHistorical, inc.Latitude, inc.Longitude, year, ordinal)
	}
	return inc, nil
}

// NormalizeIncidentRow converts one incident-level row (recent or current
// file) into an Incident. Current-file rows flagged No_Match by the
// upstream geocoder are dropped; a current-file row without a parseable
// date defaults to the clock's current year.
func NormalizeIncidentRow(source Source, cols Columns, rec []string, ordinal int) (Incident, error) {
	if source == SourceCurrent {
		if m := cols.get(rec, "geomatch"); strings.EqualFold(m, "No_Match") {
			return Incident{}, dropRow(DropNotGeocoded, "geocoding match %q", m)
		}
	}

	year, month, err := parseIncidentDate(cols.get(rec, "date"))
	if err != nil {
		if source != SourceCurrent {
			return Incident{}, dropRow(DropBadYear, "date %q", cols.get(rec, "date"))
		}
		year, month = clock.Now().UTC().Year(), 0
	}
	if year < 1985 {
		return Incident{}, dropRow(DropBadYear, "year %d", year)
	}

	inc := Incident{
		ID:        cols.get(rec, "id"),
		Year:      year,
		Month:     month,
		Latitude:  parseFloatOrZero(cols.get(rec, "lat")),
		Longitude: parseFloatOrZero(cols.get(rec, "lng")),
		Killed:    parseIntOrZero(cols.get(rec, "killed")),
		Injured:   parseIntOrZero(cols.get(rec, "injured")),
		State:     cols.get(rec, "state"),
		City:      cols.get(rec, "city"),
		County:    cols.get(rec, "county"),
		Source:    source,
	}
	if !inc.HasValidCoordinates() {
		return Incident{}, dropRow(DropBadCoordinates, "coordinates (%v, %v)", inc.Latitude, inc.Longitude)
	}
	if inc.Casualties() <= 0 {
		return Incident{}, dropRow(DropNoCasualties, "killed=%d injured=%d", inc.Killed, inc.Injured)
	}
	if inc.ID == "" {
		inc.ID = GenerateID(source, inc.Latitude, inc.Longitude, year, ordinal)
	}
	return inc, nil
}

// incidentDateLayouts covers the export vintages seen in the wild.
var incidentDateLayouts = []string{
	"1/2/2006",
	"2006-01-02",
	"January 2, 2006",
}

func parseIncidentDate(s string) (year, month int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty date")
	}
	for _, layout := range incidentDateLayouts {
		if t, perr := time.Parse(layout, s); perr == nil {
			return t.Year(), int(t.Month()), nil
		}
	}
	// Year-only entries are treated as mid-year, July 1.
	if y, aerr := strconv.Atoi(s); aerr == nil && y >= 1000 && y <= 9999 {
		return y, 7, nil
	}
	return 0, 0, fmt.Errorf("unrecognized date %q", s)
}

func parseFloatOrZero(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseIntOrZero(s string) int {
	if s == "" {
		return 0
	}
	// Some exports carry counts as "1.0".
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return int(f)
	}
	return 0
}
