// Command genfixtures writes deterministic miniature copies of the four
// upstream data files, in the exact header spellings each vintage uses.
// The output is small enough to commit and feeds cmd/validate and local
// development without touching the real sources.
//
// Usage:
//
//	go run ./cmd/genfixtures -out fixtures
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

func main() {
	out := flag.String("out", "fixtures", "output directory")
	flag.Parse()

	if err := run(*out); err != nil {
		log.Fatal(err)
	}
}

func run(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name  string
		write func(path string) error
	}{
		{"gun_incidents_1985-2018_victim_level.csv", writeHistorical},
		{"gun_incidents_2019-2025_incident_level.csv", writeRecent},
		{"gun_incidents_current_year.csv", writeCurrent},
		{"policy_analysis_results.json", writePolicies},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := f.write(path); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
		log.Printf("wrote %s", path)
	}
	return nil
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

// writeHistorical emits the victim-level vintage: Year/Month columns, no
// casualty counts, plus one bad-coordinate row and one pre-1985 row that
// normalization must drop.
func writeHistorical(path string) error {
	return writeCSV(path, [][]string{
		{"Year", "Month", "Latitude", "Longitude", "State"},
		{"1990", "6", "34.0522", "-118.2437", "California"},
		{"1999", "4", "39.7392", "-104.9903", "Colorado"},
		{"2007", "4", "37.2296", "-80.4139", "Virginia"},
		{"2018", "2", "26.3054", "-80.2684", "Florida"},
		{"2018", "2", "26.3054", "-80.2684", "Florida"},
		{"2012", "12", "0", "0", "Connecticut"},   // geocoding failure sentinel
		{"1984", "7", "33.9697", "-117.3281", "California"}, // before coverage window
	})
}

// writeRecent emits the incident-level vintage with the renamed headers.
func writeRecent(path string) error {
	return writeCSV(path, [][]string{
		{"Incident ID", "Incident Date", "Latitude", "Longitude", "State", "City Or County", "Victims Killed", "Victims Injured"},
		{"2019001", "8/3/2019", "31.7619", "-106.4850", "Texas", "El Paso", "23", "22"},
		{"2021004", "3/22/2021", "40.0150", "-105.2705", "Colorado", "Boulder", "10", "0"},
		{"2022007", "5/24/2022", "29.2097", "-99.7862", "Texas", "Uvalde", "21", "17"},
		{"2023002", "2023-01-21", "34.0625", "-118.0303", "California", "Monterey Park", "11", "9"},
		{"2019099", "6/1/2019", "32.7157", "-117.1611", "California", "San Diego", "0", "0"}, // no casualties
	})
}

// writeCurrent emits the current-year vintage: snake_case headers, a
// Geocoding Match column, and one undated row that defaults to the clock
// year.
func writeCurrent(path string) error {
	return writeCSV(path, [][]string{
		{"incident_id", "incident_date", "lat", "lon", "state", "city", "county_name", "victims_killed", "victims_injured", "geocoding_match"},
		{"2025010", "1/5/2025", "36.1627", "-86.7816", "Tennessee", "Nashville", "Davidson", "2", "3", "Exact"},
		{"2025011", "", "41.8781", "-87.6298", "Illinois", "Chicago", "Cook", "1", "4", "Approximate"},
		{"2025012", "2/14/2025", "0", "0", "Ohio", "Columbus", "Franklin", "1", "1", "No_Match"}, // dropped: not geocoded
	})
}

// writePolicies emits a small policy set, including the NaN tokens the
// loader's pre-clean step must scrub.
func writePolicies(path string) error {
	policies := []map[string]any{
		{
			"law_id":            "CA-1993-AWB",
			"state":             "California",
			"law_class":         "assault weapons ban",
			"effect":            "restrictive",
			"effective_date":    "1993-01-01",
			"original_content":  "Prohibits the manufacture and sale of designated assault weapons.",
			"human_explanation": "Bans a defined list of semi-automatic firearms.",
			"state_mass_shooting_stats": map[string]any{
				"total":        52,
				"avg_per_year": 1.6,
				"killed":       214,
				"injured":      391,
			},
		},
		{
			"law_id":           "TX-2021-PC",
			"state":            "Texas",
			"law_class":        "permitless carry",
			"effect":           "permissive",
			"effective_date":   "2021-09-01",
			"original_content": "Allows carrying a handgun without a license to carry.",
		},
		{
			"law_id":         "PA-1998-BC",
			"state":          "Pennsylvania",
			"law_class":      "background checks",
			"effect":         "restrictive",
			"effective_date": "1998-06-15",
		},
	}

	data, err := json.MarshalIndent(policies, "", "  ")
	if err != nil {
		return err
	}
	// Inject the raw NaN tokens the real export contains, so the loader's
	// pre-clean path is exercised end to end.
	nanRecord := []byte(`,
  {
    "law_id": "FL-2018-RF",
    "state": "Florida",
    "law_class": "red flag",
    "effect": "restrictive",
    "effective_date": "2018-03-09",
    "state_mass_shooting_stats": {"total": 30, "avg_per_year": NaN, "killed": NaN, "injured": 112}
  }
]`)
	data = append(data[:len(data)-2], nanRecord...)

	return os.WriteFile(path, data, 0o644)
}
