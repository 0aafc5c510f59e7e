// Command validate performs data integrity checks over local fixture copies
// of the incident CSVs and the policy JSON: normalization drop rates, ID
// determinism, coordinate validity, and policy record completeness.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -historical fixtures/gun_incidents_1985-2018_victim_level.csv \
//	  -recent fixtures/gun_incidents_2019-2025_incident_level.csv \
//	  -current fixtures/gun_incidents_current_year.csv \
//	  -policies fixtures/policy_analysis_results.json
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pacifymap/incident-map-service/internal/dataset"
	"github.com/pacifymap/incident-map-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	historical := flag.String("historical", "", "path to the 1985-2018 victim-level CSV")
	recent := flag.String("recent", "", "path to the 2019-2025 incident-level CSV")
	current := flag.String("current", "", "path to the current-year CSV")
	policies := flag.String("policies", "", "path to the policy analysis JSON")
	flag.Parse()

	if *historical == "" || *recent == "" || *current == "" || *policies == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*historical, *recent, *current, *policies); code != 0 {
		os.Exit(code)
	}
}

func run(historicalPath, recentPath, currentPath, policiesPath string) int {
	// Fix the clock so undated current-year rows normalize reproducibly.
	domain.SetClock(clockwork.NewFakeClockAt(
		time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC),
	))
	defer domain.SetClock(nil)

	fmt.Println("=== Incident Data Integrity Validation ===")
	fmt.Println()

	files := []struct {
		source domain.Source
		path   string
	}{
		{domain.SourceHistorical, historicalPath},
		{domain.SourceRecent, recentPath},
		{domain.SourceCurrent, currentPath},
	}

	var all []domain.Incident
	bySource := map[domain.Source][]domain.Incident{}
	dropCounts := map[domain.Source]map[domain.DropReason]int{}
	bodies := map[domain.Source][]byte{}

	for _, f := range files {
		data, err := os.ReadFile(f.path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", f.path, err)
			return 1
		}
		kept, dropped, err := dataset.ParseIncidentsCSV(f.source, data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: parse %s: %v\n", f.source, err)
			return 1
		}
		bodies[f.source] = data
		bySource[f.source] = kept
		dropCounts[f.source] = dropped
		all = append(all, kept...)
	}

	policyData, err := os.ReadFile(policiesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: read %s: %v\n", policiesPath, err)
		return 1
	}
	policyRecords, droppedPolicies, err := dataset.ParsePolicies(policyData)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: parse policies: %v\n", err)
		return 1
	}

	phases := []*phase{
		validateNormalization(bySource, dropCounts),
		validateIncidents(all),
		validateIDDeterminism(bySource, bodies),
		validatePolicies(policyRecords, droppedPolicies),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d incidents (%d historical, %d recent, %d current), %d policies\n",
		len(all),
		len(bySource[domain.SourceHistorical]),
		len(bySource[domain.SourceRecent]),
		len(bySource[domain.SourceCurrent]),
		len(policyRecords))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// ── Phase 1: Normalization ──
// Every source must yield at least one incident, and drop reasons are
// reported per source.

func validateNormalization(bySource map[domain.Source][]domain.Incident, drops map[domain.Source]map[domain.DropReason]int) *phase {
	p := &phase{name: "Phase 1: Normalization (per-source yield)"}

	for source, kept := range bySource {
		if len(kept) == 0 {
			p.errorf("%s: zero incidents normalized", source)
		}
		for reason, n := range drops[source] {
			fmt.Printf("  %s: dropped %d rows (%s)\n", source, n, reason)
		}
	}
	return p
}

// ── Phase 2: Incident Invariants ──

func validateIncidents(all []domain.Incident) *phase {
	p := &phase{name: "Phase 2: Incident Invariants"}

	currentYear := time.Now().UTC().Year()
	seen := map[string]int{}
	for i := range all {
		in := &all[i]
		if in.ID == "" {
			p.errorf("incident %d: empty ID", i)
			continue
		}
		seen[in.ID]++
		if !in.HasValidCoordinates() {
			p.errorf("ID %s: invalid coordinates (%g, %g)", in.ID, in.Latitude, in.Longitude)
		}
		if in.Year < 1985 || in.Year > currentYear {
			p.errorf("ID %s: year %d out of range", in.ID, in.Year)
		}
		if in.Source != domain.SourceHistorical && in.Casualties() == 0 {
			p.errorf("ID %s: %s row with zero casualties", in.ID, in.Source)
		}
		if in.State == "" {
			p.errorf("ID %s: empty state", in.ID)
		}
	}
	for id, n := range seen {
		if n > 1 {
			p.errorf("ID %s appears %d times", id, n)
		}
	}
	return p
}

// ── Phase 3: ID Determinism ──
// Reparsing the same bytes must yield identical IDs in identical order.

func validateIDDeterminism(bySource map[domain.Source][]domain.Incident, bodies map[domain.Source][]byte) *phase {
	p := &phase{name: "Phase 3: ID Determinism (reparse)"}

	for source, first := range bySource {
		second, _, err := dataset.ParseIncidentsCSV(source, bodies[source])
		if err != nil {
			p.errorf("%s: reparse failed: %v", source, err)
			continue
		}
		if len(first) != len(second) {
			p.errorf("%s: reparse yielded %d incidents, first pass %d", source, len(second), len(first))
			continue
		}
		for i := range first {
			if first[i].ID != second[i].ID {
				p.errorf("%s row %d: ID %q != %q on reparse", source, i, first[i].ID, second[i].ID)
			}
		}
	}
	return p
}

// ── Phase 4: Policy Records ──

func validatePolicies(policies []domain.Policy, dropped int) *phase {
	p := &phase{name: "Phase 4: Policy Records"}

	if dropped > 0 {
		fmt.Printf("  policies: dropped %d records (missing fields)\n", dropped)
	}
	if len(policies) == 0 {
		p.errorf("zero valid policy records")
	}

	seen := map[string]bool{}
	for i := range policies {
		pol := &policies[i]
		if !pol.Valid() {
			p.errorf("policy %d (%s): missing required fields", i, pol.LawID)
		}
		if seen[pol.LawID] {
			p.errorf("duplicate law_id %q", pol.LawID)
		}
		seen[pol.LawID] = true
		if y := pol.Year(); y < 1700 || y > time.Now().UTC().Year() {
			p.errorf("policy %s: effective year %d out of range", pol.LawID, y)
		}
		switch pol.Effect {
		case domain.EffectRestrictive, domain.EffectPermissive, domain.EffectUnknown:
		default:
			p.errorf("policy %s: unknown effect %q", pol.LawID, pol.Effect)
		}
	}
	return p
}
