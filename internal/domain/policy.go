package domain

import (
	"strconv"
	"strings"
)

// Effect classifies a policy's direction relative to firearm access.
type Effect string

const (
	EffectRestrictive Effect = "restrictive"
	EffectPermissive  Effect = "permissive"
	EffectUnknown     Effect = "unknown"
)

// NormalizeEffect maps free-form upstream labels onto the three-way enum.
func NormalizeEffect(s string) Effect {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "restrictive":
		return EffectRestrictive
	case "permissive":
		return EffectPermissive
	default:
		return EffectUnknown
	}
}

// Color returns the display color used for policy-effect badges.
func (e Effect) Color() string {
	switch e {
	case EffectRestrictive:
		return "crimson"
	case EffectPermissive:
		return "forestgreen"
	default:
		return "gray"
	}
}

// StateMassShootingStats summarizes incident history for a policy's state.
type StateMassShootingStats struct {
	Total      int     `json:"total"`
	AvgPerYear float64 `json:"avg_per_year"`
	Killed     int     `json:"killed"`
	Injured    int     `json:"injured"`
}

// Policy is one state-level firearm statute record.
type Policy struct {
	LawID                string                  `json:"law_id"`
	State                string                  `json:"state"`
	LawClass             string                  `json:"law_class"`
	Effect               Effect                  `json:"effect"`
	EffectiveDate        string                  `json:"effective_date"`
	OriginalContent      string                  `json:"original_content"`
	HumanExplanation     string                  `json:"human_explanation"`
	MassShootingAnalysis string                  `json:"mass_shooting_analysis,omitempty"`
	StateStats           *StateMassShootingStats `json:"state_mass_shooting_stats,omitempty"`
}

// Year extracts the policy year as the integer prefix of the effective date.
// Returns 0 when the date does not start with four digits.
func (p Policy) Year() int {
	d := strings.TrimSpace(p.EffectiveDate)
	if len(d) < 4 {
		return 0
	}
	y, err := strconv.Atoi(d[:4])
	if err != nil {
		return 0
	}
	return y
}

// Valid reports whether the record carries the fields the timeline needs.
func (p Policy) Valid() bool {
	return p.LawID != "" && p.State != "" && p.EffectiveDate != ""
}
