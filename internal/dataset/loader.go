// Package dataset loads the three incident CSV sources and the policy JSON,
// normalizes them into one year-indexed dataset, and serves aggregate
// statistics over it.
package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/observability"
)

// Sources holds the four upstream URLs.
type Sources struct {
	HistoricalURL string
	RecentURL     string
	CurrentURL    string
	PoliciesURL   string
}

// Loader fetches and normalizes all sources. Sources are fetched in
// parallel and any failure aborts the whole load: the UI has no meaningful
// partial state. Nothing is retried at this layer.
type Loader struct {
	sources    Sources
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewLoader creates a Loader with a per-request timeout.
func NewLoader(sources Sources, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Loader {
	return &Loader{
		sources:    sources,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    metrics,
	}
}

// Load fetches all four sources concurrently and builds the Dataset.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	start := time.Now()

	fetches := []struct {
		name string
		url  string
	}{
		{string(domain.SourceHistorical), l.sources.HistoricalURL},
		{string(domain.SourceRecent), l.sources.RecentURL},
		{string(domain.SourceCurrent), l.sources.CurrentURL},
		{"policies", l.sources.PoliciesURL},
	}

	bodies := make([][]byte, len(fetches))
	errs := make([]error, len(fetches))

	var wg sync.WaitGroup
	for i, f := range fetches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bodies[i], errs[i] = l.fetch(ctx, f.name, f.url)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	var incidents []domain.Incident
	for i, source := range []domain.Source{domain.SourceHistorical, domain.SourceRecent, domain.SourceCurrent} {
		kept, dropped, err := ParseIncidentsCSV(source, bodies[i])
		if err != nil {
			return nil, err
		}
		l.recordDrops(source, len(kept), dropped)
		incidents = append(incidents, kept...)
	}

	policies, droppedPolicies, err := ParsePolicies(bodies[3])
	if err != nil {
		return nil, err
	}
	if droppedPolicies > 0 {
		l.logger.Warn("policies dropped", "count", droppedPolicies, "reason", "missing_fields")
	}
	l.metrics.PoliciesLoaded.Add(float64(len(policies)))

	ds := New(incidents, policies)
	l.metrics.DatasetLoadDuration.Observe(time.Since(start).Seconds())
	l.logger.Info("dataset loaded",
		"incidents", len(incidents),
		"policies", len(policies),
		"years", len(ds.AvailableYears()),
	)
	return ds, nil
}

func (l *Loader) fetch(ctx context.Context, name, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.SourceFetchError{Source: name, Err: err}
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, &domain.SourceFetchError{Source: name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.SourceFetchError{Source: name, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.SourceFetchError{Source: name, Err: err}
	}
	return body, nil
}

func (l *Loader) recordDrops(source domain.Source, kept int, dropped map[domain.DropReason]int) {
	l.metrics.IncidentsLoaded.WithLabelValues(string(source)).Add(float64(kept))
	for reason, n := range dropped {
		l.metrics.RowsDropped.WithLabelValues(string(source), string(reason)).Add(float64(n))
		l.logger.Warn("rows dropped",
			"source", source, "reason", reason, "count", n)
	}
}

// ParseIncidentsCSV normalizes one CSV body, returning kept incidents and
// per-reason drop counts. A structurally malformed file is a ParseError;
// individually bad rows are dropped and counted.
func ParseIncidentsCSV(source domain.Source, data []byte) ([]domain.Incident, map[domain.DropReason]int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, &domain.ParseError{Source: string(source), Err: fmt.Errorf("read header: %w", err)}
	}
	cols := domain.ResolveColumns(header)

	var kept []domain.Incident
	dropped := make(map[domain.DropReason]int)
	for ordinal := 0; ; ordinal++ {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, &domain.ParseError{Source: string(source), Err: err}
		}

		var inc domain.Incident
		if source == domain.SourceHistorical {
			inc, err = domain.NormalizeHistoricalRow(cols, rec, ordinal)
		} else {
			inc, err = domain.NormalizeIncidentRow(source, cols, rec, ordinal)
		}
		if err != nil {
			var rowErr *domain.RowError
			if errors.As(err, &rowErr) {
				dropped[rowErr.Reason]++
				continue
			}
			return nil, nil, &domain.ParseError{Source: string(source), Err: err}
		}
		kept = append(kept, inc)
	}
	return kept, dropped, nil
}

// nanTokenRe matches bare NaN tokens delimited by structural characters or
// whitespace. A space-delimited "NaN" inside a string value is rewritten
// too; the upstream producer's own cleanup uses the same word-boundary
// match, so string content is mangled identically on both sides.
var nanTokenRe = regexp.MustCompile(`([:\[,\s])NaN([,\s\]}])`)

// CleanPolicyJSON substitutes bare NaN tokens with null. The policy JSON
// producer emits NaN where numeric stats are missing, which is not valid
// JSON.
func CleanPolicyJSON(data []byte) []byte {
	// Two passes: adjacent tokens like "[NaN,NaN]" share boundary characters.
	data = nanTokenRe.ReplaceAll(data, []byte("${1}null${2}"))
	return nanTokenRe.ReplaceAll(data, []byte("${1}null${2}"))
}

// ParsePolicies decodes the policy JSON after the NaN pre-clean. Policies
// missing law_id, state, or effective_date are dropped, not fatal.
func ParsePolicies(data []byte) ([]domain.Policy, int, error) {
	var raw []rawPolicy
	if err := json.Unmarshal(CleanPolicyJSON(data), &raw); err != nil {
		return nil, 0, &domain.ParseError{Source: "policies", Err: err}
	}

	policies := make([]domain.Policy, 0, len(raw))
	dropped := 0
	for _, rp := range raw {
		p := rp.toPolicy()
		if !p.Valid() {
			dropped++
			continue
		}
		policies = append(policies, p)
	}
	return policies, dropped, nil
}

// rawPolicy tolerates the producer's loose typing before normalization.
type rawPolicy struct {
	LawID                string                         `json:"law_id"`
	State                string                         `json:"state"`
	LawClass             string                         `json:"law_class"`
	Effect               string                         `json:"effect"`
	EffectiveDate        string                         `json:"effective_date"`
	OriginalContent      string                         `json:"original_content"`
	HumanExplanation     string                         `json:"human_explanation"`
	MassShootingAnalysis string                         `json:"mass_shooting_analysis"`
	StateStats           *domain.StateMassShootingStats `json:"state_mass_shooting_stats"`
}

func (rp rawPolicy) toPolicy() domain.Policy {
	return domain.Policy{
		LawID:                rp.LawID,
		State:                rp.State,
		LawClass:             rp.LawClass,
		Effect:               domain.NormalizeEffect(rp.Effect),
		EffectiveDate:        rp.EffectiveDate,
		OriginalContent:      rp.OriginalContent,
		HumanExplanation:     rp.HumanExplanation,
		MassShootingAnalysis: rp.MassShootingAnalysis,
		StateStats:           rp.StateStats,
	}
}
