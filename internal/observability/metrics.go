package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// dataset loader, spatial queries, AI analysis, and bookmark store.
type Metrics struct {
	IncidentsLoaded     *prometheus.CounterVec // labels: source
	RowsDropped         *prometheus.CounterVec // labels: source, reason
	PoliciesLoaded      prometheus.Counter
	DatasetLoadDuration prometheus.Histogram

	SpatialQueries       prometheus.Counter
	SpatialQueryDuration prometheus.Histogram

	AnalysisRequests *prometheus.CounterVec // labels: kind, outcome
	AnalysisDuration prometheus.Histogram

	BookmarkOps *prometheus.CounterVec // labels: op, outcome

	PlayerRunning      prometheus.Gauge
	IncidentsPublished prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.IncidentsLoaded,
		m.RowsDropped,
		m.PoliciesLoaded,
		m.DatasetLoadDuration,
		m.SpatialQueries,
		m.SpatialQueryDuration,
		m.AnalysisRequests,
		m.AnalysisDuration,
		m.BookmarkOps,
		m.PlayerRunning,
		m.IncidentsPublished,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		IncidentsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_map",
			Name:      "incidents_loaded_total",
			Help:      "Normalized incidents kept per source.",
		}, []string{"source"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_map",
			Name:      "rows_dropped_total",
			Help:      "Source rows dropped during normalization, by reason.",
		}, []string{"source", "reason"}),
		PoliciesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_map",
			Name:      "policies_loaded_total",
			Help:      "Policy records kept after validation.",
		}),
		DatasetLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_map",
			Name:      "dataset_load_duration_seconds",
			Help:      "Duration of a complete fetch-and-normalize load.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SpatialQueries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_map",
			Name:      "spatial_queries_total",
			Help:      "Nearest-neighborhood queries served.",
		}),
		SpatialQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_map",
			Name:      "spatial_query_duration_seconds",
			Help:      "Duration of one nearest-neighborhood query.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		AnalysisRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_map",
			Name:      "analysis_requests_total",
			Help:      "AI analysis requests by kind and outcome.",
		}, []string{"kind", "outcome"}),
		AnalysisDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "incident_map",
			Name:      "analysis_duration_seconds",
			Help:      "AI provider request duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		BookmarkOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "incident_map",
			Name:      "bookmark_ops_total",
			Help:      "Bookmark store operations by op and outcome.",
		}, []string{"op", "outcome"}),
		PlayerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "incident_map",
			Name:      "player_running",
			Help:      "1 while the timeline auto-play loop is active.",
		}),
		IncidentsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "incident_map",
			Name:      "incidents_published_total",
			Help:      "Normalized incidents published to the Kafka sink topic.",
		}),
	}
}
