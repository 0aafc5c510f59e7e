// Package http exposes the map service over a JSON API, plus the health,
// readiness, and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pacifymap/incident-map-service/internal/adapter/gemini"
	"github.com/pacifymap/incident-map-service/internal/bookmarks"
	"github.com/pacifymap/incident-map-service/internal/dataset"
	"github.com/pacifymap/incident-map-service/internal/domain"
	"github.com/pacifymap/incident-map-service/internal/observability"
	"github.com/pacifymap/incident-map-service/internal/spatial"
	"github.com/pacifymap/incident-map-service/internal/timeline"
	"github.com/pacifymap/incident-map-service/internal/viewstate"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Analyzer requests AI analysis of a policy.
type Analyzer interface {
	Analyze(ctx context.Context, p domain.Policy, question string) (string, error)
	Insight(ctx context.Context, p domain.Policy, kind gemini.InsightKind) (string, error)
}

// Deps bundles the core components the API routes onto.
type Deps struct {
	Dataset   *dataset.Dataset
	Store     *viewstate.Store
	Scrubber  *timeline.Scrubber
	Policies  *timeline.PolicyTimeline
	Bookmarks *bookmarks.Store
	Analyzer  Analyzer
	Metrics   *observability.Metrics
}

// Server exposes the JSON API plus health, readiness, and metrics routes.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(deps.Dataset))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/years", s.handleYears)
	mux.HandleFunc("GET /api/incidents", s.handleIncidents)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/near", s.handleNear)
	mux.HandleFunc("GET /api/policies", s.handlePolicies)
	mux.HandleFunc("POST /api/policies/open", s.handlePolicyOpen)

	mux.HandleFunc("GET /api/view", s.handleView)
	mux.HandleFunc("POST /api/view/cursor", s.handleCursor)
	mux.HandleFunc("POST /api/view/click", s.handleClick)
	mux.HandleFunc("POST /api/view/hover", s.handleHover)
	mux.HandleFunc("POST /api/view/year", s.handleSeek)

	mux.HandleFunc("POST /api/play", s.handlePlay)
	mux.HandleFunc("POST /api/pause", s.handlePause)
	mux.HandleFunc("POST /api/seek", s.handleSeek)

	mux.HandleFunc("GET /api/bookmarks", s.handleBookmarkList)
	mux.HandleFunc("POST /api/bookmarks", s.handleBookmarkAdd)
	mux.HandleFunc("DELETE /api/bookmarks/{lawID}", s.handleBookmarkRemove)
	mux.HandleFunc("POST /api/bookmarks/{lawID}/annotations", s.handleAnnotationAdd)
	mux.HandleFunc("PUT /api/bookmarks/{lawID}/annotations/{annotationID}", s.handleAnnotationUpdate)
	mux.HandleFunc("DELETE /api/bookmarks/{lawID}/annotations/{annotationID}", s.handleAnnotationRemove)
	mux.HandleFunc("GET /api/bookmarks/export", s.handleExport)
	mux.HandleFunc("POST /api/bookmarks/import", s.handleImport)

	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func (s *Server) handleYears(w http.ResponseWriter, _ *http.Request) {
	min, max := s.deps.Dataset.YearRange()
	writeJSON(w, http.StatusOK, map[string]any{
		"years": s.deps.Dataset.AvailableYears(),
		"min":   min,
		"max":   max,
	})
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	year, err := parseYearParam(r.URL.Query().Get("year"), s.deps.Store.Snapshot().CurrentYear)
	if err != nil {
		writeError(w, err)
		return
	}
	incidents := s.deps.Dataset.DataForYear(year)
	writeJSON(w, http.StatusOK, map[string]any{
		"year":      yearLabel(year),
		"incidents": incidents,
		"count":     len(incidents),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	year, err := parseYearParam(r.URL.Query().Get("year"), s.deps.Store.Snapshot().CurrentYear)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"year":  yearLabel(year),
		"stats": s.deps.Dataset.YearStats(year),
	})
}

func (s *Server) handleNear(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, latErr := strconv.ParseFloat(q.Get("lat"), 64)
	lng, lngErr := strconv.ParseFloat(q.Get("lng"), 64)
	zoom, zoomErr := strconv.ParseFloat(q.Get("zoom"), 64)
	if latErr != nil || lngErr != nil || zoomErr != nil {
		writeError(w, domain.ErrInvalidFormat)
		return
	}
	cur := spatial.Cursor{Lat: lat, Lng: lng, Zoom: zoom}

	start := time.Now()
	year := s.deps.Store.Snapshot().CurrentYear
	incidents := s.deps.Dataset.DataForYear(year)
	hits := spatial.Near(cur, incidents, spatial.DefaultMax)
	s.deps.Metrics.SpatialQueries.Inc()
	s.deps.Metrics.SpatialQueryDuration.Observe(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, map[string]any{
		"year":      year,
		"radius":    spatial.RadiusForZoom(zoom),
		"incidents": hits,
		"state":     spatial.InferState(cur, incidents),
	})
}

func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	groups := s.deps.Policies.ForState(state)

	colored := make(map[int][]policyJSON, len(groups))
	for year, ps := range groups {
		out := make([]policyJSON, len(ps))
		for i, p := range ps {
			out[i] = policyJSON{Policy: p, Color: p.Effect.Color()}
		}
		colored[year] = out
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":    state,
		"markers":  s.deps.Policies.Markers(state),
		"policies": colored,
	})
}

func (s *Server) handlePolicyOpen(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
		Year  int    `json:"year"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	policies := s.deps.Policies.OpenYear(req.State, req.Year)
	writeJSON(w, http.StatusOK, map[string]any{
		"view":     s.deps.Store.Snapshot(),
		"policies": policies,
	})
}

func (s *Server) handleView(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Store.Snapshot())
}

func (s *Server) handleCursor(w http.ResponseWriter, r *http.Request) {
	var req cursorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Store.MoveCursor(spatial.Cursor{Lat: req.Lat, Lng: req.Lng, Zoom: req.Zoom})
	writeJSON(w, http.StatusOK, s.deps.Store.Snapshot())
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	var req cursorRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Store.Click(spatial.Cursor{Lat: req.Lat, Lng: req.Lng, Zoom: req.Zoom})
	writeJSON(w, http.StatusOK, s.deps.Store.Snapshot())
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Store.HoverState(req.State)
	writeJSON(w, http.StatusOK, s.deps.Store.Snapshot())
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Year int `json:"year"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.deps.Scrubber.SeekTo(req.Year)
	writeJSON(w, http.StatusOK, s.deps.Store.Snapshot())
}

func (s *Server) handlePlay(w http.ResponseWriter, _ *http.Request) {
	// The sweep goroutine outlives the request, so it must not inherit
	// the request context.
	s.deps.Scrubber.Play(context.Background())
	writeJSON(w, http.StatusOK, s.deps.Store.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	s.deps.Scrubber.Pause()
	writeJSON(w, http.StatusOK, s.deps.Store.Snapshot())
}

func (s *Server) handleBookmarkList(w http.ResponseWriter, _ *http.Request) {
	list, err := s.deps.Bookmarks.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookmarks": list, "count": len(list)})
}

func (s *Server) handleBookmarkAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LawID string `json:"law_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	policy, ok := s.deps.Dataset.PolicyByID(req.LawID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown law_id"))
		return
	}
	b, err := s.deps.Bookmarks.Bookmark(policy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleBookmarkRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bookmarks.Unbookmark(r.PathValue("lawID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnnotationAdd(w http.ResponseWriter, r *http.Request) {
	var req bookmarks.AnnotationInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	ann, err := s.deps.Bookmarks.AddAnnotation(r.PathValue("lawID"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ann)
}

func (s *Server) handleAnnotationUpdate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Bookmarks.UpdateAnnotation(r.PathValue("lawID"), r.PathValue("annotationID"), req.Content); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAnnotationRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bookmarks.RemoveAnnotation(r.PathValue("lawID"), r.PathValue("annotationID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="bookmarks.json"`)
	if err := s.deps.Bookmarks.Export(w); err != nil {
		s.logger.Error("bookmark export failed", "error", err)
	}
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Bookmarks.Import(r.Body); err != nil {
		writeError(w, err)
		return
	}
	list, err := s.deps.Bookmarks.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imported": len(list)})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LawID    string `json:"law_id"`
		Question string `json:"question,omitempty"`
		Kind     string `json:"kind,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	policy, ok := s.deps.Dataset.PolicyByID(req.LawID)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("unknown law_id"))
		return
	}

	var (
		text string
		err  error
	)
	if req.Kind != "" {
		text, err = s.deps.Analyzer.Insight(r.Context(), policy, gemini.InsightKind(req.Kind))
	} else {
		text, err = s.deps.Analyzer.Analyze(r.Context(), policy, req.Question)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"law_id":   policy.LawID,
		"analysis": text,
	})
}

type cursorRequest struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom"`
}

type policyJSON struct {
	domain.Policy
	Color string `json:"color"`
}

// parseYearParam accepts a four-digit year, "all", or empty (the store's
// current year).
func parseYearParam(raw string, current int) (int, error) {
	switch raw {
	case "":
		return current, nil
	case "all":
		return dataset.YearAll, nil
	}
	y, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ErrInvalidFormat
	}
	return y, nil
}

func yearLabel(year int) any {
	if year == dataset.YearAll {
		return "all"
	}
	return year
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return domain.ErrInvalidFormat
	}
	return nil
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	var upstream *domain.UpstreamError
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		writeJSON(w, http.StatusServiceUnavailable, errorBody("AI analysis is not configured"))
	case errors.As(err, &upstream):
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	case errors.Is(err, domain.ErrAlreadyBookmarked):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, domain.ErrNotBookmarked):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, domain.ErrInvalidFormat):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response body
}
