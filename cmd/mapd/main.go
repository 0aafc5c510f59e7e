package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	"github.com/pacifymap/incident-map-service/internal/adapter/gemini"
	httpadapter "github.com/pacifymap/incident-map-service/internal/adapter/http"
	kafkaadapter "github.com/pacifymap/incident-map-service/internal/adapter/kafka"
	"github.com/pacifymap/incident-map-service/internal/bookmarks"
	"github.com/pacifymap/incident-map-service/internal/config"
	"github.com/pacifymap/incident-map-service/internal/dataset"
	"github.com/pacifymap/incident-map-service/internal/observability"
	"github.com/pacifymap/incident-map-service/internal/timeline"
	"github.com/pacifymap/incident-map-service/internal/viewstate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load all sources up front. The service has no meaningful degraded
	// mode without data, so a failed load is fatal.
	loader := dataset.NewLoader(dataset.Sources{
		HistoricalURL: cfg.HistoricalURL,
		RecentURL:     cfg.RecentURL,
		CurrentURL:    cfg.CurrentURL,
		PoliciesURL:   cfg.PoliciesURL,
	}, cfg.FetchTimeout, logger, metrics)

	ds, err := loader.Load(ctx)
	if err != nil {
		logger.Error("dataset load failed", "error", err)
		os.Exit(1)
	}

	// Optionally republish the normalized dataset for other consumers.
	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, logger, metrics)
		if err := publisher.PublishIncidents(ctx, ds.DataForYear(dataset.YearAll)); err != nil {
			logger.Error("incident publish failed", "error", err)
		}
	} else {
		logger.Info("kafka publishing disabled")
	}

	years := ds.AvailableYears()
	yMin, yMax := ds.YearRange()

	store := viewstate.New(ds.DataForYear, yMax, logger)
	scrubber := timeline.NewScrubber(store, years, clock, logger, metrics)
	policyTimeline := timeline.NewPolicyTimeline(ds.Policies(), store, yMin, yMax)

	kv, err := bookmarks.NewFileKV(cfg.StateDir)
	if err != nil {
		logger.Error("bookmark storage init failed", "error", err)
		os.Exit(1)
	}
	bookmarkStore := bookmarks.NewStore(kv, clock, logger, metrics)

	analyzer := gemini.NewClient(cfg.AIAPIKey, cfg.AITimeout, logger, metrics)
	if !analyzer.Configured() {
		logger.Info("ai analysis disabled: no api key")
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Dataset:   ds,
		Store:     store,
		Scrubber:  scrubber,
		Policies:  policyTimeline,
		Bookmarks: bookmarkStore,
		Analyzer:  analyzer,
		Metrics:   metrics,
	}, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	scrubber.Pause()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
