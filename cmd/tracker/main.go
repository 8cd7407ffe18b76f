package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/hazardwatch/hazard-tracker/internal/adapter/darksky"
	"github.com/hazardwatch/hazard-tracker/internal/adapter/eonet"
	"github.com/hazardwatch/hazard-tracker/internal/adapter/httpadapter"
	kafkaadapter "github.com/hazardwatch/hazard-tracker/internal/adapter/kafka"
	"github.com/hazardwatch/hazard-tracker/internal/adapter/postgres"
	"github.com/hazardwatch/hazard-tracker/internal/cache"
	"github.com/hazardwatch/hazard-tracker/internal/config"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
	"github.com/hazardwatch/hazard-tracker/internal/poller"
)

func main() {
	// Local development convenience; absence of the file is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	store, err := postgres.NewStore(cfg, metrics, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	events := eonet.NewClient(cfg.EventBaseURL, cfg.FetchMaxAttempts, cfg.FetchTimeout, metrics, logger)

	// Weather acquisition is feature-flagged via FORECAST_API_KEY.
	var forecasts poller.ForecastFetcher
	if cfg.ForecastEnabled {
		forecasts = darksky.NewClient(cfg.ForecastBaseURL, cfg.ForecastAPIKey, cfg.FetchMaxAttempts, cfg.FetchTimeout, metrics, logger)
		logger.Info("weather acquisition enabled", "locations", len(cfg.Locations))
	} else {
		logger.Info("weather acquisition disabled")
	}

	var publisher *kafkaadapter.Publisher
	var pollerPublisher poller.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg, metrics, logger)
		pollerPublisher = publisher
		logger.Info("event publication enabled", "topic", cfg.KafkaTopic)
	} else {
		logger.Info("event publication disabled")
	}

	p := poller.New(events, forecasts, store, pollerPublisher, poller.Options{
		Interval:       cfg.PollInterval,
		EventLimit:     cfg.EventLimit,
		EventDays:      cfg.EventDays,
		HistoryEnabled: cfg.HistoryEnabled,
		HistoryLimit:   cfg.HistoryLimit,
		HistoryDays:    cfg.HistoryDays,
		HistoryTimeout: cfg.HistoryTimeout,
		Locations:      cfg.Locations,
	}, clock, logger, metrics)

	reads := cache.New(store, cfg.CacheTTL, clock, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, reads, p, httpadapter.Options{
		DefaultBandwidth: cfg.RateBandwidth,
		Locations:        cfg.Locations,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("poller error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

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
	if err := store.Close(); err != nil {
		logger.Error("postgres close error", "error", err)
	}

	logger.Info("shutdown complete")
}
