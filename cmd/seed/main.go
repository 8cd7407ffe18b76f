// Command seed performs a one-shot acquisition into the database: it
// fetches one events payload (or reads a saved payload from disk),
// normalizes it, and upserts the result. Useful for populating a local
// database without running the full service.
//
// Usage:
//
//	go run ./cmd/seed -status closed -days 1000 -limit 1000
//	go run ./cmd/seed -file testdata/events.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/hazardwatch/hazard-tracker/internal/adapter/eonet"
	"github.com/hazardwatch/hazard-tracker/internal/adapter/postgres"
	"github.com/hazardwatch/hazard-tracker/internal/config"
	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	file := flag.String("file", "", "read the events payload from this JSON file instead of fetching")
	limit := flag.Int("limit", 1000, "maximum events to request")
	days := flag.Int("days", 1000, "trailing window in days")
	status := flag.String("status", domain.StatusClosed, "event status to request (open or closed)")
	timeout := flag.Duration("timeout", 60*time.Second, "per-attempt fetch timeout")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx := context.Background()

	var payload domain.EventPayload
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			return fmt.Errorf("read payload file: %w", err)
		}
		payload, err = domain.ParseEventPayload(data)
		if err != nil {
			return fmt.Errorf("parse payload file: %w", err)
		}
	} else {
		client := eonet.NewClient(cfg.EventBaseURL, cfg.FetchMaxAttempts, cfg.FetchTimeout, metrics, logger)
		payload, err = client.FetchEvents(ctx, domain.EventQuery{
			Limit:   *limit,
			Days:    *days,
			Status:  *status,
			Timeout: *timeout,
		})
		if err != nil {
			return fmt.Errorf("fetch events: %w", err)
		}
	}

	records := domain.NormalizeEvents(payload, *status)
	if len(records) == 0 {
		fmt.Println("no trackable records in payload")
		return nil
	}

	store, err := postgres.NewStore(cfg, metrics, logger)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer store.Close()

	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	result, err := store.UpsertEvents(ctx, records)
	if err != nil {
		return fmt.Errorf("upsert events: %w", err)
	}

	fmt.Printf("seeded %d records: %d inserted, %d already present\n",
		len(records), len(result.Inserted), result.Matched)
	return nil
}
