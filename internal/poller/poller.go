// Package poller drives the periodic fetch-normalize-store acquisition
// loop.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
)

// EventFetcher downloads one events payload from the upstream API.
type EventFetcher interface {
	FetchEvents(ctx context.Context, q domain.EventQuery) (domain.EventPayload, error)
}

// ForecastFetcher downloads the daily forecast for one location.
type ForecastFetcher interface {
	FetchForecast(ctx context.Context, lat, lon float64) (domain.ForecastPayload, error)
}

// Store is the persistence surface the poller writes to.
type Store interface {
	UpsertEvents(ctx context.Context, rows []domain.EventRecord) (domain.UpsertResult, error)
	UpsertWeather(ctx context.Context, rows []domain.WeatherRecord) (matched, inserted int, err error)
}

// Publisher forwards newly inserted events to downstream consumers.
type Publisher interface {
	PublishEvents(ctx context.Context, rows []domain.EventRecord) error
}

// Options configures the acquisition schedule and fetch windows.
type Options struct {
	Interval   time.Duration
	EventLimit int
	EventDays  int

	HistoryEnabled bool
	HistoryLimit   int
	HistoryDays    int
	HistoryTimeout time.Duration

	Locations []domain.Location
}

// Poller runs the acquisition loop: a one-shot history backfill when
// enabled, then one cycle immediately, then one cycle per interval
// until the context is cancelled. Cycle failures are logged and
// swallowed so a bad cycle never stops future cycles.
type Poller struct {
	events    EventFetcher
	forecasts ForecastFetcher // nil disables weather acquisition
	store     Store
	publisher Publisher // nil disables publication
	opts      Options
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates a Poller. forecasts and publisher may be nil.
func New(events EventFetcher, forecasts ForecastFetcher, store Store, publisher Publisher,
	opts Options, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Poller {
	return &Poller{
		events:    events,
		forecasts: forecasts,
		store:     store,
		publisher: publisher,
		opts:      opts,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one acquisition cycle has
// completed successfully.
func (p *Poller) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no acquisition cycle has completed yet")
	}
	return nil
}

// Run executes the acquisition loop until the context is cancelled.
// The first cycle fires immediately; subsequent cycles are separated
// from the previous cycle's start by the fixed interval (the ticker
// sets the cadence, so the period is not compounded by cycle
// duration, though drift under slow cycles is tolerated).
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started", "interval", p.opts.Interval)
	p.metrics.PollerRunning.Set(1)
	defer p.metrics.PollerRunning.Set(0)

	if p.opts.HistoryEnabled {
		p.runHistory(ctx)
	}

	p.runCycle(ctx)

	ticker := p.clock.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			p.runCycle(ctx)
		}
	}
}

// runCycle executes one fetch-normalize-store pass. Errors are logged
// at warn level and contained here; nothing escapes to stop the loop.
func (p *Poller) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	p.metrics.CyclesTotal.Inc()
	start := p.clock.Now()

	if err := p.acquire(ctx); err != nil {
		p.metrics.CycleFailures.Inc()
		p.logger.Warn("acquisition cycle failed, continuing", "error", err)
		return
	}

	p.metrics.CycleDuration.Observe(p.clock.Since(start).Seconds())
	p.ready.Store(true)
}

// acquire runs the event pipeline, then the weather pipeline for each
// monitored location.
func (p *Poller) acquire(ctx context.Context) error {
	if err := p.acquireEvents(ctx, domain.EventQuery{
		Limit:  p.opts.EventLimit,
		Days:   p.opts.EventDays,
		Status: domain.StatusOpen,
	}); err != nil {
		return err
	}

	if p.forecasts == nil {
		return nil
	}
	for _, loc := range p.opts.Locations {
		if err := p.acquireWeather(ctx, loc); err != nil {
			return err
		}
	}
	return nil
}

func (p *Poller) acquireEvents(ctx context.Context, q domain.EventQuery) error {
	payload, err := p.events.FetchEvents(ctx, q)
	if err != nil {
		return fmt.Errorf("fetch events: %w", err)
	}

	records := domain.NormalizeEvents(payload, q.Status)
	if len(records) == 0 {
		p.logger.Debug("no event records this cycle", "status", q.Status)
		return nil
	}

	result, err := p.store.UpsertEvents(ctx, records)
	if err != nil {
		return fmt.Errorf("store events: %w", err)
	}

	p.publish(ctx, result.Inserted)
	return nil
}

func (p *Poller) acquireWeather(ctx context.Context, loc domain.Location) error {
	payload, err := p.forecasts.FetchForecast(ctx, loc.Latitude, loc.Longitude)
	if err != nil {
		return fmt.Errorf("fetch forecast for %s: %w", loc.Name, err)
	}

	records := domain.NormalizeForecast(payload, loc.Latitude, loc.Longitude)
	if len(records) == 0 {
		return nil
	}

	if _, _, err := p.store.UpsertWeather(ctx, records); err != nil {
		return fmt.Errorf("store weather for %s: %w", loc.Name, err)
	}
	return nil
}

// publish forwards newly inserted events. Publication is best-effort;
// a failure is logged but does not fail the cycle, since the rows are
// already persisted.
func (p *Poller) publish(ctx context.Context, inserted []domain.EventRecord) {
	if p.publisher == nil || len(inserted) == 0 {
		return
	}
	if err := p.publisher.PublishEvents(ctx, inserted); err != nil {
		p.logger.Warn("publish inserted events failed", "count", len(inserted), "error", err)
	}
}

// runHistory performs the one-shot backfill: a wider window of closed
// events with a longer timeout. Its failure must not abort startup of
// the main loop.
func (p *Poller) runHistory(ctx context.Context) {
	p.logger.Info("history backfill starting",
		"limit", p.opts.HistoryLimit,
		"days", p.opts.HistoryDays,
	)

	err := p.acquireEvents(ctx, domain.EventQuery{
		Limit:   p.opts.HistoryLimit,
		Days:    p.opts.HistoryDays,
		Status:  domain.StatusClosed,
		Timeout: p.opts.HistoryTimeout,
	})
	if err != nil {
		p.logger.Warn("history backfill failed, continuing without it", "error", err)
		return
	}
	p.logger.Info("history backfill complete")
}
