// Package cache provides a time-bounded read-through cache in front of
// the store's fetch-all reads, so repeated UI-driven queries inside a
// short window avoid redundant storage reads.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
)

// Source is the store read surface the cache fronts.
type Source interface {
	FetchAllEvents(ctx context.Context) ([]domain.EventRecord, error)
	FetchAllWeather(ctx context.Context) ([]domain.WeatherRecord, error)
}

// Cache holds exactly one slot per table. Expiry is evaluated lazily on
// access against the injected clock; there is no background sweep. A
// nil table ("no data") is cached like any other result.
type Cache struct {
	source  Source
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics

	eventsMu sync.Mutex
	events   slot[[]domain.EventRecord]

	weatherMu sync.Mutex
	weather   slot[[]domain.WeatherRecord]
}

type slot[T any] struct {
	value     T
	fetchedAt time.Time
	populated bool
}

// New creates a cache over the given source with a fixed TTL.
func New(source Source, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Cache {
	return &Cache{
		source:  source,
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

// Events returns the event table. With allowCached, a slot younger than
// the TTL is returned without touching the store; otherwise the store
// is read and the slot refreshed. The slot mutex covers the whole
// check-expiry-then-populate sequence so concurrent callers cannot
// race between the two steps.
func (c *Cache) Events(ctx context.Context, allowCached bool) ([]domain.EventRecord, error) {
	c.eventsMu.Lock()
	defer c.eventsMu.Unlock()

	if allowCached && c.events.populated && c.clock.Since(c.events.fetchedAt) < c.ttl {
		c.metrics.CacheReads.WithLabelValues("events", "hit").Inc()
		return c.events.value, nil
	}

	if allowCached {
		c.metrics.CacheReads.WithLabelValues("events", "miss").Inc()
	} else {
		c.metrics.CacheReads.WithLabelValues("events", "bypass").Inc()
	}

	rows, err := c.source.FetchAllEvents(ctx)
	if err != nil {
		return nil, err
	}
	c.events = slot[[]domain.EventRecord]{value: rows, fetchedAt: c.clock.Now(), populated: true}
	return rows, nil
}

// Weather returns the weather table, with the same caching contract as
// Events.
func (c *Cache) Weather(ctx context.Context, allowCached bool) ([]domain.WeatherRecord, error) {
	c.weatherMu.Lock()
	defer c.weatherMu.Unlock()

	if allowCached && c.weather.populated && c.clock.Since(c.weather.fetchedAt) < c.ttl {
		c.metrics.CacheReads.WithLabelValues("weather", "hit").Inc()
		return c.weather.value, nil
	}

	if allowCached {
		c.metrics.CacheReads.WithLabelValues("weather", "miss").Inc()
	} else {
		c.metrics.CacheReads.WithLabelValues("weather", "bypass").Inc()
	}

	rows, err := c.source.FetchAllWeather(ctx)
	if err != nil {
		return nil, err
	}
	c.weather = slot[[]domain.WeatherRecord]{value: rows, fetchedAt: c.clock.Now(), populated: true}
	return rows, nil
}
