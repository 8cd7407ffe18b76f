package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazardwatch/hazard-tracker/internal/cache"
	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
)

// --- mocks ---

type countingSource struct {
	eventReads   int
	weatherReads int
	events       []domain.EventRecord
	weather      []domain.WeatherRecord
	err          error
}

func (s *countingSource) FetchAllEvents(context.Context) ([]domain.EventRecord, error) {
	s.eventReads++
	return s.events, s.err
}

func (s *countingSource) FetchAllWeather(context.Context) ([]domain.WeatherRecord, error) {
	s.weatherReads++
	return s.weather, s.err
}

func sampleEvents() []domain.EventRecord {
	return []domain.EventRecord{{
		CategoryID:    "8",
		CategoryTitle: domain.CategoryWildfires,
		EventID:       "EONET_1",
		EventTitle:    "Fire",
		Timestamp:     time.Date(2024, time.April, 20, 0, 0, 0, 0, time.UTC),
		Longitude:     -120,
		Latitude:      40,
		Status:        domain.StatusOpen,
	}}
}

// --- tests ---

func TestEvents_HitWithinTTL(t *testing.T) {
	src := &countingSource{events: sampleEvents()}
	clk := clockwork.NewFakeClock()
	c := cache.New(src, 10*time.Second, clk, observability.NewMetricsForTesting())

	first, err := c.Events(context.Background(), true)
	require.NoError(t, err)

	clk.Advance(9 * time.Second)

	second, err := c.Events(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, src.eventReads, "second read within TTL must not touch the store")
	assert.Empty(t, cmp.Diff(first, second))
}

func TestEvents_ExpiryTriggersOneFreshRead(t *testing.T) {
	src := &countingSource{events: sampleEvents()}
	clk := clockwork.NewFakeClock()
	c := cache.New(src, 10*time.Second, clk, observability.NewMetricsForTesting())

	_, err := c.Events(context.Background(), true)
	require.NoError(t, err)

	clk.Advance(11 * time.Second)

	_, err = c.Events(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.eventReads)

	// Slot was repopulated; the very next read hits again.
	_, err = c.Events(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.eventReads)
}

func TestEvents_BypassAlwaysRefreshes(t *testing.T) {
	src := &countingSource{events: sampleEvents()}
	clk := clockwork.NewFakeClock()
	c := cache.New(src, 10*time.Second, clk, observability.NewMetricsForTesting())

	_, err := c.Events(context.Background(), false)
	require.NoError(t, err)
	_, err = c.Events(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, src.eventReads)

	// The bypass refreshed the slot, so a cached read now hits.
	_, err = c.Events(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 2, src.eventReads)
}

func TestEvents_NoDataIsCached(t *testing.T) {
	src := &countingSource{events: nil}
	clk := clockwork.NewFakeClock()
	c := cache.New(src, 10*time.Second, clk, observability.NewMetricsForTesting())

	rows, err := c.Events(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, rows)

	rows, err = c.Events(context.Background(), true)
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.Equal(t, 1, src.eventReads, "empty result must be cached like any other")
}

func TestEvents_ErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("store unreachable")}
	clk := clockwork.NewFakeClock()
	c := cache.New(src, 10*time.Second, clk, observability.NewMetricsForTesting())

	_, err := c.Events(context.Background(), true)
	require.Error(t, err)

	src.err = nil
	src.events = sampleEvents()

	rows, err := c.Events(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 2, src.eventReads)
}

func TestWeather_IndependentSlot(t *testing.T) {
	src := &countingSource{
		events: sampleEvents(),
		weather: []domain.WeatherRecord{{
			Longitude: -118,
			Latitude:  34,
			Date:      time.Date(2024, time.April, 21, 0, 0, 0, 0, time.UTC),
			Fields:    map[string]float64{"temperatureHigh": 71.2},
		}},
	}
	clk := clockwork.NewFakeClock()
	c := cache.New(src, 10*time.Second, clk, observability.NewMetricsForTesting())

	_, err := c.Events(context.Background(), true)
	require.NoError(t, err)

	rows, err := c.Weather(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, src.weatherReads)

	_, err = c.Weather(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 1, src.weatherReads)
	assert.Equal(t, 1, src.eventReads, "weather reads must not disturb the events slot")
}
