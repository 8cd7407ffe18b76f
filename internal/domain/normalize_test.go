package domain_test

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazardwatch/hazard-tracker/internal/domain"
)

const samplePayload = `{
	"events": [
		{
			"id": "EONET_1234",
			"title": "Camp Fire, California",
			"categories": [{"id": 8, "title": "Wildfires"}],
			"sources": [{"id": "InciWeb", "url": "https://inciweb.nwcg.gov/incident/6250/"}],
			"geometries": [
				{"date": "2024-04-20T12:00:00Z", "type": "Point", "coordinates": [-121.43, 39.81]},
				{"date": "2024-04-21T12:00:00Z", "type": "Point", "coordinates": [-121.40, 39.83]}
			]
		},
		{
			"id": "EONET_2345",
			"title": "Kilauea Eruption",
			"categories": [{"id": 12, "title": "Volcanoes"}],
			"sources": [],
			"geometries": [
				{"date": "2024-04-19T00:00:00Z", "type": "Point", "coordinates": [-155.28, 19.42]}
			]
		},
		{
			"id": "EONET_3456",
			"title": "Tropical Storm Alberto",
			"categories": [{"id": 10, "title": "Severe Storms"}],
			"sources": [{"id": "NOAA", "url": "https://www.nhc.noaa.gov/"}],
			"geometries": []
		}
	]
}`

func TestNormalizeEvents_FiltersAndExpands(t *testing.T) {
	p, err := domain.ParseEventPayload([]byte(samplePayload))
	require.NoError(t, err)

	records := domain.NormalizeEvents(p, domain.StatusOpen)

	// Volcano event filtered out; storm event has zero geometries;
	// wildfire expands to two records sharing the event id.
	require.Len(t, records, 2)
	assert.Equal(t, "EONET_1234", records[0].EventID)
	assert.Equal(t, "EONET_1234", records[1].EventID)
	assert.Equal(t, domain.CategoryWildfires, records[0].CategoryTitle)
	assert.Equal(t, "8", records[0].CategoryID)
	assert.Equal(t, domain.StatusOpen, records[0].Status)
	assert.NotEqual(t, records[0].Timestamp, records[1].Timestamp)
	require.NotNil(t, records[0].SourceURL)
	assert.Equal(t, "https://inciweb.nwcg.gov/incident/6250/", *records[0].SourceURL)
	assert.Equal(t, -121.43, records[0].Longitude)
	assert.Equal(t, 39.81, records[0].Latitude)
}

func TestNormalizeEvents_SevereStormsTitleUnderscored(t *testing.T) {
	payload := `{"events": [{
		"id": "EONET_9",
		"title": "Storm",
		"categories": [{"id": 10, "title": "Severe Storms"}],
		"geometries": [{"date": "2024-04-20T00:00:00Z", "coordinates": [10.0, 20.0]}]
	}]}`

	p, err := domain.ParseEventPayload([]byte(payload))
	require.NoError(t, err)

	records := domain.NormalizeEvents(p, domain.StatusOpen)
	require.Len(t, records, 1)
	assert.Equal(t, domain.CategorySevereStorms, records[0].CategoryTitle)
	assert.Nil(t, records[0].SourceURL)
}

func TestNormalizeEvents_MalformedEventIsolated(t *testing.T) {
	payload := `{"events": [
		{"id": "EONET_bad", "title": "No categories", "categories": [], "geometries": [
			{"date": "2024-04-20T00:00:00Z", "coordinates": [1.0, 2.0]}
		]},
		{"id": "EONET_short", "title": "Bad geometry", "categories": [{"id": 8, "title": "Wildfires"}], "geometries": [
			{"date": "not-a-date", "coordinates": [1.0, 2.0]},
			{"date": "2024-04-20T00:00:00Z", "coordinates": [1.0]},
			{"date": "2024-04-20T00:00:00Z", "coordinates": [3.0, 4.0]}
		]}
	]}`

	p, err := domain.ParseEventPayload([]byte(payload))
	require.NoError(t, err)

	records := domain.NormalizeEvents(p, domain.StatusClosed)
	require.Len(t, records, 1)
	assert.Equal(t, "EONET_short", records[0].EventID)
	assert.Equal(t, 3.0, records[0].Longitude)
}

func TestNormalizeEvents_EmptyPayload(t *testing.T) {
	p, err := domain.ParseEventPayload([]byte(`{"events": []}`))
	require.NoError(t, err)

	records := domain.NormalizeEvents(p, domain.StatusOpen)
	assert.Empty(t, records)
}

func TestNormalizeForecast(t *testing.T) {
	now := time.Date(2024, time.April, 20, 12, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })

	tomorrow := now.Add(24 * time.Hour).Unix()
	yesterday := now.Add(-24 * time.Hour).Unix()

	payload := domain.ForecastPayload{}
	payload.Daily.Data = []map[string]any{
		{
			"time":                float64(tomorrow),
			"temperatureHigh":     71.2,
			"temperatureLow":      52.9,
			"temperatureHighTime": float64(tomorrow + 3600),
			"icon":                "clear-day",
			"summary":             "Clear throughout the day.",
			"precipProbability":   0.1,
			"humidity":            0.43,
		},
		{
			// already in the past, dropped
			"time":            float64(yesterday),
			"temperatureHigh": 65.0,
		},
		{
			// no usable timestamp, dropped
			"temperatureHigh": 60.0,
		},
	}

	records := domain.NormalizeForecast(payload, 34, -118)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, -118.0, rec.Longitude)
	assert.Equal(t, 34.0, rec.Latitude)
	assert.Equal(t, time.Date(2024, time.April, 21, 0, 0, 0, 0, time.UTC), rec.Date)

	assert.Equal(t, map[string]float64{
		"temperatureHigh": 71.2,
		"temperatureLow":  52.9,
		"humidity":        0.43,
	}, rec.Fields)
}
