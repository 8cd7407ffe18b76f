package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazardwatch/hazard-tracker/internal/adapter/httpadapter"
	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/forecast"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockReader struct {
	events     []domain.EventRecord
	weather    []domain.WeatherRecord
	err        error
	cachedArgs []bool
}

func (m *mockReader) Events(_ context.Context, allowCached bool) ([]domain.EventRecord, error) {
	m.cachedArgs = append(m.cachedArgs, allowCached)
	return m.events, m.err
}

func (m *mockReader) Weather(_ context.Context, allowCached bool) ([]domain.WeatherRecord, error) {
	m.cachedArgs = append(m.cachedArgs, allowCached)
	return m.weather, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() httpadapter.Options {
	return httpadapter.Options{
		DefaultBandwidth: 0.5,
		Locations: []domain.Location{
			{Name: "la", Latitude: 34, Longitude: -118},
			{Name: "st", Latitude: 47, Longitude: -122},
		},
	}
}

func newTestServer(reader *mockReader, readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", reader, &mockReadiness{err: readyErr}, testOptions(), discardLogger())
}

func get(t *testing.T, srv *httpadapter.Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func wildfireRows(n int) []domain.EventRecord {
	rows := make([]domain.EventRecord, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, domain.EventRecord{
			CategoryID:    "8",
			CategoryTitle: domain.CategoryWildfires,
			EventID:       fmt.Sprintf("EONET_%d", i),
			EventTitle:    "Fire",
			Timestamp:     time.Now().UTC().AddDate(0, 0, -i),
			Longitude:     -118 + float64(i)*0.1,
			Latitude:      34,
			Status:        domain.StatusOpen,
		})
	}
	return rows
}

func TestHealthzReturns200(t *testing.T) {
	rec := get(t, newTestServer(&mockReader{}, nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := get(t, newTestServer(&mockReader{}, nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := get(t, newTestServer(&mockReader{}, errors.New("no cycle yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "no cycle yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(&mockReader{}, nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestEventsEndpoint(t *testing.T) {
	reader := &mockReader{events: wildfireRows(3)}
	rec := get(t, newTestServer(reader, nil), "/api/v1/events")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count  int                  `json:"count"`
		Events []domain.EventRecord `json:"events"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
	require.Len(t, body.Events, 3)
	assert.Equal(t, "EONET_0", body.Events[0].EventID)

	require.Len(t, reader.cachedArgs, 1)
	assert.True(t, reader.cachedArgs[0], "cached reads are the default")
}

func TestEventsEndpoint_CachedFalseBypasses(t *testing.T) {
	reader := &mockReader{}
	rec := get(t, newTestServer(reader, nil), "/api/v1/events?cached=false")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, reader.cachedArgs, 1)
	assert.False(t, reader.cachedArgs[0])
}

func TestEventsEndpoint_EmptyTable(t *testing.T) {
	rec := get(t, newTestServer(&mockReader{}, nil), "/api/v1/events")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Count)
}

func TestEventsEndpoint_StoreErrorReturns503(t *testing.T) {
	reader := &mockReader{err: errors.New("connection refused")}
	rec := get(t, newTestServer(reader, nil), "/api/v1/events")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWeatherEndpoint(t *testing.T) {
	reader := &mockReader{weather: []domain.WeatherRecord{{
		Longitude: -118,
		Latitude:  34,
		Date:      time.Date(2024, time.April, 20, 0, 0, 0, 0, time.UTC),
		Fields:    map[string]float64{"temperatureHigh": 75.2},
	}}}
	rec := get(t, newTestServer(reader, nil), "/api/v1/weather")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
}

func TestRateEndpoint(t *testing.T) {
	reader := &mockReader{events: wildfireRows(10)}
	rec := get(t, newTestServer(reader, nil), "/api/v1/rate?category=Wildfires&location=la")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Category  string               `json:"category"`
		Location  string               `json:"location"`
		Bandwidth float64              `json:"bandwidth"`
		Series    []forecast.RatePoint `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.CategoryWildfires, body.Category)
	assert.Equal(t, "la", body.Location)
	assert.Equal(t, 0.5, body.Bandwidth)
	assert.Len(t, body.Series, forecast.WindowDays)
}

func TestRateEndpoint_Defaults(t *testing.T) {
	reader := &mockReader{events: wildfireRows(10)}
	rec := get(t, newTestServer(reader, nil), "/api/v1/rate")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Category string `json:"category"`
		Location string `json:"location"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, domain.CategoryWildfires, body.Category)
	assert.Equal(t, "la", body.Location, "first configured location is the default")
}

func TestRateEndpoint_InsufficientDataReturns422(t *testing.T) {
	reader := &mockReader{events: wildfireRows(1)}
	rec := get(t, newTestServer(reader, nil), "/api/v1/rate")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRateEndpoint_UnknownCategoryReturns400(t *testing.T) {
	rec := get(t, newTestServer(&mockReader{}, nil), "/api/v1/rate?category=Volcanoes")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateEndpoint_UnknownLocationReturns400(t *testing.T) {
	rec := get(t, newTestServer(&mockReader{}, nil), "/api/v1/rate?location=nyc")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateEndpoint_InvalidBandwidthReturns400(t *testing.T) {
	rec := get(t, newTestServer(&mockReader{}, nil), "/api/v1/rate?bandwidth=-1")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateEndpoint_StoreErrorReturns503(t *testing.T) {
	reader := &mockReader{err: errors.New("connection refused")}
	rec := get(t, newTestServer(reader, nil), "/api/v1/rate")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
