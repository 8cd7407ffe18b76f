// Package httpadapter exposes the service over HTTP: operational
// endpoints (health, readiness, metrics) plus a small read API over the
// stored event and weather tables and the fitted rate series.
package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/forecast"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// Reader is the cached read surface the API serves from. allowCached
// false forces a fresh storage read.
type Reader interface {
	Events(ctx context.Context, allowCached bool) ([]domain.EventRecord, error)
	Weather(ctx context.Context, allowCached bool) ([]domain.WeatherRecord, error)
}

// Options configures the read API defaults.
type Options struct {
	// DefaultBandwidth is the KDE bandwidth used when a rate query
	// omits one.
	DefaultBandwidth float64
	// Locations are the monitored locations addressable by name in
	// rate queries. The first entry is the default.
	Locations []domain.Location
}

// Server exposes health, readiness, metrics, and read API routes.
type Server struct {
	httpServer *http.Server
	reader     Reader
	opts       Options
	logger     *slog.Logger
}

// NewServer creates an HTTP server with operational and read API routes.
func NewServer(addr string, reader Reader, ready ReadinessChecker, opts Options, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		reader: reader,
		opts:   opts,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/weather", s.handleWeather)
	mux.HandleFunc("GET /api/v1/rate", s.handleRate)

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

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reader.Events(r.Context(), allowCached(r))
	if err != nil {
		s.logger.Error("events read failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "events": rows})
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	rows, err := s.reader.Weather(r.Context(), allowCached(r))
	if err != nil {
		s.logger.Error("weather read failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(rows), "weather": rows})
}

// handleRate fits a density model on the stored events of one category
// and returns the trailing daily rate series at one monitored location.
func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	category := q.Get("category")
	if category == "" {
		category = domain.CategoryWildfires
	}
	if !domain.TrackedCategory(category) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown category " + category})
		return
	}

	bandwidth := s.opts.DefaultBandwidth
	if raw := q.Get("bandwidth"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bandwidth must be a positive number"})
			return
		}
		bandwidth = v
	}

	loc, ok := s.lookupLocation(q.Get("location"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown location " + q.Get("location")})
		return
	}

	rows, err := s.reader.Events(r.Context(), allowCached(r))
	if err != nil {
		s.logger.Error("events read failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
		return
	}

	series, err := forecast.RateSeries(rows, category, bandwidth, loc)
	if err != nil {
		if errors.Is(err, forecast.ErrInsufficientData) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"category":  category,
		"location":  loc.Name,
		"bandwidth": bandwidth,
		"series":    series,
	})
}

// lookupLocation resolves a location name, falling back to the first
// configured location when the name is empty.
func (s *Server) lookupLocation(name string) (domain.Location, bool) {
	if name == "" {
		if len(s.opts.Locations) == 0 {
			return domain.Location{}, false
		}
		return s.opts.Locations[0], true
	}
	for _, loc := range s.opts.Locations {
		if loc.Name == name {
			return loc, true
		}
	}
	return domain.Location{}, false
}

// allowCached reports whether a request permits a cached read. Cached
// is the default; cached=false forces a fresh storage read.
func allowCached(r *http.Request) bool {
	return r.URL.Query().Get("cached") != "false"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
