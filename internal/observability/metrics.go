package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// acquisition loop, store, and read cache.
type Metrics struct {
	FetchAttempts *prometheus.CounterVec // labels: source={events,forecast}, outcome={success,retry,exhausted}
	CyclesTotal   prometheus.Counter
	CycleFailures prometheus.Counter
	CycleDuration prometheus.Histogram
	PollerRunning prometheus.Gauge

	EventsUpserted  *prometheus.CounterVec // labels: outcome={matched,inserted}
	WeatherUpserted *prometheus.CounterVec // labels: outcome={matched,inserted}

	CacheReads *prometheus.CounterVec // labels: table={events,weather}, result={hit,miss,bypass}

	EventsPublished prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.FetchAttempts,
		m.CyclesTotal,
		m.CycleFailures,
		m.CycleDuration,
		m.PollerRunning,
		m.EventsUpserted,
		m.WeatherUpserted,
		m.CacheReads,
		m.EventsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so
// tests can construct multiple instances without "already registered"
// panics.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_tracker",
			Name:      "fetch_attempts_total",
			Help:      "Upstream fetch attempts by source and outcome.",
		}, []string{"source", "outcome"}),
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_tracker",
			Name:      "acquisition_cycles_total",
			Help:      "Total acquisition cycles started.",
		}),
		CycleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_tracker",
			Name:      "acquisition_cycle_failures_total",
			Help:      "Acquisition cycles abandoned after an error.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hazard_tracker",
			Name:      "acquisition_cycle_duration_seconds",
			Help:      "Duration of a complete fetch-normalize-store cycle.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hazard_tracker",
			Name:      "poller_running",
			Help:      "1 when the acquisition loop is active, 0 when shut down.",
		}),
		EventsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_tracker",
			Name:      "events_upserted_total",
			Help:      "Event rows written by outcome (matched vs inserted).",
		}, []string{"outcome"}),
		WeatherUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_tracker",
			Name:      "weather_upserted_total",
			Help:      "Weather rows written by outcome (matched vs inserted).",
		}, []string{"outcome"}),
		CacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hazard_tracker",
			Name:      "cache_reads_total",
			Help:      "Read-through cache lookups by table and result.",
		}, []string{"table", "result"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard_tracker",
			Name:      "events_published_total",
			Help:      "Newly inserted events published to the event topic.",
		}),
	}
}
