// Package metrics defines the Prometheus metric collectors used across the
// platform and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	EngineCallsTotal     *prometheus.CounterVec
	EngineCallDuration   *prometheus.HistogramVec
	EngineRetriesTotal   *prometheus.CounterVec
	BatchSize            *prometheus.HistogramVec
	BatchPrefetchedTotal *prometheus.CounterVec
	ResultCacheLookups   *prometheus.CounterVec
	SessionsBuiltTotal   *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all Prometheus metrics and registers them with reg. A nil reg
// registers with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		EngineCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_calls_total",
				Help: "Total analysis engine calls by engine and status (ok, error).",
			},
			[]string{"engine", "status"},
		),
		EngineCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_call_duration_seconds",
				Help:    "Analysis engine call latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"engine"},
		),
		EngineRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_retries_total",
				Help: "Engine calls retried after a failed attempt.",
			},
			[]string{"engine"},
		),
		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batch_size",
				Help:    "Number of sentences sent per engine call.",
				Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
			[]string{"engine"},
		),
		BatchPrefetchedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_prefetched_items_total",
				Help: "Sentences analysed ahead of being requested.",
			},
			[]string{"engine"},
		),
		ResultCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "result_cache_lookups_total",
				Help: "Result cache lookups by outcome (hit, miss, trivial).",
			},
			[]string{"engine", "result"},
		),
		SessionsBuiltTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessions_built_total",
				Help: "Analysis sessions built for a document version.",
			},
			[]string{"engine"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.EngineCallsTotal,
		m.EngineCallDuration,
		m.EngineRetriesTotal,
		m.BatchSize,
		m.BatchPrefetchedTotal,
		m.ResultCacheLookups,
		m.SessionsBuiltTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g. A nil g serves
// the default registry.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
