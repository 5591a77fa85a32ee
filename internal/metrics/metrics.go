// Package metrics defines the Prometheus instruments for ingestion, the
// classifier and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "utility_bills"

// Metrics holds every instrument. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	ingestTotal        *prometheus.CounterVec
	ingestDuration     prometheus.Histogram
	classifierDuration *prometheus.HistogramVec
	detailRows         *prometheus.CounterVec
	categoriesCreated  prometheus.Counter
	breakerState       *prometheus.GaugeVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New creates the instruments on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_total",
			Help:      "Invoice ingestion attempts by outcome.",
		}, []string{"outcome"}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "End-to-end ingestion latency.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		classifierDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "classifier_duration_seconds",
			Help:      "Classifier call latency by result.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"result"}),
		detailRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detail_rows_total",
			Help:      "Detail rows written by strategy.",
		}, []string{"strategy"}),
		categoriesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "categories_created_total",
			Help:      "Categories created from unseen classifier labels.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"breaker"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ingestTotal, m.ingestDuration, m.classifierDuration, m.detailRows,
		m.categoriesCreated, m.breakerState, m.httpRequests, m.httpDuration,
	)
	return m
}

// Registry returns the registry backing the instruments.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveIngest records one ingestion attempt.
func (m *Metrics) ObserveIngest(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(outcome).Inc()
	m.ingestDuration.Observe(d.Seconds())
}

// ObserveClassifier records one classifier call.
func (m *Metrics) ObserveClassifier(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.classifierDuration.WithLabelValues(result).Observe(d.Seconds())
}

// AddDetailRows counts detail rows written with a strategy.
func (m *Metrics) AddDetailRows(strategy string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.detailRows.WithLabelValues(strategy).Add(float64(n))
}

// CategoryCreated counts an auto-created category.
func (m *Metrics) CategoryCreated() {
	if m == nil {
		return
	}
	m.categoriesCreated.Inc()
}

// SetBreakerState publishes a circuit breaker state.
func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(float64(state))
}

// ObserveHTTP records one HTTP request.
func (m *Metrics) ObserveHTTP(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}
