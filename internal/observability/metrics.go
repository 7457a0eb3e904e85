package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the answer pipeline.
type Metrics struct {
	registry         *prometheus.Registry
	queries          *prometheus.CounterVec
	retrieverErrors  *prometheus.CounterVec
	retrieverLatency *prometheus.HistogramVec
	confidence       prometheus.Histogram
	clarifications   *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_queries_total",
			Help: "Answered queries by response type and intent.",
		}, []string{"type", "intent"}),
		retrieverErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_retriever_errors_total",
			Help: "Retriever failures (including timeouts) by content kind.",
		}, []string{"kind"}),
		retrieverLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "catalog_retriever_latency_seconds",
			Help:    "Content store latency per retriever.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catalog_confidence",
			Help:    "Distribution of computed answer confidence.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		clarifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_clarifications_total",
			Help: "Clarification questions emitted by dialogue level.",
		}, []string{"level"}),
	}
	reg.MustRegister(
		m.queries,
		m.retrieverErrors,
		m.retrieverLatency,
		m.confidence,
		m.clarifications,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveQuery records a composed response.
func (m *Metrics) ObserveQuery(responseType, intent string, confidence float64) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(responseType, intent).Inc()
	m.confidence.Observe(confidence)
}

// ObserveRetriever records one retriever call.
func (m *Metrics) ObserveRetriever(kind string, took time.Duration, err error) {
	if m == nil {
		return
	}
	m.retrieverLatency.WithLabelValues(kind).Observe(took.Seconds())
	if err != nil {
		m.retrieverErrors.WithLabelValues(kind).Inc()
	}
}

// ObserveClarification records a clarification question at the given level.
func (m *Metrics) ObserveClarification(level int) {
	if m == nil {
		return
	}
	m.clarifications.WithLabelValues(strconv.Itoa(level)).Inc()
}

// Registry exposes the underlying registry (used by tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
