// Package metrics provides Prometheus metrics for manualbot
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgallion1/manualbot/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Provider call metrics
	LLMCallsTotal   *prometheus.CounterVec
	LLMCallDuration *prometheus.HistogramVec

	// Ingestion metrics
	DocumentsTotal *prometheus.CounterVec
	ChunksTotal    *prometheus.CounterVec
	IngestDuration prometheus.Histogram

	StartTime time.Time
}

// New creates and registers all metrics, including Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{registry: reg, StartTime: time.Now()}

	m.HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manualbot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "manualbot_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	m.HTTPRequestsInFlight = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "manualbot_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		},
	)

	m.LLMCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manualbot_llm_calls_total",
			Help: "Total number of embedding and generation calls",
		},
		[]string{"operation", "model", "status"},
	)

	m.LLMCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "manualbot_llm_call_duration_seconds",
			Help:    "Duration of embedding and generation calls in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	m.DocumentsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manualbot_documents_ingested_total",
			Help: "Total number of processed documents by outcome",
		},
		[]string{"status"},
	)

	m.ChunksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "manualbot_chunks_stored_total",
			Help: "Total number of stored chunks by tier",
		},
		[]string{"tier"},
	)

	m.IngestDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "manualbot_ingest_duration_seconds",
			Help:    "Duration of document ingestion in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "manualbot_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.StartTime).Seconds() },
	)

	return m
}

// RegisterQueueDepth exports the ingestion queue depth reported by fn.
func (m *Metrics) RegisterQueueDepth(fn func() int) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "manualbot_ingest_queue_depth",
			Help: "Number of ingestion jobs waiting for a worker",
		},
		func() float64 { return float64(fn()) },
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records a served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveLLM implements llm.Observer.
func (m *Metrics) ObserveLLM(op, model string, d time.Duration, err error) {
	m.LLMCallsTotal.WithLabelValues(op, model, outcome(err)).Inc()
	m.LLMCallDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveIngest implements pipeline.Observer.
func (m *Metrics) ObserveIngest(status pipeline.JobStatus, parents, children int, d time.Duration) {
	m.DocumentsTotal.WithLabelValues(string(status)).Inc()
	m.ChunksTotal.WithLabelValues("parent").Add(float64(parents))
	m.ChunksTotal.WithLabelValues("child").Add(float64(children))
	m.IngestDuration.Observe(d.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
