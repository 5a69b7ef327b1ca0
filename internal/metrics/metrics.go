// Package metrics holds the Prometheus collectors shared by the blob and
// analysis daemons. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docpipe"

// Blob write outcomes.
const (
	WriteCreated      = "created"
	WriteDeduplicated = "deduplicated"
	WriteRaceResolved = "race_resolved"
)

// Analyze outcomes.
const (
	AnalyzeHit      = "hit"
	AnalyzeMiss     = "miss"
	AnalyzeConflict = "conflict"
	AnalyzeError    = "error"
)

// Metrics groups every collector exported by one daemon.
type Metrics struct {
	blobWrites       *prometheus.CounterVec
	blobFetches      *prometheus.CounterVec
	analyses         *prometheus.CounterVec
	rendererCalls    *prometheus.CounterVec
	rendererDuration prometheus.Histogram
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
}

// NewRegistry returns a registry preloaded with Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		blobWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blobs",
			Name:      "writes_total",
			Help:      "Blob store write requests by outcome.",
		}, []string{"result"}),
		blobFetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blobs",
			Name:      "fetches_total",
			Help:      "Blob content fetches by outcome.",
		}, []string{"result"}),
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "requests_total",
			Help:      "Analyze calls by cache outcome.",
		}, []string{"result"}),
		rendererCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "renderer",
			Name:      "calls_total",
			Help:      "Outbound word-cloud renderer calls by outcome.",
		}, []string{"outcome"}),
		rendererDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "renderer",
			Name:      "call_duration_seconds",
			Help:      "Outbound word-cloud renderer call latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) BlobWrite(result string) {
	if m == nil {
		return
	}
	m.blobWrites.WithLabelValues(result).Inc()
}

func (m *Metrics) BlobFetch(result string) {
	if m == nil {
		return
	}
	m.blobFetches.WithLabelValues(result).Inc()
}

func (m *Metrics) Analyze(result string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(result).Inc()
}

// RendererCall records one renderer round trip.
func (m *Metrics) RendererCall(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rendererCalls.WithLabelValues(outcome).Inc()
	m.rendererDuration.Observe(elapsed.Seconds())
}

// Request records one served HTTP request.
func (m *Metrics) Request(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
