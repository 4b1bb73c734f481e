// Package metrics defines the matcher's Prometheus collectors. Each
// Metrics owns its registry so tests can build isolated instances.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jobmatch"

type Metrics struct {
	reg *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPResponseBytes    *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	RankRequestsTotal *prometheus.CounterVec
	RankLatency       *prometheus.HistogramVec
	RankResultsCount  *prometheus.HistogramVec

	ModelInferenceTime  *prometheus.HistogramVec
	CircuitBreakerState *prometheus.GaugeVec

	CorpusCacheTotal *prometheus.CounterVec
	CorpusDocuments  prometheus.Gauge
}

// New builds collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry registers the matcher's collectors on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests by method, route pattern and status.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "path"}),
		HTTPResponseBytes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_response_bytes",
			Help:    "Size of HTTP response bodies.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}, []string{"path"}),
		HTTPRequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		RankRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rank_requests_total",
			Help: "Ranking calls by strategy and outcome (ok, invalid, error).",
		}, []string{"strategy", "outcome"}),
		RankLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rank_latency_seconds",
			Help:    "Wall-clock duration of the ranking call.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"strategy"}),
		RankResultsCount: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rank_results_count",
			Help:    "Matches returned per ranking call.",
			Buckets: []float64{0, 1, 5, 10, 25, 50},
		}, []string{"strategy"}),

		ModelInferenceTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "model_inference_seconds",
			Help:    "Latency of calls to pretrained model backends.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 15, 60},
		}, []string{"model", "status"}),
		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "circuit_breaker_state",
			Help: "0=closed, 1=open, 2=half-open.",
		}, []string{"name"}),

		CorpusCacheTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "corpus_cache_total",
			Help: "Prepared-corpus lookups by result (hit, miss).",
		}, []string{"result"}),
		CorpusDocuments: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "corpus_documents",
			Help: "Job postings in the current prepared corpus.",
		}),
	}
}

// Handler serves this instance's registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
