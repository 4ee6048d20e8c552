// Package metrics exposes Prometheus instruments behind ports.Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus implements ports.Metrics.
type Prometheus struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	chartCache      *prometheus.CounterVec
	llmCalls        *prometheus.CounterVec
	sessions        prometheus.Gauge
}

// New registers the datachat instruments on reg.
func New(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datachat_requests_total",
				Help: "Total number of chat requests by route",
			},
			[]string{"route"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datachat_request_duration_seconds",
				Help:    "Chat request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		chartCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datachat_chart_cache_total",
				Help: "Chart cache lookups by result",
			},
			[]string{"result"},
		),
		llmCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datachat_llm_calls_total",
				Help: "LLM calls by status",
			},
			[]string{"status"},
		),
		sessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "datachat_registry_sessions",
				Help: "Number of sessions with a loaded dataset",
			},
		),
	}
}

func (p *Prometheus) ObserveRequest(route string, took time.Duration) {
	p.requests.WithLabelValues(route).Inc()
	p.requestDuration.WithLabelValues(route).Observe(took.Seconds())
}

func (p *Prometheus) ChartCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	p.chartCache.WithLabelValues(result).Inc()
}

func (p *Prometheus) LLMCall(err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	p.llmCalls.WithLabelValues(status).Inc()
}

func (p *Prometheus) RegistrySize(n int) {
	p.sessions.Set(float64(n))
}
