// internal/metrics/collector.go
package metrics

import (
	"net/http"

	"github.com/FairForge/streamcheck/internal/loadtest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ttftBuckets covers 10ms to ~20s.
var ttftBuckets = prometheus.ExponentialBuckets(0.01, 2, 12)

// Collector exports per-request observations as Prometheus metrics. It owns a
// private registry so several runs in one process never collide.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	ttft            prometheus.Histogram
	requestDuration *prometheus.HistogramVec
	tokensTotal     prometheus.Counter
	malformedTotal  prometheus.Counter
}

// NewCollector creates and registers the run metrics.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "streamcheck_requests_total",
				Help: "Completion requests by outcome and status",
			},
			[]string{"outcome", "status"},
		),
		ttft: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "streamcheck_ttft_seconds",
				Help:    "Time from request start to first content chunk",
				Buckets: ttftBuckets,
			},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "streamcheck_request_duration_seconds",
				Help:    "End-to-end request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		tokensTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "streamcheck_tokens_total",
				Help: "Content chunks received across all requests",
			},
		),
		malformedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "streamcheck_malformed_lines_total",
				Help: "Stream lines skipped because they did not parse",
			},
		),
	}

	registry.MustRegister(
		c.requestsTotal,
		c.ttft,
		c.requestDuration,
		c.tokensTotal,
		c.malformedTotal,
	)
	return c
}

// Observe records one outcome. It satisfies loadtest.Observer.
func (c *Collector) Observe(o loadtest.Outcome) {
	outcome := string(o.Completion)
	c.requestsTotal.WithLabelValues(outcome, o.StatusKey()).Inc()
	c.requestDuration.WithLabelValues(outcome).Observe(o.Elapsed.Seconds())
	if o.HasTTFT {
		c.ttft.Observe(o.TTFT.Seconds())
	}
	if o.Tokens > 0 {
		c.tokensTotal.Add(float64(o.Tokens))
	}
	if o.Malformed > 0 {
		c.malformedTotal.Add(float64(o.Malformed))
	}
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
