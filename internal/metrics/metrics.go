package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the webhook path counters exposed on /metrics. The registry
// is owned here, not global, so tests get isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal        prometheus.Counter
	RequestDuration      prometheus.Histogram
	VerificationFailures *prometheus.CounterVec
	EventsTotal          *prometheus.CounterVec
	ApplyFailures        *prometheus.CounterVec
}

// New creates and registers the webhook metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	m := &Metrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Total webhook deliveries received.",
		}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webhook_request_duration_seconds",
			Help:    "Webhook request handling duration.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		VerificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_verification_failures_total",
			Help: "Signature verification failures by reason.",
		}, []string{"reason"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Dispatched events by type and outcome.",
		}, []string{"event_type", "outcome"}),
		ApplyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_apply_failures_total",
			Help: "Event application failures by code.",
		}, []string{"code"}),
	}

	registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.VerificationFailures,
		m.EventsTotal,
		m.ApplyFailures,
	)

	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
