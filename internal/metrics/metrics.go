package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "browsercontext"

// Metrics holds the service collectors on a private registry.
// All methods are safe on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	activeContexts prometheus.Gauge
	operations     *prometheus.CounterVec
	closed         *prometheus.CounterVec
}

// New registers the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeContexts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_contexts",
			Help:      "Number of open browsing contexts.",
		}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Context operations by name and result.",
		}, []string{"op", "result"}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contexts_closed_total",
			Help:      "Closed browsing contexts by reason.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.activeContexts,
		m.operations,
		m.closed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// ContextOpened records a new live context
func (m *Metrics) ContextOpened() {
	if m == nil {
		return
	}
	m.activeContexts.Inc()
}

// ContextClosed records a context leaving the registry
func (m *Metrics) ContextClosed(reason string) {
	if m == nil {
		return
	}
	m.activeContexts.Dec()
	m.closed.WithLabelValues(reason).Inc()
}

// Observe counts one operation, labelled ok or error by err
func (m *Metrics) Observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
