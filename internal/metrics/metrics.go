// Package metrics exposes per-turn counters and latencies for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chat"

// Metrics owns a private registry so tests and multiple runners never clash.
type Metrics struct {
	registry *prometheus.Registry

	turns        *prometheus.CounterVec
	fallbacks    prometheus.Counter
	toolErrors   *prometheus.CounterVec
	turnDuration *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Finalized turns by intent and outcome.",
		}, []string{"intent", "outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "router_fallbacks_total",
			Help:      "Messages the router could not place in the vocabulary.",
		}),
		toolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_errors_total",
			Help:      "Tool outputs carrying an error, by intent.",
		}, []string{"intent"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end turn latency.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"intent"}),
	}
	m.registry.MustRegister(
		m.turns,
		m.fallbacks,
		m.toolErrors,
		m.turnDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Outcome labels for turns_total.
const (
	OutcomeOK            = "ok"
	OutcomeClarification = "clarification"
	OutcomeToolError     = "tool_error"
	OutcomeFailed        = "failed"
)

// ObserveTurn records a finished turn. A nil receiver is a no-op.
func (m *Metrics) ObserveTurn(intent, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(intent, outcome).Inc()
	m.turnDuration.WithLabelValues(intent).Observe(d.Seconds())
}

func (m *Metrics) RouterFallback() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

func (m *Metrics) ToolError(intent string) {
	if m == nil {
		return
	}
	m.toolErrors.WithLabelValues(intent).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
