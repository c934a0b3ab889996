package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the kubesage service.
// All record methods are nil-safe so wiring metrics stays optional.
type Metrics struct {
	registry *prometheus.Registry

	turnsTotal     *prometheus.CounterVec
	toolCallsTotal *prometheus.CounterVec
	tokensTotal    *prometheus.CounterVec
	modelCalls     prometheus.Counter
	turnDuration   prometheus.Histogram
}

// NewMetrics creates a metrics collector with its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		turnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kubesage_turns_total",
			Help: "Completed conversation turns by outcome.",
		}, []string{"status"}),
		toolCallsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kubesage_tool_calls_total",
			Help: "Tool calls dispatched by tool and outcome.",
		}, []string{"tool", "status"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kubesage_tokens_total",
			Help: "Model tokens consumed by direction.",
		}, []string{"type"}),
		modelCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "kubesage_model_calls_total",
			Help: "Individual model invocations.",
		}),
		turnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "kubesage_turn_duration_seconds",
			Help:    "Wall-clock duration of a full conversation turn.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
	}
}

// RecordTurn records a completed conversation turn.
func (m *Metrics) RecordTurn(status string, duration time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(status).Inc()
	m.turnDuration.Observe(duration.Seconds())
	m.tokensTotal.WithLabelValues("input").Add(float64(inputTokens))
	m.tokensTotal.WithLabelValues("output").Add(float64(outputTokens))
}

// RecordToolCall records a single dispatched tool call.
func (m *Metrics) RecordToolCall(tool, status string) {
	if m == nil {
		return
	}
	m.toolCallsTotal.WithLabelValues(tool, status).Inc()
}

// RecordModelCall records one model invocation.
func (m *Metrics) RecordModelCall() {
	if m == nil {
		return
	}
	m.modelCalls.Inc()
}

// Handler returns an HTTP handler serving the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
