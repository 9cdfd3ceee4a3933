// Package telemetry exposes the engine's Prometheus metrics and tracer.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "ehrlich"

// Tool call outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeUnknown = "unknown"
	OutcomeCached  = "cached"
	OutcomeSpecial = "special"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	toolCalls     *prometheus.CounterVec
	cacheLookups  *prometheus.CounterVec
	experiments   *prometheus.CounterVec
	batchDuration prometheus.Histogram
	llmTokens     *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	m := &Metrics{
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool dispatches by tool and outcome.",
		}, []string{"tool", "outcome"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_cache_lookups_total",
			Help:      "Tool cache lookups by result.",
		}, []string{"result"}),
		experiments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "experiments_total",
			Help:      "Experiments reaching a terminal status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of experiment batches.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		llmTokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Model tokens by model and direction.",
		}, []string{"model", "direction"}),
	}
	if reg != nil {
		reg.MustRegister(m.toolCalls, m.cacheLookups, m.experiments, m.batchDuration, m.llmTokens)
	}
	return m
}

func (m *Metrics) ToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Experiment(status string) {
	if m == nil {
		return
	}
	m.experiments.WithLabelValues(status).Inc()
}

func (m *Metrics) BatchDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.batchDuration.Observe(d.Seconds())
}

func (m *Metrics) Tokens(model string, in, out int64) {
	if m == nil {
		return
	}
	if model == "" {
		model = "unknown"
	}
	m.llmTokens.WithLabelValues(model, "input").Add(float64(in))
	m.llmTokens.WithLabelValues(model, "output").Add(float64(out))
}

// Tracer returns the named tracer from the global provider (no-op unless the host installs one).
func Tracer(name string) trace.Tracer {
	return otel.Tracer("ehrlich/" + name)
}
