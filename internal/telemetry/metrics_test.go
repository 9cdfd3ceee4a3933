package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.ToolCall("search_literature", OutcomeOK)
	m.ToolCall("search_literature", OutcomeOK)
	m.ToolCall("nope", OutcomeUnknown)
	m.CacheLookup("hit")
	m.Experiment("failed")
	m.Tokens("", 10, 4)
	m.BatchDuration(3 * time.Second)

	if got := testutil.ToFloat64(m.toolCalls.WithLabelValues("search_literature", OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.ToFloat64(m.llmTokens.WithLabelValues("unknown", "output")); got != 4 {
		t.Fatalf("expected 4 output tokens, got %v", got)
	}
	if n := testutil.CollectAndCount(m.batchDuration); n != 1 {
		t.Fatalf("expected histogram to be collected, got %d", n)
	}
	if n, err := testutil.GatherAndCount(reg); err != nil || n == 0 {
		t.Fatalf("expected registered metrics, got %d (%v)", n, err)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ToolCall("x", OutcomeOK)
	m.CacheLookup("miss")
	m.Experiment("completed")
	m.Tokens("m", 1, 1)
	m.BatchDuration(time.Second)
}
