package budget

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	neg := float64(-1)
	cfg := Config{MaxCost: &neg}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := Limits(2, 1000, 60).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLimitsZeroIsUnlimited(t *testing.T) {
	if !Limits(0, 0, 0).IsZero() {
		t.Fatalf("expected zero config")
	}
	if Limits(0, 10, 0).IsZero() {
		t.Fatalf("expected token limit to count")
	}
}

func TestPriceLookup(t *testing.T) {
	table := NewPriceTable(map[string]Price{"local-model": {InputPerMTok: 0, OutputPerMTok: 0}})
	if p := table.Lookup("claude-opus-4-5"); p.InputPerMTok != 5 || p.OutputPerMTok != 25 {
		t.Fatalf("unexpected opus price %+v", p)
	}
	if p := table.Lookup("claude-haiku-4-5-20251001"); p.InputPerMTok != 1 {
		t.Fatalf("expected prefix match for dated haiku, got %+v", p)
	}
	if p := table.Lookup("mystery"); p != FallbackPrice {
		t.Fatalf("expected fallback, got %+v", p)
	}
	if p := table.Lookup("local-model"); p.InputPerMTok != 0 {
		t.Fatalf("expected override, got %+v", p)
	}
}

func TestAccountantCostDerivedOnRead(t *testing.T) {
	acc := NewAccountant(NewPriceTable(nil))
	acc.AddUsage(1_000_000, 100_000, "claude-opus-4-5")
	acc.AddUsage(500_000, 0, "")
	acc.AddToolCall()
	acc.AddToolCall()

	// opus: 5 + 2.5; unattributed at fallback: 1.5
	if got := acc.TotalCost(); got != 9 {
		t.Fatalf("expected $9, got %v", got)
	}
	snap := acc.Snapshot()
	if snap.InputTokens != 1_500_000 || snap.OutputTokens != 100_000 || snap.TotalTokens != 1_600_000 {
		t.Fatalf("unexpected token totals %+v", snap)
	}
	if snap.ToolCalls != 2 {
		t.Fatalf("expected 2 tool calls, got %d", snap.ToolCalls)
	}
	if len(snap.ByModel) != 1 || snap.ByModel["claude-opus-4-5"].Cost != 7.5 {
		t.Fatalf("unexpected per-model breakdown %+v", snap.ByModel)
	}

	m := acc.ToMap()
	if m["total_cost"].(float64) != 9 {
		t.Fatalf("unexpected map %+v", m)
	}
	if _, ok := m["by_model"]; !ok {
		t.Fatalf("expected by_model in map")
	}
}

func TestAccountantToMapWithoutModels(t *testing.T) {
	acc := NewAccountant(NewPriceTable(nil))
	acc.AddUsage(10, 10, "")
	if _, ok := acc.ToMap()["by_model"]; ok {
		t.Fatalf("by_model should be omitted without attributed usage")
	}
}

func TestAccountantConcurrentUsage(t *testing.T) {
	acc := NewAccountant(NewPriceTable(nil))
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acc.AddUsage(10, 5, "claude-sonnet-4-5")
			acc.AddToolCall()
		}()
	}
	wg.Wait()
	snap := acc.Snapshot()
	if snap.TotalTokens != 1500 || snap.ToolCalls != 100 {
		t.Fatalf("lost updates: %+v", snap)
	}
}

func TestAccountantCheck(t *testing.T) {
	acc := NewAccountant(NewPriceTable(nil))
	acc.AddUsage(400, 300, "claude-haiku-4-5")
	if err := acc.Check(Limits(5, 1000, 1), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var exceeded ErrExceeded
	if err := acc.Check(Limits(0, 500, 0), 0); !errors.As(err, &exceeded) || exceeded.Kind != "tokens" {
		t.Fatalf("expected token breach, got %v", err)
	}
	if err := acc.Check(Limits(0, 0, 1), 2*time.Second); !errors.As(err, &exceeded) || exceeded.Kind != "time" {
		t.Fatalf("expected time breach, got %v", err)
	}
	if err := acc.Check(Limits(0.0001, 0, 0), 0); !errors.As(err, &exceeded) || exceeded.Kind != "cost" {
		t.Fatalf("expected cost breach, got %v", err)
	}
}
