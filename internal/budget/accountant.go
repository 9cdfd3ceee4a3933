package budget

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// ModelUsage is the token count attributed to one model.
type ModelUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Snapshot is a point-in-time copy of the accountant's totals.
type Snapshot struct {
	InputTokens  int64                 `json:"input_tokens"`
	OutputTokens int64                 `json:"output_tokens"`
	TotalTokens  int64                 `json:"total_tokens"`
	ToolCalls    int64                 `json:"tool_calls"`
	TotalCost    float64               `json:"total_cost"`
	ByModel      map[string]ModelUsage `json:"by_model,omitempty"`
}

type tokens struct{ in, out int64 }

// Accountant accumulates token and tool-call usage. Cost is derived on read
// from the price table and never stored.
type Accountant struct {
	mu        sync.Mutex
	prices    PriceTable
	in, out   int64
	toolCalls int64
	byModel   map[string]*tokens
	started   time.Time
}

// NewAccountant returns an accountant priced by table.
func NewAccountant(table PriceTable) *Accountant {
	return &Accountant{
		prices:  table,
		byModel: make(map[string]*tokens),
		started: time.Now(),
	}
}

// AddUsage records one model call. model may be empty.
func (a *Accountant) AddUsage(in, out int64, model string) {
	if in < 0 {
		in = 0
	}
	if out < 0 {
		out = 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.in += in
	a.out += out
	t, ok := a.byModel[model]
	if !ok {
		t = &tokens{}
		a.byModel[model] = t
	}
	t.in += in
	t.out += out
}

// AddToolCall increments the tool call counter.
func (a *Accountant) AddToolCall() {
	a.mu.Lock()
	a.toolCalls++
	a.mu.Unlock()
}

// TotalCost prices the accumulated usage.
func (a *Accountant) TotalCost() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.costLocked()
}

func (a *Accountant) costLocked() float64 {
	var total float64
	for model, t := range a.byModel {
		total += a.prices.Lookup(model).Cost(t.in, t.out)
	}
	return total
}

// Elapsed reports the time since the accountant was created.
func (a *Accountant) Elapsed() time.Duration {
	return time.Since(a.started)
}

// Snapshot copies the totals. ByModel is set only when usage was attributed to a model.
func (a *Accountant) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	snap := Snapshot{
		InputTokens:  a.in,
		OutputTokens: a.out,
		TotalTokens:  a.in + a.out,
		ToolCalls:    a.toolCalls,
		TotalCost:    round4(a.costLocked()),
	}
	for model, t := range a.byModel {
		if model == "" {
			continue
		}
		if snap.ByModel == nil {
			snap.ByModel = make(map[string]ModelUsage)
		}
		snap.ByModel[model] = ModelUsage{
			InputTokens:  t.in,
			OutputTokens: t.out,
			Cost:         round4(a.prices.Lookup(model).Cost(t.in, t.out)),
		}
	}
	return snap
}

// ToMap flattens the snapshot for wire events and the investigation record.
func (a *Accountant) ToMap() map[string]any {
	snap := a.Snapshot()
	out := map[string]any{
		"input_tokens":  snap.InputTokens,
		"output_tokens": snap.OutputTokens,
		"total_tokens":  snap.TotalTokens,
		"tool_calls":    snap.ToolCalls,
		"total_cost":    snap.TotalCost,
	}
	if len(snap.ByModel) > 0 {
		names := make([]string, 0, len(snap.ByModel))
		for name := range snap.ByModel {
			names = append(names, name)
		}
		sort.Strings(names)
		models := make(map[string]any, len(names))
		for _, name := range names {
			u := snap.ByModel[name]
			models[name] = map[string]any{
				"input_tokens":  u.InputTokens,
				"output_tokens": u.OutputTokens,
				"cost":          u.Cost,
			}
		}
		out["by_model"] = models
	}
	return out
}

// Check compares usage against cfg, returning ErrExceeded for the first limit crossed.
func (a *Accountant) Check(cfg Config, elapsed time.Duration) error {
	a.mu.Lock()
	cost := a.costLocked()
	used := a.in + a.out
	a.mu.Unlock()

	if cfg.MaxCost != nil && *cfg.MaxCost > 0 && cost > *cfg.MaxCost {
		return ErrExceeded{
			Kind:  KindCost,
			Usage: fmt.Sprintf("$%.4f", cost),
			Limit: fmt.Sprintf("$%.4f", *cfg.MaxCost),
		}
	}
	if cfg.MaxTokens != nil && *cfg.MaxTokens > 0 && used > *cfg.MaxTokens {
		return ErrExceeded{
			Kind:  KindTokens,
			Usage: fmt.Sprintf("%d tokens", used),
			Limit: fmt.Sprintf("%d tokens", *cfg.MaxTokens),
		}
	}
	if cfg.MaxTimeSeconds != nil && *cfg.MaxTimeSeconds > 0 {
		limit := time.Duration(*cfg.MaxTimeSeconds) * time.Second
		if elapsed > limit {
			return ErrExceeded{
				Kind:  KindTime,
				Usage: elapsed.String(),
				Limit: limit.String(),
			}
		}
	}
	return nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
