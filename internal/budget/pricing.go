package budget

import "strings"

// Price is the dollar cost per million tokens.
type Price struct {
	InputPerMTok  float64 `mapstructure:"input_per_mtok" json:"input_per_mtok"`
	OutputPerMTok float64 `mapstructure:"output_per_mtok" json:"output_per_mtok"`
}

// Cost returns the dollar cost of the given token counts.
func (p Price) Cost(in, out int64) float64 {
	return float64(in)/1e6*p.InputPerMTok + float64(out)/1e6*p.OutputPerMTok
}

// DefaultPrices lists the models the engine drives out of the box.
var DefaultPrices = map[string]Price{
	"claude-opus-4-5":   {InputPerMTok: 5, OutputPerMTok: 25},
	"claude-sonnet-4-5": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4-5":  {InputPerMTok: 1, OutputPerMTok: 5},
}

// FallbackPrice applies to usage with no model or an unknown one.
var FallbackPrice = Price{InputPerMTok: 3, OutputPerMTok: 15}

// PriceTable resolves a model identifier to its price.
type PriceTable struct {
	prices   map[string]Price
	fallback Price
}

// NewPriceTable copies DefaultPrices and applies overrides on top.
func NewPriceTable(overrides map[string]Price) PriceTable {
	prices := make(map[string]Price, len(DefaultPrices)+len(overrides))
	for k, v := range DefaultPrices {
		prices[k] = v
	}
	for k, v := range overrides {
		prices[strings.TrimSpace(k)] = v
	}
	return PriceTable{prices: prices, fallback: FallbackPrice}
}

// Lookup returns the exact match, else the longest configured model name that
// prefixes model (dated snapshots such as "claude-haiku-4-5-20251001"), else the fallback.
func (t PriceTable) Lookup(model string) Price {
	if t.prices == nil {
		return FallbackPrice
	}
	if p, ok := t.prices[model]; ok {
		return p
	}
	best, bestLen := t.fallback, 0
	for name, p := range t.prices {
		if len(name) > bestLen && strings.HasPrefix(model, name) {
			best, bestLen = p, len(name)
		}
	}
	return best
}
