package mentor

import "strings"

// Price holds per-million-token pricing for a model in dollars.
type Price struct {
	InputPerMillion  float64 `yaml:"input_per_million" json:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million" json:"output_per_million"`
}

// PriceTable maps model identifiers to prices. Lookups try an exact match
// first, then the longest matching prefix, then fall back to Fallback.
type PriceTable struct {
	Models   map[string]Price `yaml:"models" json:"models"`
	Fallback Price            `yaml:"fallback" json:"fallback"`
}

// DefaultPrices returns built-in pricing for well-known models.
func DefaultPrices() PriceTable {
	return PriceTable{
		Models: map[string]Price{
			// Anthropic
			"claude-sonnet-4":   {3.0, 15.0},
			"claude-opus-4":     {15.0, 75.0},
			"claude-haiku-4-5":  {0.80, 4.0},
			// OpenAI
			"gpt-4o":       {2.50, 10.0},
			"gpt-4o-mini":  {0.15, 0.60},
			"gpt-4.1":      {2.0, 8.0},
			"gpt-4.1-mini": {0.40, 1.60},
			"o4-mini":      {1.10, 4.40},
		},
		Fallback: Price{5.0, 15.0},
	}
}

// CostOf returns the dollar cost of the given usage for a model.
func (t PriceTable) CostOf(model string, usage Usage) float64 {
	p, ok := t.lookup(model)
	if !ok {
		p = t.Fallback
	}
	return (float64(usage.PromptTokens) * p.InputPerMillion / 1_000_000) +
		(float64(usage.CompletionTokens) * p.OutputPerMillion / 1_000_000)
}

func (t PriceTable) lookup(model string) (Price, bool) {
	if p, ok := t.Models[model]; ok {
		return p, true
	}
	// Prefix matching for versioned model names (e.g. "gpt-4o-2024-08-06").
	// Longest prefix wins so "gpt-4o-mini" beats "gpt-4o".
	var (
		best  string
		price Price
	)
	for name, p := range t.Models {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
			price = p
		}
	}
	if best == "" {
		return Price{}, false
	}
	return price, true
}
