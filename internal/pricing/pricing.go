// Package pricing estimates the dollar cost of a completion from its token usage.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/caviaarmode/shopping-assistant/internal/domain"
)

// Rate is the USD price per token for prompt and completion tokens.
type Rate struct {
	Prompt     decimal.Decimal
	Completion decimal.Decimal
}

// Places is the precision of reported estimates.
const Places = 6

// DefaultRate is gpt-4o-mini pricing: $0.15 per 1M prompt tokens, $0.60 per 1M completion tokens.
var DefaultRate = Rate{
	Prompt:     decimal.RequireFromString("0.00000015"),
	Completion: decimal.RequireFromString("0.0000006"),
}

var rates = map[string]Rate{
	"gpt-4o-mini": DefaultRate,
	"gpt-4o": {
		Prompt:     decimal.RequireFromString("0.0000025"),
		Completion: decimal.RequireFromString("0.00001"),
	},
}

// RateFor returns the rate for model, falling back to DefaultRate.
// Dated snapshots such as gpt-4o-mini-2024-07-18 resolve to their family.
func RateFor(model string) Rate {
	if r, ok := rates[model]; ok {
		return r
	}
	best, bestLen := DefaultRate, 0
	for name, r := range rates {
		if len(name) > bestLen && len(model) > len(name) && model[:len(name)+1] == name+"-" {
			best, bestLen = r, len(name)
		}
	}
	return best
}

// Estimate returns the cost of usage at rate, rounded to Places decimals.
func (r Rate) Estimate(usage domain.Usage) decimal.Decimal {
	prompt := r.Prompt.Mul(decimal.NewFromInt(int64(usage.PromptTokens)))
	completion := r.Completion.Mul(decimal.NewFromInt(int64(usage.CompletionTokens)))
	return prompt.Add(completion).Round(Places)
}

// EstimateUSD is Estimate for model as a float for JSON metadata.
func EstimateUSD(model string, usage domain.Usage) float64 {
	return RateFor(model).Estimate(usage).InexactFloat64()
}
