package provider

import (
	"strings"

	"metamender/internal/config"
)

// fallbackPrice applies to hosted models missing from the table: a flat
// $10 per million tokens in either direction.
var fallbackPrice = config.Price{InputPerMillion: 10, OutputPerMillion: 10}

// defaultPrices are list prices in USD per million tokens.
var defaultPrices = map[string]config.Price{
	"gpt-4.1":               {InputPerMillion: 2.00, OutputPerMillion: 8.00},
	"gpt-4.1-mini":          {InputPerMillion: 0.40, OutputPerMillion: 1.60},
	"gpt-4.1-nano":          {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gpt-4o":                {InputPerMillion: 2.50, OutputPerMillion: 10.00},
	"gpt-4o-mini":           {InputPerMillion: 0.15, OutputPerMillion: 0.60},
	"claude-3-5-haiku":      {InputPerMillion: 0.80, OutputPerMillion: 4.00},
	"claude-3-5-sonnet":     {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-7-sonnet":     {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-sonnet-4":       {InputPerMillion: 3.00, OutputPerMillion: 15.00},
	"claude-3-haiku":        {InputPerMillion: 0.25, OutputPerMillion: 1.25},
	"gemini-1.5-flash":      {InputPerMillion: 0.075, OutputPerMillion: 0.30},
	"gemini-1.5-pro":        {InputPerMillion: 1.25, OutputPerMillion: 5.00},
	"gemini-2.0-flash":      {InputPerMillion: 0.10, OutputPerMillion: 0.40},
	"gemini-2.0-flash-lite": {InputPerMillion: 0.075, OutputPerMillion: 0.30},
	"gemini-2.5-flash":      {InputPerMillion: 0.30, OutputPerMillion: 2.50},
}

// Pricing estimates request cost from token usage.
type Pricing struct {
	prices map[string]config.Price
}

// NewPricing merges overrides (keyed by lower-case model name) over the
// built-in table.
func NewPricing(overrides map[string]config.Price) Pricing {
	prices := make(map[string]config.Price, len(defaultPrices)+len(overrides))
	for model, price := range defaultPrices {
		prices[model] = price
	}
	for model, price := range overrides {
		prices[strings.ToLower(strings.TrimSpace(model))] = price
	}
	return Pricing{prices: prices}
}

// Lookup returns the price for model. Dated or suffixed model names such as
// "gpt-4.1-mini-2025-04-14" match the longest known prefix.
func (p Pricing) Lookup(provider, model string) config.Price {
	if config.CanonicalProvider(provider) == config.ProviderLocal {
		return config.Price{}
	}
	key := strings.ToLower(strings.TrimSpace(model))
	key = strings.TrimPrefix(key, "models/")
	if slash := strings.LastIndex(key, "/"); slash >= 0 {
		key = key[slash+1:]
	}
	if price, ok := p.prices[key]; ok {
		return price
	}
	best := ""
	for known := range p.prices {
		if strings.HasPrefix(key, known) && len(known) > len(best) {
			best = known
		}
	}
	if best != "" {
		return p.prices[best]
	}
	return fallbackPrice
}

// Cost returns the estimated cost in USD. Backends that report only a total
// are charged at the input rate.
func (p Pricing) Cost(provider, model string, usage Usage) float64 {
	price := p.Lookup(provider, model)
	input, output := usage.InputTokens, usage.OutputTokens
	if input == 0 && output == 0 {
		input = usage.TotalTokens
	}
	return (float64(input)*price.InputPerMillion + float64(output)*price.OutputPerMillion) / 1_000_000
}
