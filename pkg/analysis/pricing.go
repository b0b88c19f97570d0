package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Pricing is the price of one million tokens of each kind, in USD.
type Pricing struct {
	Input      float64 `json:"input" toml:"input"`
	Output     float64 `json:"output" toml:"output"`
	CacheRead  float64 `json:"cache_read,omitempty" toml:"cache_read"`
	CacheWrite float64 `json:"cache_write,omitempty" toml:"cache_write"`
}

// PricingTable maps a normalized model name to its prices.
type PricingTable map[string]Pricing

func DefaultPricing() PricingTable {
	return PricingTable{
		"claude-opus-4.6":   {Input: 5.00, Output: 25.00, CacheRead: 0.50, CacheWrite: 6.25},
		"claude-opus-4.5":   {Input: 5.00, Output: 25.00, CacheRead: 0.50, CacheWrite: 6.25},
		"claude-opus-4.1":   {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"claude-opus-4":     {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"claude-sonnet-4.5": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-sonnet-4":   {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-haiku-4.5":  {Input: 1.00, Output: 5.00, CacheRead: 0.10, CacheWrite: 1.25},
		"claude-3.5-sonnet": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-3.5-haiku":  {Input: 0.80, Output: 4.00, CacheRead: 0.08, CacheWrite: 1.00},
		"claude-sonnet-3.7": {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"claude-3-opus":     {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"claude-3-haiku":    {Input: 0.25, Output: 1.25, CacheRead: 0.03, CacheWrite: 0.30},
		"opus":              {Input: 15.00, Output: 75.00, CacheRead: 1.50, CacheWrite: 18.75},
		"sonnet":            {Input: 3.00, Output: 15.00, CacheRead: 0.30, CacheWrite: 3.75},
		"haiku":             {Input: 1.00, Output: 5.00, CacheRead: 0.10, CacheWrite: 1.25},
		"gpt-4o":            {Input: 2.50, Output: 10.00, CacheRead: 1.25, CacheWrite: 2.50},
		"gpt-4o-mini":       {Input: 0.15, Output: 0.60, CacheRead: 0.075, CacheWrite: 0.15},
		"gpt-4.1":           {Input: 2.00, Output: 8.00, CacheRead: 0.50, CacheWrite: 2.00},
		"gpt-4.1-mini":      {Input: 0.40, Output: 1.60, CacheRead: 0.10, CacheWrite: 0.40},
		"gpt-4.1-nano":      {Input: 0.10, Output: 0.40, CacheRead: 0.025, CacheWrite: 0.10},
		"o3":                {Input: 2.00, Output: 8.00, CacheRead: 0.50, CacheWrite: 2.00},
		"o3-mini":           {Input: 1.10, Output: 4.40, CacheRead: 0.55, CacheWrite: 1.10},
		"o4-mini":           {Input: 1.10, Output: 4.40, CacheRead: 0.275, CacheWrite: 1.10},
		"o1":                {Input: 15.00, Output: 60.00, CacheRead: 7.50, CacheWrite: 15.00},
		"deepseek-r1":       {Input: 0.55, Output: 2.19, CacheRead: 0.14},
	}
}

// LoadPricing returns the default table with the entries of the file at path
// laid over it. The file is TOML when its extension is .toml and JSON
// otherwise. An empty path returns the defaults.
func LoadPricing(path string) (PricingTable, error) {
	pricing := DefaultPricing()
	if path == "" {
		return pricing, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file: %w", err)
	}

	var overrides map[string]Pricing
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &overrides)
	} else {
		err = json.Unmarshal(data, &overrides)
	}
	if err != nil {
		return nil, fmt.Errorf("parse pricing file: %w", err)
	}

	for model, price := range overrides {
		pricing[normalizeModel(model)] = price
	}

	return pricing, nil
}

func PricingForModel(pricing PricingTable, model string) (Pricing, bool) {
	normalized := normalizeModel(model)
	price, ok := pricing[normalized]
	if ok {
		return price, true
	}
	price, ok = pricing[model]
	return price, ok
}

// CostForTokens prices input and output tokens and returns the input, output
// and total cost.
func CostForTokens(pricing Pricing, inputTokens, outputTokens int64) (float64, float64, float64) {
	inputCost := float64(inputTokens) / 1_000_000.0 * pricing.Input
	outputCost := float64(outputTokens) / 1_000_000.0 * pricing.Output
	return inputCost, outputCost, inputCost + outputCost
}

// normalizeModel lowercases a model name, drops release date suffixes and
// turns dashed versions into dotted ones: "claude-sonnet-4-5-20250929" ->
// "claude-sonnet-4.5".
func normalizeModel(model string) string {
	normalized := strings.ToLower(strings.TrimSpace(model))
	if normalized == "" {
		return normalized
	}

	// -YYYYMMDD
	if idx := strings.LastIndex(normalized, "-"); idx != -1 {
		suffix := normalized[idx+1:]
		if len(suffix) == 8 && isDigits(suffix) {
			normalized = normalized[:idx]
		}
	}

	normalized = stripDashedDate(normalized)

	for _, v := range []string{"4-6", "4-5", "4-1", "3-7", "3-5"} {
		normalized = strings.ReplaceAll(normalized, "-"+v, "-"+strings.Replace(v, "-", ".", 1))
	}
	return normalized
}

// stripDashedDate removes a trailing -YYYY-MM-DD.
func stripDashedDate(model string) string {
	if len(model) < 12 {
		return model
	}

	suffix := model[len(model)-11:]
	if suffix[0] != '-' {
		return model
	}
	date := suffix[1:]
	if isDigits(date[0:4]) && date[4] == '-' && isDigits(date[5:7]) && date[7] == '-' && isDigits(date[8:10]) {
		return model[:len(model)-11]
	}
	return model
}

func isDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
