// Package cost prices enrichment calls from token usage.
package cost

import "github.com/sells-group/leadbatch/internal/config"

// Rates holds per-model pricing configuration.
type Rates struct {
	Models map[string]ModelRate `yaml:"models" mapstructure:"models"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Tokens computes the cost of one model call. Unknown models cost 0.
func (c *Calculator) Tokens(model string, input, output, cacheWrite, cacheRead int64) float64 {
	rate, ok := c.rates.Models[model]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Known reports whether the calculator has a rate for model.
func (c *Calculator) Known(model string) bool {
	_, ok := c.rates.Models[model]
	return ok
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"gemini-2.5-flash": {
				Input: 0.30, Output: 2.50,
			},
			"sonar": {
				Input: 1.00, Output: 1.00,
			},
			"sonar-pro": {
				Input: 3.00, Output: 15.00,
			},
		},
	}
}

// RatesFromConfig layers configured per-model input/output prices over the
// defaults.
func RatesFromConfig(cfg config.PricingConfig) Rates {
	rates := DefaultRates()
	for model, p := range cfg.Models {
		r := rates.Models[model]
		r.Input = p.Input
		r.Output = p.Output
		rates.Models[model] = r
	}
	return rates
}
