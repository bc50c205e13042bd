package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadbatch/internal/config"
)

func testRates() Rates {
	return Rates{
		Models: map[string]ModelRate{
			"haiku": {
				Input: 1.00, Output: 5.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"flash": {
				Input: 0.30, Output: 2.50,
			},
		},
	}
}

func TestTokens(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		model      string
		input      int64
		output     int64
		cacheWrite int64
		cacheRead  int64
		want       float64
	}{
		{
			name: "haiku simple",
			model: "haiku", input: 1000000, output: 100000,
			want: 1.00 + 0.50,
		},
		{
			name: "haiku with cache",
			model: "haiku", cacheWrite: 1000000, cacheRead: 1000000,
			want: 1.25 + 0.10,
		},
		{
			name: "flash",
			model: "flash", input: 2000000, output: 1000000,
			want: 0.60 + 2.50,
		},
		{
			name: "unknown model",
			model: "mystery", input: 1000000, output: 1000000,
			want: 0,
		},
		{
			name:  "zero tokens",
			model: "haiku",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Tokens(tt.model, tt.input, tt.output, tt.cacheWrite, tt.cacheRead)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestKnown(t *testing.T) {
	calc := NewCalculator(testRates())
	assert.True(t, calc.Known("haiku"))
	assert.False(t, calc.Known("mystery"))
}

func TestDefaultRates(t *testing.T) {
	rates := DefaultRates()
	assert.Contains(t, rates.Models, "claude-haiku-4-5-20251001")
	assert.Contains(t, rates.Models, "gemini-2.5-flash")
	assert.Contains(t, rates.Models, "sonar")
}

func TestRatesFromConfig(t *testing.T) {
	rates := RatesFromConfig(config.PricingConfig{
		Models: map[string]config.ModelPricing{
			"claude-haiku-4-5-20251001": {Input: 0.8, Output: 4.0},
			"custom-model":              {Input: 2.0, Output: 8.0},
		},
	})

	haiku := rates.Models["claude-haiku-4-5-20251001"]
	assert.InDelta(t, 0.8, haiku.Input, 1e-9)
	assert.InDelta(t, 1.25, haiku.CacheWriteMul, 1e-9, "cache multipliers survive the override")
	assert.InDelta(t, 8.0, rates.Models["custom-model"].Output, 1e-9)
}
