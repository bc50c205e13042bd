package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/sells-group/leadbatch/internal/config"
	"github.com/sells-group/leadbatch/internal/cost"
	"github.com/sells-group/leadbatch/internal/resilience"
	"github.com/sells-group/leadbatch/pkg/anthropic"
	"github.com/sells-group/leadbatch/pkg/perplexity"
)

// NewBackend builds the backend selected by cfg.Enrichment.Backend.
// Missing credentials are a FatalConfigError.
func NewBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Enrichment.Backend {
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, resilience.NewFatalConfigError("anthropic.key is required", nil)
		}
		return NewAnthropicBackend(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	case "gemini":
		b, err := NewGeminiBackend(ctx, GeminiConfig{
			APIKey:  cfg.Gemini.Key,
			Model:   cfg.Gemini.Model,
			BaseURL: cfg.Gemini.BaseURL,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case "perplexity":
		if cfg.Perplexity.Key == "" {
			return nil, resilience.NewFatalConfigError("perplexity.key is required", nil)
		}
		client := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithModel(cfg.Perplexity.Model),
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
		)
		return NewPerplexityBackend(client, cfg.Perplexity.MaxTokens), nil
	case "stub":
		return NewStubBackend(), nil
	default:
		return nil, resilience.NewFatalConfigError(fmt.Sprintf("unknown enrichment backend %q", cfg.Enrichment.Backend), nil)
	}
}

// OptionsFromConfig converts configuration into adapter options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	prompt, err := LoadPrompt(cfg.Enrichment.PromptFile)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Retry: resilience.FromRetryConfig(
			cfg.Retry.MaxAttempts,
			cfg.Retry.BaseDelayMs,
			cfg.Retry.MaxDelayMs,
			cfg.Retry.Jitter,
		),
		CallTimeout:      time.Duration(cfg.Enrichment.CallTimeoutSecs) * time.Second,
		RateLimit:        cfg.Enrichment.RateLimitRPS,
		Burst:            cfg.Enrichment.Burst,
		BreakerThreshold: cfg.Enrichment.CircuitFailureThreshold,
		BreakerCooldown:  time.Duration(cfg.Enrichment.CircuitResetSecs) * time.Second,
		Prompt:           prompt,
	}, nil
}

// NewAdapterFromConfig wires backend, pricing, and options together.
func NewAdapterFromConfig(ctx context.Context, cfg *config.Config) (*Adapter, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	calc := cost.NewCalculator(cost.RatesFromConfig(cfg.Pricing))
	return NewAdapter(backend, calc, opts), nil
}
