package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadbatch/internal/resilience"
	"github.com/sells-group/leadbatch/pkg/anthropic"
)

// AnthropicBackend scores batches with a Claude model.
type AnthropicBackend struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicBackend wraps an anthropic.Client.
func NewAnthropicBackend(client anthropic.Client, model string, maxTokens int64) *AnthropicBackend {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &AnthropicBackend{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Backend.
func (b *AnthropicBackend) Name() string { return "anthropic" }

// Call implements Backend.
func (b *AnthropicBackend) Call(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeRows(req.Rows)
	if err != nil {
		return nil, err
	}

	temp := 0.0
	resp, err := b.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       b.model,
		MaxTokens:   b.maxTokens,
		System:      anthropic.BuildCachedSystemBlocks(req.Prompt, "1h"),
		Messages:    []anthropic.Message{{Role: "user", Content: body}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, classifyAnthropicErr(err)
	}
	if resp.StopReason == "max_tokens" {
		return nil, resilience.NewTransientError(eris.Errorf("enrich: batch %d response truncated at %d tokens", req.BatchID, b.maxTokens), 0)
	}

	results, err := parseResults(resp.Text())
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = b.model
	}
	return &Response{
		Model:   model,
		Results: results,
		Usage: Usage{
			InputTokens:      resp.Usage.InputTokens,
			OutputTokens:     resp.Usage.OutputTokens,
			CacheWriteTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:  resp.Usage.CacheReadInputTokens,
		},
	}, nil
}

func classifyAnthropicErr(err error) error {
	if code := anthropic.StatusCode(err); code != 0 {
		return resilience.ClassifyHTTP(err, code)
	}
	// No HTTP status: network trouble or a deadline, decided by IsTransient.
	return err
}
