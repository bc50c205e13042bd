package enrich

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadbatch/internal/resilience"
	"github.com/sells-group/leadbatch/pkg/perplexity"
)

// PerplexityBackend scores batches with a Perplexity Sonar model, which can
// look companies up on the web while answering.
type PerplexityBackend struct {
	client    perplexity.Client
	maxTokens int
}

// NewPerplexityBackend wraps a perplexity.Client.
func NewPerplexityBackend(client perplexity.Client, maxTokens int) *PerplexityBackend {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &PerplexityBackend{client: client, maxTokens: maxTokens}
}

// Name implements Backend.
func (b *PerplexityBackend) Name() string { return "perplexity" }

// Call implements Backend.
func (b *PerplexityBackend) Call(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeRows(req.Rows)
	if err != nil {
		return nil, err
	}

	temp := 0.0
	maxTokens := b.maxTokens
	resp, err := b.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Messages: []perplexity.Message{
			{Role: "system", Content: req.Prompt},
			{Role: "user", Content: body},
		},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	if err != nil {
		if code := perplexity.StatusCode(err); code != 0 {
			return nil, resilience.ClassifyHTTP(err, code)
		}
		return nil, err
	}
	if len(resp.Choices) > 0 && resp.Choices[0].FinishReason == "length" {
		return nil, resilience.NewTransientError(eris.Errorf("enrich: batch %d response truncated at %d tokens", req.BatchID, b.maxTokens), 0)
	}

	results, err := parseResults(resp.Text())
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = b.client.Model()
	}
	return &Response{
		Model:   model,
		Results: results,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
