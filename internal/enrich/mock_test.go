package enrich

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/leadbatch/pkg/anthropic"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

// funcBackend adapts a function to Backend.
type funcBackend struct {
	fn func(ctx context.Context, req Request) (*Response, error)
}

func (b *funcBackend) Name() string { return "func" }

func (b *funcBackend) Call(ctx context.Context, req Request) (*Response, error) {
	return b.fn(ctx, req)
}

// echoResponse answers every row of req with a score of 1.
func echoResponse(req Request) *Response {
	results := make([]RowResult, len(req.Rows))
	for i, r := range req.Rows {
		one := 1
		results[i] = RowResult{RowIndex: r.RowIndex, FitScore: &one, Reasoning: "ok"}
	}
	return &Response{
		Model:   "claude-haiku-4-5-20251001",
		Results: results,
		Usage:   Usage{InputTokens: 1_000_000, OutputTokens: 100_000},
	}
}
