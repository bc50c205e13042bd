package enrich

import (
	"context"
	"fmt"
	"sync"
)

// StubBackend answers every batch locally without network access. It echoes
// the deterministic score, which makes offline runs reproducible. Fail, when
// set, can inject an error per attempt.
type StubBackend struct {
	Fail func(req Request, attempt int) error

	mu       sync.Mutex
	attempts map[int]int
}

// NewStubBackend returns an offline backend.
func NewStubBackend() *StubBackend {
	return &StubBackend{attempts: make(map[int]int)}
}

// Name implements Backend.
func (b *StubBackend) Name() string { return "stub" }

// Call implements Backend.
func (b *StubBackend) Call(ctx context.Context, req Request) (*Response, error) {
	b.mu.Lock()
	if b.attempts == nil {
		b.attempts = make(map[int]int)
	}
	b.attempts[req.BatchID]++
	attempt := b.attempts[req.BatchID]
	b.mu.Unlock()

	if b.Fail != nil {
		if err := b.Fail(req, attempt); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]RowResult, len(req.Rows))
	for i, row := range req.Rows {
		score := row.DeterministicScore
		results[i] = RowResult{
			RowIndex:      row.RowIndex,
			FitScore:      &score,
			Reasoning:     "offline: " + row.DeterministicWhy,
			Industry:      row.Industry,
			EmployeeCount: flexString(row.EmployeeCount),
			Summary:       fmt.Sprintf("%s (offline enrichment)", row.Company),
		}
	}
	return &Response{Model: "stub", Results: results}, nil
}

// Attempts returns how many calls batchID has received.
func (b *StubBackend) Attempts(batchID int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts[batchID]
}
