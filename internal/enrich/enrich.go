// Package enrich is the client boundary around the external scoring and
// enrichment capability. Backends (Anthropic, Gemini, Perplexity and an
// offline stub) share one request/response contract; the Adapter adds rate
// limiting, per-call deadlines, retries and cost accounting on top.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadbatch/internal/model"
	"github.com/sells-group/leadbatch/internal/resilience"
)

// RowInput is the per-row payload sent to a backend.
type RowInput struct {
	RowIndex           int    `json:"row_index"`
	Company            string `json:"company,omitempty"`
	Domain             string `json:"domain,omitempty"`
	Email              string `json:"email,omitempty"`
	Industry           string `json:"industry,omitempty"`
	Headline           string `json:"headline,omitempty"`
	Keywords           string `json:"keywords,omitempty"`
	JobTitle           string `json:"job_title,omitempty"`
	EmployeeCount      string `json:"employee_count,omitempty"`
	Location           string `json:"location,omitempty"`
	DeterministicScore int    `json:"deterministic_score"`
	DeterministicWhy   string `json:"deterministic_reasoning,omitempty"`
}

// Request is one batch call.
type Request struct {
	BatchID int
	Rows    []RowInput
	// Prompt is opaque instruction text.
	Prompt string
}

// RowResult is what a backend returns for one row.
type RowResult struct {
	RowIndex      int        `json:"row_index"`
	FitScore      *int       `json:"fit_score"`
	Reasoning     string     `json:"reasoning"`
	Industry      string     `json:"industry"`
	EmployeeCount flexString `json:"employee_count"`
	Summary       string     `json:"summary"`
}

// Usage is token consumption for one call.
type Usage struct {
	InputTokens      int64
	OutputTokens     int64
	CacheWriteTokens int64
	CacheReadTokens  int64
}

// Response is a backend's answer to one Request.
type Response struct {
	Model   string
	Results []RowResult
	Usage   Usage
}

// Backend is a concrete enrichment provider. Call must classify failures as
// resilience.TransientError or resilience.FatalError where it can.
type Backend interface {
	Name() string
	Call(ctx context.Context, req Request) (*Response, error)
}

// CancelledError reports that the run was cancelled before the batch reached
// a terminal state. The batch should stay pending.
type CancelledError struct {
	BatchID  int
	Attempts int
	Err      error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("enrich: batch %d cancelled after %d attempt(s): %v", e.BatchID, e.Attempts, e.Err)
}

func (e *CancelledError) Unwrap() error {
	return e.Err
}

// DefaultPrompt is used when no prompt file is configured.
const DefaultPrompt = `You qualify B2B leads for an outsourcing and customer-operations provider.
For every lead in the JSON array you receive, judge how well the company fits:
2 = strong fit, 1 = possible fit, 0 = not a fit.
Fill in industry and employee_count when you can infer them.
Answer with a JSON array only, one object per lead, each with keys:
row_index, fit_score, reasoning, industry, employee_count, summary.`

// LoadPrompt returns the prompt text from path, or DefaultPrompt when path is
// empty.
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return DefaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", resilience.NewFatalConfigError("read prompt file "+path, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", resilience.NewFatalConfigError("prompt file "+path+" is empty", nil)
	}
	return text, nil
}

// encodeRows renders the rows as the user message body.
func encodeRows(rows []RowInput) (string, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return "", eris.Wrap(err, "enrich: encode rows")
	}
	return string(data), nil
}

// parseResults decodes a JSON array of RowResult from model text. Surrounding
// prose or a markdown fence is tolerated. A response that cannot be decoded is
// transient: the next attempt may well produce valid output.
func parseResults(text string) ([]RowResult, error) {
	body := strings.TrimSpace(text)
	start := strings.Index(body, "[")
	end := strings.LastIndex(body, "]")
	if start < 0 || end < start {
		return nil, resilience.NewTransientError(eris.New("enrich: response contains no JSON array"), 0)
	}
	var out []RowResult
	if err := json.Unmarshal([]byte(body[start:end+1]), &out); err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "enrich: decode response"), 0)
	}
	return out, nil
}

// toEnrichment matches backend results to the request rows. Every requested
// row must be answered; otherwise the batch is retried.
func toEnrichment(req Request, resp *Response) (map[int]model.EnrichmentResult, error) {
	byIndex := make(map[int]RowResult, len(resp.Results))
	for _, r := range resp.Results {
		if _, dup := byIndex[r.RowIndex]; !dup {
			byIndex[r.RowIndex] = r
		}
	}

	out := make(map[int]model.EnrichmentResult, len(req.Rows))
	var missing []string
	for _, row := range req.Rows {
		r, ok := byIndex[row.RowIndex]
		if !ok {
			missing = append(missing, strconv.Itoa(row.RowIndex))
			continue
		}
		er := model.EnrichmentResult{
			Status:        model.EnrichmentSucceeded,
			Reasoning:     strings.TrimSpace(r.Reasoning),
			Industry:      strings.TrimSpace(r.Industry),
			EmployeeCount: strings.TrimSpace(string(r.EmployeeCount)),
			Summary:       strings.TrimSpace(r.Summary),
		}
		if r.FitScore != nil {
			if s := model.FitScore(*r.FitScore); s.Valid() {
				er.FitScore = &s
			}
		}
		out[row.RowIndex] = er
	}
	if len(missing) > 0 {
		return nil, resilience.NewTransientError(
			eris.Errorf("enrich: batch %d response missing rows %s", req.BatchID, strings.Join(missing, ",")), 0)
	}
	return out, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}
