package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/sells-group/leadbatch/internal/resilience"
)

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string
}

// GeminiBackend scores batches with a Gemini model using a JSON response
// schema.
type GeminiBackend struct {
	client *genai.Client
	model  string
}

// NewGeminiBackend creates a Gemini client.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, resilience.NewFatalConfigError("gemini.key is required", nil)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, resilience.NewFatalConfigError("gemini.model is required", nil)
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: create gemini client")
	}
	return &GeminiBackend{client: client, model: strings.TrimSpace(cfg.Model)}, nil
}

// Name implements Backend.
func (b *GeminiBackend) Name() string { return "gemini" }

var geminiSchema = &genai.Schema{
	Type: genai.TypeArray,
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"row_index":      {Type: genai.TypeInteger},
			"fit_score":      {Type: genai.TypeInteger},
			"reasoning":      {Type: genai.TypeString},
			"industry":       {Type: genai.TypeString},
			"employee_count": {Type: genai.TypeString},
			"summary":        {Type: genai.TypeString},
		},
		Required: []string{"row_index", "fit_score", "reasoning"},
	},
}

// Call implements Backend.
func (b *GeminiBackend) Call(ctx context.Context, req Request) (*Response, error) {
	body, err := encodeRows(req.Rows)
	if err != nil {
		return nil, err
	}

	temp := float32(0)
	resp, err := b.client.Models.GenerateContent(
		ctx,
		b.model,
		genai.Text(body),
		&genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.Prompt, genai.RoleUser),
			Temperature:       &temp,
			CandidateCount:    1,
			ResponseMIMEType:  "application/json",
			ResponseSchema:    geminiSchema,
		},
	)
	if err != nil {
		return nil, classifyGeminiErr(err)
	}

	results, err := parseResults(resp.Text())
	if err != nil {
		return nil, err
	}

	out := &Response{Model: b.model, Results: results}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			InputTokens:     int64(u.PromptTokenCount),
			OutputTokens:    int64(u.CandidatesTokenCount),
			CacheReadTokens: int64(u.CachedContentTokenCount),
		}
	}
	return out, nil
}

func classifyGeminiErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTP(eris.Wrap(err, "enrich: gemini generate"), apiErr.Code)
	}
	return eris.Wrap(err, "enrich: gemini generate")
}
