package perplexity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompletion(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantStatus int
		wantText   string
		wantModel  string
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"id": "cmpl-123",
				"model": "sonar-pro",
				"choices": [{"index": 0, "message": {"role": "assistant", "content": "[]"}, "finish_reason": "stop"}],
				"usage": {"prompt_tokens": 10, "completion_tokens": 5}
			}`,
			wantText:  "[]",
			wantModel: "sonar-pro",
		},
		{
			name:      "model_defaults_to_request",
			status:    http.StatusOK,
			body:      `{"id": "cmpl-1", "choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}}]}`,
			wantText:  "ok",
			wantModel: "sonar",
		},
		{
			name:       "rate_limit",
			status:     http.StatusTooManyRequests,
			body:       `{"error": "rate limit exceeded"}`,
			wantErr:    "unexpected status 429",
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "unauthorized",
			status:     http.StatusUnauthorized,
			body:       `{"error": "bad key"}`,
			wantErr:    "unexpected status 401",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient("test-key", WithBaseURL(srv.URL+"/"))

			resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
				Messages: []Message{{Role: "user", Content: "Hi"}},
			})

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Equal(t, tt.wantStatus, StatusCode(err))
				assert.Nil(t, resp)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Text())
			assert.Equal(t, tt.wantModel, resp.Model)
		})
	}
}

func TestChatCompletion_SendsDefaultModel(t *testing.T) {
	var got ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL), WithModel("sonar-pro"))
	assert.Equal(t, "sonar-pro", client.Model())

	temp := 0.0
	resp, err := client.ChatCompletion(context.Background(), ChatCompletionRequest{
		Messages:    []Message{{Role: "system", Content: "rules"}, {Role: "user", Content: "rows"}},
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Text())
	assert.Equal(t, "sonar-pro", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.Temperature)
}

func TestChatCompletion_TruncatesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(context.Background(), ChatCompletionRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, apiErr.Body, maxErrorBody)
}

func TestChatCompletion_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient("k", WithBaseURL(srv.URL)).ChatCompletion(ctx, ChatCompletionRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send request")
	assert.Zero(t, StatusCode(err))
}

func TestStatusCode_NoAPIError(t *testing.T) {
	assert.Zero(t, StatusCode(nil))
	assert.Zero(t, StatusCode(assert.AnError))
}
