package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_Complete(t *testing.T) {
	var body map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/messages")
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"id":   "msg_test_001",
			"type": "message",
			"role": "assistant",
			"content": []map[string]any{
				{"type": "text", "text": `{"verdict": "INSUFFICIENT", "missing_analysis": "no box"}`},
			},
			"model":       "claude-sonnet-4-5-20250929",
			"stop_reason": "end_turn",
			"usage": map[string]any{
				"input_tokens":  10,
				"output_tokens": 5,
			},
		})
	}))
	defer ts.Close()

	p, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: ts.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Model:       "claude-sonnet-4-5-20250929",
		Messages:    []Message{SystemMessage("strict judge"), UserMessage("is it solvable?")},
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, "INSUFFICIENT")
	assert.Equal(t, 15, resp.TokensUsed)
	assert.Equal(t, "claude-sonnet-4-5-20250929", resp.Model)

	// System prompt travels out of band; default max_tokens applied
	assert.NotNil(t, body["system"])
	assert.EqualValues(t, anthropicDefaultMaxTokens, body["max_tokens"])
	msgs, _ := body["messages"].([]any)
	assert.Len(t, msgs, 1)
}

func TestAnthropicProvider_Errors(t *testing.T) {
	_, err := NewAnthropicProvider(Config{})
	assert.Error(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "invalid_request_error", "message": "bad"}}`))
	}))
	defer ts.Close()

	p, err := NewAnthropicProvider(Config{APIKey: "test-key", BaseURL: ts.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), CompletionRequest{Model: "claude-haiku-4-5-20251001", Messages: []Message{UserMessage("x")}})
	assert.Error(t, err)

	_, err = p.Complete(context.Background(), CompletionRequest{
		Model:    "claude-haiku-4-5-20251001",
		Messages: []Message{{Role: RoleUser, Parts: []Part{VideoPart("data:video/mp4;base64,AA")}}},
	})
	assert.Error(t, err)
}
