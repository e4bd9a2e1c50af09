package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestClient_Complete(t *testing.T) {
	var received struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "IN_SCOPE"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 2, "total_tokens": 14}
		}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL + "/v1/", Model: "gpt-4o", APIKey: "sk-test"}, zap.NewNop())
	require.NoError(t, err)

	text, err := client.Complete(WithStage(context.Background(), StageScope), "Is this in scope?", CompletionOptions{MaxTokens: 20})
	require.NoError(t, err)

	assert.Equal(t, "IN_SCOPE", text)
	assert.Equal(t, "gpt-4o", received.Model)
	assert.Equal(t, 20, received.MaxTokens)
	require.Len(t, received.Messages, 1)
	assert.Equal(t, "user", received.Messages[0].Role)
	assert.Equal(t, "Is this in scope?", received.Messages[0].Content)
	assert.Equal(t, server.URL+"/v1/", client.GetEndpoint())
}

func TestClient_Complete_ClassifiesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "gpt-4o", APIKey: "bad"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "prompt", CompletionOptions{MaxTokens: 10})
	require.Error(t, err)
	assert.Equal(t, ErrorTypeAuth, GetErrorType(err))

	var llmErr *Error
	require.ErrorAs(t, err, &llmErr)
	assert.Equal(t, "gpt-4o", llmErr.Model)
}

func TestClient_Complete_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "x", "object": "chat.completion", "model": "gpt-4o", "choices": []}`))
	}))
	defer server.Close()

	client, err := NewClient(&Config{Endpoint: server.URL, Model: "gpt-4o"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Complete(context.Background(), "prompt", CompletionOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestNewAnthropicClient(t *testing.T) {
	_, err := NewAnthropicClient(&Config{}, zap.NewNop())
	require.Error(t, err)

	client, err := NewAnthropicClient(&Config{APIKey: "sk-ant-test", Endpoint: "http://localhost:9999/v1"}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultAnthropicModel, client.GetModel())
}

const echoedKey = "sk-ant-REDACTED"

func TestCompleteFailureLogsRedactKeys(t *testing.T) {
	tests := []struct {
		name string
		body string
		dial func(endpoint string, logger *zap.Logger) (Oracle, error)
	}{
		{
			name: "openai",
			body: `{"error": {"message": "Incorrect API key provided: ` + echoedKey + `", "type": "invalid_request_error"}}`,
			dial: func(endpoint string, logger *zap.Logger) (Oracle, error) {
				return NewClient(&Config{Endpoint: endpoint, Model: "gpt-4o", APIKey: echoedKey}, logger)
			},
		},
		{
			name: "anthropic",
			body: `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key ` + echoedKey + `"}}`,
			dial: func(endpoint string, logger *zap.Logger) (Oracle, error) {
				return NewAnthropicClient(&Config{Endpoint: endpoint, APIKey: echoedKey}, logger)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			core, logs := observer.New(zapcore.ErrorLevel)
			client, err := tt.dial(server.URL, zap.New(core))
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), "prompt", CompletionOptions{MaxTokens: 10})
			require.Error(t, err)

			entries := logs.FilterMessage("LLM request failed").All()
			require.Len(t, entries, 1)
			logged, ok := entries[0].ContextMap()["error"].(string)
			require.True(t, ok, "error field is a sanitized string")
			assert.NotContains(t, logged, echoedKey)
		})
	}
}
