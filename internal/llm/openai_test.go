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
)

func TestOpenAIBackend_Complete(t *testing.T) {
	var received struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"**a.py**\n` + "```" + `\nA\n` + "```" + `"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer server.Close()

	backend, err := NewOpenAIBackend(OpenAIConfig{
		APIKey:  "test-key",
		Model:   "test-model",
		BaseURL: server.URL,
	}, zap.NewNop())
	require.NoError(t, err)

	reply, err := backend.Complete(context.Background(), []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "draft"},
		{Role: RoleUser, Content: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, "**a.py**\n```\nA\n```", reply)

	assert.Equal(t, "test-model", received.Model)
	require.Len(t, received.Messages, 4)
	assert.Equal(t, "system", received.Messages[0].Role)
	assert.Equal(t, "user", received.Messages[1].Role)
	assert.Equal(t, "assistant", received.Messages[2].Role)
	assert.Equal(t, "second", received.Messages[3].Content)
}

func TestOpenAIBackend_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"chat.completion","choices":[]}`))
	}))
	defer server.Close()

	backend, err := NewOpenAIBackend(OpenAIConfig{APIKey: "k", BaseURL: server.URL}, zap.NewNop())
	require.NoError(t, err)

	_, err = backend.Complete(context.Background(), []Message{{Role: RoleUser, Content: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestNewOpenAIBackend_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIBackend(OpenAIConfig{}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}
