package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/parley/internal/ports"
)

func TestClientSendParsesMessage(t *testing.T) {
	t.Parallel()

	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant-test", r.Header.Get("X-Api-Key"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-haiku-latest",
			"content": [{"type": "text", "text": "Good evening."}, {"type": "text", "text": " Lovely weather."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 7}
		}`)
	}))
	defer server.Close()

	client := New("sk-ant-test", WithBaseURL(server.URL), WithMaxRetries(0))
	resp, err := client.Send(context.Background(), ports.LLMCall{Prompt: "greet"})
	require.NoError(t, err)

	assert.Equal(t, "Good evening. Lovely weather.", resp.Text)
	assert.Equal(t, 7, resp.TokenCount)
	assert.Equal(t, DefaultModel, body["model"])
	assert.EqualValues(t, defaultMaxTokens, body["max_tokens"])
	assert.NotEmpty(t, body["system"])
}

func TestClientSendRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id": "msg_2", "type": "message", "role": "assistant", "model": "m", "content": [], "usage": {"input_tokens": 1, "output_tokens": 0}}`)
	}))
	defer server.Close()

	client := New("k", WithBaseURL(server.URL), WithMaxRetries(0))
	_, err := client.Send(context.Background(), ports.LLMCall{Prompt: "x"})
	assert.ErrorIs(t, err, errEmptyResponse)
}

func TestClientSendReportsProviderError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"type": "error", "error": {"type": "authentication_error", "message": "invalid x-api-key"}}`)
	}))
	defer server.Close()

	client := New("bad", WithBaseURL(server.URL), WithMaxRetries(0))
	_, err := client.Send(context.Background(), ports.LLMCall{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic message")
}
