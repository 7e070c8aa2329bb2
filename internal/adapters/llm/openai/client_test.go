package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fikei1151/nia/internal/core/snapshot"
	"github.com/Fikei1151/nia/internal/infrastructure/config"
)

type recordedRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	Messages    []struct {
		Role       string `json:"role"`
		Content    string `json:"content"`
		Name       string `json:"name"`
		ToolCallID string `json:"tool_call_id"`
	} `json:"messages"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(config.OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		Model:       "gpt-4o-mini",
		MaxTokens:   256,
		Temperature: 0.5,
		Timeout:     5 * time.Second,
	}, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresKey(t *testing.T) {
	_, err := NewClient(config.OpenAIConfig{Model: "gpt-4o-mini"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClient_Generate(t *testing.T) {
	var got recordedRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1714564800,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello!"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 3, "total_tokens": 15}
		}`)
	})

	reply, err := c.Generate(context.Background(), []snapshot.Message{
		{Role: snapshot.RoleSystem, Content: "be brief"},
		{Role: snapshot.RoleHuman, Content: "hi", Name: "alice"},
		{Role: snapshot.RoleAgent, Content: "calling tool"},
		{Role: snapshot.RoleTool, Content: "42", Fields: map[string]any{FieldToolCallID: "call_1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, snapshot.RoleAgent, reply.Role)
	assert.Equal(t, "Hello!", reply.Content)
	assert.Equal(t, "chatcmpl-1", reply.ID)
	assert.Equal(t, "stop", reply.Fields[FieldFinishReason])
	assert.Equal(t, 15, reply.Fields[FieldUsage].(map[string]any)["total_tokens"])

	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 256, got.MaxTokens)
	assert.InDelta(t, 0.5, got.Temperature, 1e-6)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "alice", got.Messages[1].Name)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "tool", got.Messages[3].Role)
	assert.Equal(t, "call_1", got.Messages[3].ToolCallID)
}

func TestClient_GenerateErrors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"error": {"message": "upstream down", "type": "server_error"}}`)
		})
		_, err := c.Generate(context.Background(), []snapshot.Message{{Role: snapshot.RoleHuman, Content: "hi"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create chat completion")
	})

	t.Run("no choices", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id": "x", "model": "gpt-4o-mini", "choices": []}`)
		})
		_, err := c.Generate(context.Background(), []snapshot.Message{{Role: snapshot.RoleHuman, Content: "hi"}})
		assert.ErrorContains(t, err, "no choices")
	})

	t.Run("unknown role", func(t *testing.T) {
		c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
			t.Error("request should not be sent")
		})
		_, err := c.Generate(context.Background(), []snapshot.Message{{Role: "narrator", Content: "hi"}})
		assert.ErrorIs(t, err, snapshot.ErrUnknownRole)
	})
}
