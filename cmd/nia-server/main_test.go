package main

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

	"github.com/Fikei1151/nia/internal/adapters/llm/openai"
	"github.com/Fikei1151/nia/internal/adapters/repository"
	"github.com/Fikei1151/nia/internal/adapters/repository/memory"
	"github.com/Fikei1151/nia/internal/app/dto"
	"github.com/Fikei1151/nia/internal/app/services"
	"github.com/Fikei1151/nia/internal/app/usecases"
	"github.com/Fikei1151/nia/internal/infrastructure/config"
)

func testConfig() *config.Config {
	return &config.Config{
		OpenAI: config.OpenAIConfig{Model: "gpt-4o-mini", MaxTokens: 16, Timeout: time.Second},
		App:    config.AppConfig{Addr: ":0", RequestTimeout: 5 * time.Second},
	}
}

func TestResumerFactory_MissingKey(t *testing.T) {
	factory := resumerFactory(testConfig(), memory.NewCheckpointSaver(), nil)

	_, err := factory()
	var initErr *usecases.InitError
	require.ErrorAs(t, err, &initErr)
	assert.ErrorIs(t, err, openai.ErrMissingAPIKey)

	_, again := factory()
	assert.Same(t, err, again)
}

func memoryStore(t *testing.T) *repository.Store {
	t.Helper()
	store, err := repository.Open(context.Background(), config.DatabaseConfig{Driver: config.DriverMemory}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewServer_UnconfiguredModel(t *testing.T) {
	srv := newServer(testConfig(), memoryStore(t), nil)
	assert.Equal(t, ":0", srv.Addr)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/new", strings.NewReader(`{"message":"hi"}`))
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp dto.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, services.ReplyUnavailable, resp.Reply)
	assert.NotEmpty(t, resp.ThreadID)
}

func TestNewServer_HealthReportsStore(t *testing.T) {
	srv := newServer(testConfig(), memoryStore(t), nil)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
		Store  struct {
			Backend string `json:"backend"`
			Stats   struct {
				Threads    int    `json:"threads"`
				Serializer string `json:"serializer"`
			} `json:"stats"`
		} `json:"store"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "memory", body.Store.Backend)
	assert.Equal(t, "msgpack+zstd", body.Store.Stats.Serializer)
}
