// Package openai adapts the OpenAI chat completions API to the chat model
// used by the turn resumer.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/Fikei1151/nia/internal/core/snapshot"
	"github.com/Fikei1151/nia/internal/infrastructure/config"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("openai: API key is not set")

// Message field keys understood by the client.
const (
	FieldToolCallID   = "tool_call_id"
	FieldModel        = "model"
	FieldFinishReason = "finish_reason"
	FieldUsage        = "usage"
)

// Client wraps the OpenAI client with the configured model parameters
type Client struct {
	client         *openai.Client
	model          string
	maxTokens      int
	temperature    float32
	requestTimeout time.Duration
}

// Option customizes the client
type Option func(*openai.ClientConfig)

// WithHTTPClient replaces the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *openai.ClientConfig) { c.HTTPClient = hc }
}

// NewClient creates a new OpenAI client wrapper
func NewClient(cfg config.OpenAIConfig, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	for _, opt := range opts {
		opt(&oc)
	}

	return &Client{
		client:         openai.NewClientWithConfig(oc),
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		temperature:    float32(cfg.Temperature),
		requestTimeout: cfg.Timeout,
	}, nil
}

// Generate sends the transcript as a chat completion request and returns
// the assistant reply as an agent message.
func (c *Client) Generate(ctx context.Context, msgs []snapshot.Message) (snapshot.Message, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		cm, err := toChatMessage(m)
		if err != nil {
			return snapshot.Message{}, err
		}
		messages = append(messages, cm)
	}

	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return snapshot.Message{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return snapshot.Message{}, fmt.Errorf("no choices returned from API")
	}

	choice := resp.Choices[0]
	return snapshot.Message{
		Role:    snapshot.RoleAgent,
		Content: choice.Message.Content,
		ID:      resp.ID,
		Fields: map[string]any{
			FieldModel:        resp.Model,
			FieldFinishReason: string(choice.FinishReason),
			FieldUsage: map[string]any{
				"prompt_tokens":     resp.Usage.PromptTokens,
				"completion_tokens": resp.Usage.CompletionTokens,
				"total_tokens":      resp.Usage.TotalTokens,
			},
		},
	}, nil
}

func toChatMessage(m snapshot.Message) (openai.ChatCompletionMessage, error) {
	cm := openai.ChatCompletionMessage{Content: m.Content, Name: m.Name}
	switch m.Role {
	case snapshot.RoleHuman:
		cm.Role = openai.ChatMessageRoleUser
	case snapshot.RoleAgent:
		cm.Role = openai.ChatMessageRoleAssistant
	case snapshot.RoleSystem:
		cm.Role = openai.ChatMessageRoleSystem
	case snapshot.RoleTool:
		cm.Role = openai.ChatMessageRoleTool
		cm.ToolCallID, _ = m.Fields[FieldToolCallID].(string)
	default:
		return cm, fmt.Errorf("openai: %w: %q", snapshot.ErrUnknownRole, m.Role)
	}
	return cm, nil
}
