package dto

import (
	"strings"

	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/core/snapshot"
)

// Defaults applied to chat requests that omit routing attributes.
const (
	DefaultPlatform  = "web"
	DefaultUserID    = "default_user"
	DefaultProjectID = "default_project"
)

// ChatRequest is the body of POST /api/v1/chat/{thread_id}
type ChatRequest struct {
	Message   string `json:"message" validate:"required,max=32000"`
	Platform  string `json:"platform,omitempty" validate:"routing,max=64"`
	UserID    string `json:"user_id,omitempty" validate:"routing"`
	ProjectID string `json:"project_id,omitempty" validate:"routing"`
}

// WithDefaults fills missing routing attributes.
func (r ChatRequest) WithDefaults() ChatRequest {
	if r.Platform == "" {
		r.Platform = DefaultPlatform
	}
	if r.UserID == "" {
		r.UserID = DefaultUserID
	}
	if r.ProjectID == "" {
		r.ProjectID = DefaultProjectID
	}
	return r
}

// Turn builds the turn request for a resolved thread id.
func (r ChatRequest) Turn(threadID string) TurnRequest {
	return TurnRequest{
		ThreadID:  threadID,
		Message:   r.Message,
		Platform:  r.Platform,
		UserID:    r.UserID,
		ProjectID: r.ProjectID,
	}
}

// ChatResponse is returned by the chat endpoint
type ChatResponse struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"thread_id"`
}

// TurnRequest asks the resumer to run one conversational turn
type TurnRequest struct {
	ThreadID  string `json:"thread_id"`
	Message   string `json:"message"`
	Platform  string `json:"platform,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// Validate ensures the request names a thread and carries a message
func (r *TurnRequest) Validate() error {
	if strings.TrimSpace(r.ThreadID) == "" {
		return ErrMissingThreadID
	}
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// SessionConfig converts the request routing into a store session config.
func (r *TurnRequest) SessionConfig() checkpoint.SessionConfig {
	return checkpoint.SessionConfig{
		ThreadID:  r.ThreadID,
		Platform:  r.Platform,
		UserID:    r.UserID,
		ProjectID: r.ProjectID,
	}
}

// TurnResult describes a completed turn
type TurnResult struct {
	ThreadID string             `json:"thread_id"`
	RecordID string             `json:"record_id"`
	Reply    snapshot.Message   `json:"reply"`
	Step     int                `json:"step"`
	Fresh    bool               `json:"fresh"`
	Snapshot *snapshot.Snapshot `json:"-"`
}
