package checkpoint

import (
	"strings"

	"github.com/Fikei1151/nia/internal/core/snapshot"
)

// DefaultPlatform is stamped on records when neither the session config nor
// the metadata names a platform.
const DefaultPlatform = "web"

// Metadata keys consulted when the session config omits a routing attribute.
const (
	MetadataPlatform  = "platform"
	MetadataUserID    = "user_id"
	MetadataProjectID = "project_id"
)

// SessionConfig scopes a store call to a thread and carries the routing
// attributes denormalized onto the persisted record.
type SessionConfig struct {
	ThreadID  string `json:"thread_id"`
	Platform  string `json:"platform,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// Validate ensures the config names a thread.
func (c SessionConfig) Validate() error {
	return ValidateThreadID(c.ThreadID)
}

// ValidateThreadID rejects empty and whitespace-only thread ids.
func ValidateThreadID(threadID string) error {
	if strings.TrimSpace(threadID) == "" {
		return ErrInvalidThreadID
	}
	return nil
}

// ResolveRouting applies the routing precedence: a non-empty config value
// wins, then a string value under the same key in metadata, then the default
// ("web" for platform, empty for the others). It never looks at earlier records.
func ResolveRouting(cfg SessionConfig, md snapshot.Metadata) SessionConfig {
	return SessionConfig{
		ThreadID:  cfg.ThreadID,
		Platform:  firstNonEmpty(cfg.Platform, metadataString(md, MetadataPlatform), DefaultPlatform),
		UserID:    firstNonEmpty(cfg.UserID, metadataString(md, MetadataUserID)),
		ProjectID: firstNonEmpty(cfg.ProjectID, metadataString(md, MetadataProjectID)),
	}
}

func metadataString(md snapshot.Metadata, key string) string {
	if md == nil {
		return ""
	}
	s, _ := md[key].(string)
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
