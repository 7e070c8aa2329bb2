// Package checkpoint provides checkpoint persistence interfaces
package checkpoint

import (
	"context"
	"iter"
	"time"

	"github.com/Fikei1151/nia/internal/core/snapshot"
)

// DefaultPageSize is the number of records fetched per page when listing.
const DefaultPageSize = 100

// Saver persists one current snapshot per thread (DIP - Dependency Inversion).
type Saver interface {
	// GetLatest returns the newest decodable tuple for the thread, or nil when
	// the thread has none. A record that fails to decode is reported as none.
	GetLatest(ctx context.Context, threadID string) (*Tuple, error)

	// Put atomically replaces every record of cfg.ThreadID with one new record.
	Put(ctx context.Context, cfg SessionConfig, snap *snapshot.Snapshot, md snapshot.Metadata) (*Ack, error)

	// List lazily yields stored tuples matching the filter.
	List(ctx context.Context, filter Filter) iter.Seq2[*Tuple, error]

	// PutWrites accepts intermediate writes. They are not durably staged.
	PutWrites(ctx context.Context, cfg SessionConfig, writes []PendingWrite) (*Ack, error)
}

// Filter narrows List. With ThreadID set at most one tuple is returned.
type Filter struct {
	ThreadID  string     `json:"thread_id,omitempty"`
	Platform  string     `json:"platform,omitempty"`
	UserID    string     `json:"user_id,omitempty"`
	ProjectID string     `json:"project_id,omitempty"`
	Before    *time.Time `json:"before,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	PageSize  int        `json:"page_size,omitempty"`
}

// Validate ensures filter parameters are valid
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return ErrInvalidLimit
	}
	if f.PageSize < 0 {
		return ErrInvalidPageSize
	}
	return nil
}

// Matches reports whether a record passes the routing part of the filter.
func (f *Filter) Matches(r *Record) bool {
	if f.ThreadID != "" && r.ThreadID != f.ThreadID {
		return false
	}
	if f.Platform != "" && r.Platform != f.Platform {
		return false
	}
	if f.UserID != "" && r.UserID != f.UserID {
		return false
	}
	if f.ProjectID != "" && r.ProjectID != f.ProjectID {
		return false
	}
	return true
}

func (f *Filter) pageSize() int {
	if f.PageSize > 0 {
		return f.PageSize
	}
	return DefaultPageSize
}
