// Package checkpoint provides the core checkpoint domain entities and interfaces
// following Clean Architecture principles with zero external dependencies.
package checkpoint

import (
	"fmt"
	"time"

	"github.com/Fikei1151/nia/internal/core/snapshot"
)

// Record is the persisted form of a thread's current snapshot. Empty routing
// strings are stored as NULL.
type Record struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"thread_id"`
	ProjectID    string    `json:"project_id,omitempty"`
	Platform     string    `json:"platform"`
	UserID       string    `json:"user_id,omitempty"`
	SnapshotBlob []byte    `json:"checkpoint_blob"`
	MetadataBlob []byte    `json:"metadata_blob,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Tuple is a decoded record: the snapshot plus the routing it was stored with.
type Tuple struct {
	ID        string             `json:"id"`
	Config    SessionConfig      `json:"config"`
	Snapshot  *snapshot.Snapshot `json:"-"`
	Metadata  snapshot.Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Ack acknowledges a write with the routing that was actually stored.
type Ack struct {
	RecordID  string        `json:"record_id,omitempty"`
	Config    SessionConfig `json:"config"`
	UpdatedAt time.Time     `json:"updated_at,omitempty"`
}

// PendingWrite is an intermediate channel write produced during a turn.
type PendingWrite struct {
	TaskID  string `json:"task_id"`
	Channel string `json:"channel"`
	Value   any    `json:"value,omitempty"`
}

// NewRecord validates cfg, resolves routing and encodes the snapshot and
// metadata. Encoding failures are returned as SerializationFailed store errors
// so callers can fail a write before touching storage. Timestamps are left
// for the backend to assign.
func NewRecord(id string, cfg SessionConfig, snap *snapshot.Snapshot, md snapshot.Metadata) (*Record, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, Serialization(cfg.ThreadID, ErrNilSnapshot)
	}

	blob, err := snapshot.Marshal(snap)
	if err != nil {
		return nil, Serialization(cfg.ThreadID, err)
	}
	mdBlob, err := snapshot.MarshalMetadata(md)
	if err != nil {
		return nil, Serialization(cfg.ThreadID, err)
	}

	routing := ResolveRouting(cfg, md)
	return &Record{
		ID:           id,
		ThreadID:     routing.ThreadID,
		ProjectID:    routing.ProjectID,
		Platform:     routing.Platform,
		UserID:       routing.UserID,
		SnapshotBlob: blob,
		MetadataBlob: mdBlob,
	}, nil
}

// Config returns the routing stored on the record.
func (r *Record) Config() SessionConfig {
	return SessionConfig{
		ThreadID:  r.ThreadID,
		Platform:  r.Platform,
		UserID:    r.UserID,
		ProjectID: r.ProjectID,
	}
}

// Ack builds the write acknowledgement for a stored record.
func (r *Record) Ack() *Ack {
	return &Ack{RecordID: r.ID, Config: r.Config(), UpdatedAt: r.UpdatedAt}
}

// Decode turns the stored blobs back into a Tuple. Failures wrap a
// *snapshot.DecodingError inside a *CorruptRecordError.
func (r *Record) Decode() (*Tuple, error) {
	snap, err := snapshot.Unmarshal(r.SnapshotBlob)
	if err != nil {
		return nil, &CorruptRecordError{RecordID: r.ID, ThreadID: r.ThreadID, Err: err}
	}
	md, err := snapshot.UnmarshalMetadata(r.MetadataBlob)
	if err != nil {
		return nil, &CorruptRecordError{RecordID: r.ID, ThreadID: r.ThreadID, Err: fmt.Errorf("metadata: %w", err)}
	}
	return &Tuple{
		ID:        r.ID,
		Config:    r.Config(),
		Snapshot:  snap,
		Metadata:  md,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}
