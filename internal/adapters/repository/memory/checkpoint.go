// Package memory provides an in-process checkpoint store
package memory

import (
	"cmp"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Fikei1151/nia/internal/adapters/repository/storeutil"
	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/core/snapshot"
	"github.com/Fikei1151/nia/internal/infrastructure/metrics"
	"github.com/Fikei1151/nia/pkg/serialization"
)

const backend = "memory"

// CheckpointSaver implements checkpoint.Saver with one serialized record per
// thread. Records are stored as encoded copies so callers never share memory
// with the store.
// PRINCIPLES:
// - KISS: Simple map guarded by a single RWMutex
// - DIP: Implements checkpoint.Saver interface
type CheckpointSaver struct {
	mu      sync.RWMutex
	entries map[string]*entry
	size    int64

	serializer *serialization.Serializer
	logger     *slog.Logger
	now        func() time.Time

	// beforeCommit runs under the write lock; a non-nil error aborts the Put.
	beforeCommit func(*checkpoint.Record) error
}

// entry keeps the routing and ordering columns next to the encoded record so
// listing does not have to decode every thread.
type entry struct {
	id        string
	threadID  string
	platform  string
	userID    string
	projectID string
	updatedAt time.Time
	data      []byte
}

// Option configures a CheckpointSaver
type Option func(*CheckpointSaver)

// WithSerializer overrides the record serializer (msgpack+zstd by default).
func WithSerializer(s *serialization.Serializer) Option {
	return func(c *CheckpointSaver) {
		if s != nil {
			c.serializer = s
		}
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *CheckpointSaver) { c.logger = storeutil.Logger(l) }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *CheckpointSaver) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCheckpointSaver creates a new in-memory checkpoint saver
func NewCheckpointSaver(opts ...Option) *CheckpointSaver {
	s := &CheckpointSaver{
		entries:    make(map[string]*entry),
		serializer: serialization.DefaultSerializer(),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetLatest returns the current tuple of a thread or nil.
func (s *CheckpointSaver) GetLatest(ctx context.Context, threadID string) (*checkpoint.Tuple, error) {
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, checkpoint.Persistence(threadID, err)
	}

	s.mu.RLock()
	e := s.entries[threadID]
	s.mu.RUnlock()

	if e == nil {
		return storeutil.DecodeLatest(s.logger, backend, nil), nil
	}
	rec, err := s.load(e)
	if err != nil {
		// An unreadable copy is treated like any other corrupt record.
		rec = &checkpoint.Record{ID: e.id, ThreadID: e.threadID}
	}
	return storeutil.DecodeLatest(s.logger, backend, rec), nil
}

// Put replaces the thread's record. Encoding happens before the lock is taken;
// the swap itself is a single map assignment.
func (s *CheckpointSaver) Put(ctx context.Context, cfg checkpoint.SessionConfig, snap *snapshot.Snapshot, md snapshot.Metadata) (*checkpoint.Ack, error) {
	rec, err := checkpoint.NewRecord(uuid.NewString(), cfg, snap, md)
	if err != nil {
		return nil, storeutil.PutFailed(s.logger, backend, cfg.ThreadID, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, storeutil.PutFailed(s.logger, backend, cfg.ThreadID, checkpoint.Persistence(cfg.ThreadID, err))
	}

	now := s.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now

	data, err := s.serializer.Serialize(rec)
	if err != nil {
		return nil, storeutil.PutFailed(s.logger, backend, cfg.ThreadID, checkpoint.Persistence(cfg.ThreadID, err))
	}
	next := &entry{
		id:        rec.ID,
		threadID:  rec.ThreadID,
		platform:  rec.Platform,
		userID:    rec.UserID,
		projectID: rec.ProjectID,
		updatedAt: now,
		data:      data,
	}

	s.mu.Lock()
	if s.beforeCommit != nil {
		if err := s.beforeCommit(rec); err != nil {
			s.mu.Unlock()
			return nil, storeutil.PutFailed(s.logger, backend, cfg.ThreadID, checkpoint.Persistence(cfg.ThreadID, err))
		}
	}
	if prev := s.entries[rec.ThreadID]; prev != nil {
		s.size -= int64(len(prev.data))
	}
	s.entries[rec.ThreadID] = next
	s.size += int64(len(data))
	size, threads := s.size, len(s.entries)
	s.mu.Unlock()

	metrics.MemoryStoreBytes(backend, size)
	metrics.MemoryStoreThreads(backend, threads)
	return storeutil.PutSucceeded(s.logger, backend, rec), nil
}

// List yields stored tuples newest first.
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) iter.Seq2[*checkpoint.Tuple, error] {
	return checkpoint.Lister{Latest: s.GetLatest, Page: s.page}.List(ctx, filter)
}

// PutWrites acknowledges intermediate writes without staging them.
func (s *CheckpointSaver) PutWrites(_ context.Context, cfg checkpoint.SessionConfig, writes []checkpoint.PendingWrite) (*checkpoint.Ack, error) {
	return storeutil.AcceptWrites(s.logger, backend, cfg, writes)
}

// Stats describes the store contents
type Stats struct {
	Threads    int    `json:"threads"`
	Bytes      int64  `json:"bytes"`
	Serializer string `json:"serializer"`
}

// Stats returns the number of threads and the encoded size of their records.
func (s *CheckpointSaver) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{Threads: len(s.entries), Bytes: s.size, Serializer: s.serializer.Name()}
}

// Close is a no-op kept for parity with the SQL backends.
func (s *CheckpointSaver) Close() error { return nil }

func (s *CheckpointSaver) page(ctx context.Context, f checkpoint.Filter, after *checkpoint.Cursor, n int) ([]*checkpoint.Record, error) {
	s.mu.RLock()
	var matched []*entry
	for _, e := range s.entries {
		if f.Platform != "" && e.platform != f.Platform {
			continue
		}
		if f.UserID != "" && e.userID != f.UserID {
			continue
		}
		if f.ProjectID != "" && e.projectID != f.ProjectID {
			continue
		}
		if !after.Includes(e.updatedAt, e.id) {
			continue
		}
		matched = append(matched, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, func(a, b *entry) int {
		if c := b.updatedAt.Compare(a.updatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.id, a.id)
	})
	if len(matched) > n {
		matched = matched[:n]
	}

	out := make([]*checkpoint.Record, 0, len(matched))
	for _, e := range matched {
		if err := ctx.Err(); err != nil {
			return nil, checkpoint.Persistence("", err)
		}
		rec, err := s.load(e)
		if err != nil {
			// Keep the row so the caller sees it as corrupt.
			rec = &checkpoint.Record{ID: e.id, ThreadID: e.threadID, UpdatedAt: e.updatedAt}
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *CheckpointSaver) load(e *entry) (*checkpoint.Record, error) {
	var rec checkpoint.Record
	if err := s.serializer.Deserialize(e.data, &rec); err != nil {
		s.logger.Warn("stored record copy is unreadable", "backend", backend, "thread_id", e.threadID, "error", err)
		return nil, fmt.Errorf("load %s: %w", e.id, err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
