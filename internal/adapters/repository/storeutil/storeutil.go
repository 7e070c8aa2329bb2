// Package storeutil holds the behaviour every checkpoint backend shares:
// tolerant reads, non-durable pending writes and failure accounting.
package storeutil

import (
	"log/slog"

	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/infrastructure/metrics"
)

// DecodeLatest decodes the newest record of a thread. A record that no longer
// decodes is logged, counted and reported as "none" so the conversation can
// start fresh; the row itself is left untouched.
func DecodeLatest(logger *slog.Logger, backend string, rec *checkpoint.Record) *checkpoint.Tuple {
	metrics.CheckpointGet(backend)
	if rec == nil {
		metrics.CheckpointMiss(backend)
		return nil
	}

	tuple, err := rec.Decode()
	if err != nil {
		metrics.CheckpointCorrupt(backend)
		logger.Warn("discarding undecodable checkpoint",
			"backend", backend,
			"thread_id", rec.ThreadID,
			"record_id", rec.ID,
			"error", err,
		)
		return nil
	}
	return tuple
}

// AcceptWrites acknowledges intermediate writes without staging them.
func AcceptWrites(logger *slog.Logger, backend string, cfg checkpoint.SessionConfig, writes []checkpoint.PendingWrite) (*checkpoint.Ack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics.AddPendingWrites(len(writes))
	if len(writes) > 0 {
		logger.Warn("pending writes are not durably staged",
			"backend", backend,
			"thread_id", cfg.ThreadID,
			"count", len(writes),
		)
	}
	return &checkpoint.Ack{Config: cfg}, nil
}

// PutFailed counts a failed Put by error kind and returns err unchanged.
func PutFailed(logger *slog.Logger, backend string, threadID string, err error) error {
	kind := checkpoint.KindOf(err)
	if kind == 0 {
		return err
	}
	metrics.CheckpointPutFailure(kind.String())
	logger.Error("checkpoint put failed",
		"backend", backend,
		"thread_id", threadID,
		"kind", kind.String(),
		"error", err,
	)
	return err
}

// PutSucceeded records a successful Put.
func PutSucceeded(logger *slog.Logger, backend string, rec *checkpoint.Record) *checkpoint.Ack {
	metrics.CheckpointPut(backend)
	logger.Debug("checkpoint stored",
		"backend", backend,
		"thread_id", rec.ThreadID,
		"record_id", rec.ID,
	)
	return rec.Ack()
}

// Logger returns l, or the default logger when l is nil.
func Logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
