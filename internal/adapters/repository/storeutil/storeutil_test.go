package storeutil

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/core/snapshot"
	"github.com/Fikei1151/nia/internal/infrastructure/metrics"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestDecodeLatest(t *testing.T) {
	logger, buf := bufferLogger()

	t.Run("miss", func(t *testing.T) {
		before := metrics.Count("nia_checkpoint_misses_total", "storeutil-test")
		assert.Nil(t, DecodeLatest(logger, "storeutil-test", nil))
		assert.Equal(t, before+1, metrics.Count("nia_checkpoint_misses_total", "storeutil-test"))
	})

	t.Run("decodes", func(t *testing.T) {
		snap := &snapshot.Snapshot{Messages: []snapshot.Message{{Role: snapshot.RoleHuman, Content: "hi"}}}
		rec, err := checkpoint.NewRecord("row-1", checkpoint.SessionConfig{ThreadID: "t1"}, snap, nil)
		require.NoError(t, err)

		tuple := DecodeLatest(logger, "storeutil-test", rec)
		require.NotNil(t, tuple)
		assert.Equal(t, snap, tuple.Snapshot)
	})

	t.Run("corrupt is none", func(t *testing.T) {
		before := metrics.Count("nia_checkpoint_corrupt_total", "storeutil-test")
		rec := &checkpoint.Record{ID: "row-2", ThreadID: "t2", SnapshotBlob: []byte("garbage")}

		assert.Nil(t, DecodeLatest(logger, "storeutil-test", rec))
		assert.Equal(t, before+1, metrics.Count("nia_checkpoint_corrupt_total", "storeutil-test"))
		assert.Contains(t, buf.String(), "discarding undecodable checkpoint")
		assert.Contains(t, buf.String(), "record_id=row-2")
	})
}

func TestAcceptWrites(t *testing.T) {
	logger, buf := bufferLogger()
	cfg := checkpoint.SessionConfig{ThreadID: "t1", Platform: "web"}

	ack, err := AcceptWrites(logger, "storeutil-test", cfg, []checkpoint.PendingWrite{{TaskID: "a", Channel: "messages", Value: "x"}})
	require.NoError(t, err)
	assert.Equal(t, cfg, ack.Config)
	assert.Empty(t, ack.RecordID)
	assert.Contains(t, buf.String(), "not durably staged")

	_, err = AcceptWrites(logger, "storeutil-test", checkpoint.SessionConfig{}, nil)
	assert.ErrorIs(t, err, checkpoint.ErrInvalidThreadID)
}

func TestPutFailed(t *testing.T) {
	logger, _ := bufferLogger()

	before := metrics.Count("nia_checkpoint_put_failures_total", "serialization_failed")
	err := checkpoint.Serialization("t1", errors.New("bad"))
	assert.Same(t, err, PutFailed(logger, "storeutil-test", "t1", err))
	assert.Equal(t, before+1, metrics.Count("nia_checkpoint_put_failures_total", "serialization_failed"))

	plain := checkpoint.ErrInvalidThreadID
	assert.Equal(t, plain, PutFailed(logger, "storeutil-test", "", plain))
}
