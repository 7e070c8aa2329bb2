package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/core/snapshot"
)

func newTestSaver(t *testing.T) *CheckpointSaver {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nia.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	saver := NewCheckpointSaver(db)
	require.NoError(t, saver.CreateTables(context.Background()))
	return saver
}

func conversation(texts ...string) *snapshot.Snapshot {
	s := snapshot.New()
	for i, text := range texts {
		role := snapshot.RoleHuman
		if i%2 == 1 {
			role = snapshot.RoleAgent
		}
		s.Append(snapshot.Message{Role: role, Content: text})
	}
	return s
}

func countRows(t *testing.T, s *CheckpointSaver, threadID string) int {
	t.Helper()
	var n int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chat_history WHERE thread_id = ?", threadID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestSQLiteCheckpointSaver(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)

	tuple, err := saver.GetLatest(ctx, "thread-1")
	require.NoError(t, err)
	assert.Nil(t, tuple)

	snap := conversation("What's the capital of Thailand?", "Bangkok.")
	snap.Messages[1].Fields = map[string]any{"usage": map[string]any{"total_tokens": 21.0}}
	md := snapshot.Metadata{"source": "loop", "step": 1.0, "writes": map[string]any{"agent": []any{"Bangkok."}}}

	ack, err := saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "thread-1", UserID: "u1", ProjectID: "p1"}, snap, md)
	require.NoError(t, err)
	assert.NotEmpty(t, ack.RecordID)
	assert.False(t, ack.UpdatedAt.IsZero())

	tuple, err = saver.GetLatest(ctx, "thread-1")
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, snap, tuple.Snapshot)
	assert.Equal(t, md, tuple.Metadata)
	assert.Equal(t, ack.RecordID, tuple.ID)
	assert.Equal(t, checkpoint.SessionConfig{ThreadID: "thread-1", Platform: "web", UserID: "u1", ProjectID: "p1"}, tuple.Config)
	assert.True(t, ack.UpdatedAt.Equal(tuple.UpdatedAt))

	_, err = saver.GetLatest(ctx, "")
	assert.ErrorIs(t, err, checkpoint.ErrInvalidThreadID)
}

func TestSQLiteCheckpointSaver_Replace(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)
	cfg := checkpoint.SessionConfig{ThreadID: "t1"}

	for i := 1; i <= 3; i++ {
		texts := make([]string, i)
		for j := range texts {
			texts[j] = fmt.Sprintf("m%d", j)
		}
		_, err := saver.Put(ctx, cfg, conversation(texts...), nil)
		require.NoError(t, err)
		assert.Equal(t, 1, countRows(t, saver, "t1"))
	}

	tuple, err := saver.GetLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, tuple.Snapshot.Messages, 3)
	assert.Nil(t, tuple.Metadata)
}

func TestSQLiteCheckpointSaver_ConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)
	cfg := checkpoint.SessionConfig{ThreadID: "shared"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := saver.Put(ctx, cfg, conversation(fmt.Sprintf("writer %d", i)), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, countRows(t, saver, "shared"))
}

func TestSQLiteCheckpointSaver_FailedWriteIsNoop(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)

	_, err := saver.db.Exec(`
		CREATE TRIGGER fail_insert BEFORE INSERT ON chat_history
		WHEN NEW.platform = 'fail'
		BEGIN SELECT RAISE(ABORT, 'injected failure'); END`)
	require.NoError(t, err)

	_, err = saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "t1"}, conversation("kept"), nil)
	require.NoError(t, err)

	t.Run("insert aborted after delete", func(t *testing.T) {
		_, err := saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "t1", Platform: "fail"}, conversation("lost"), nil)
		require.Error(t, err)
		assert.ErrorIs(t, err, checkpoint.ErrPersistenceFailed)
		assert.Contains(t, err.Error(), "injected failure")
	})

	t.Run("serialization failure never touches storage", func(t *testing.T) {
		_, err := saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "t1"}, conversation("lost"), snapshot.Metadata{"ch": make(chan int)})
		assert.ErrorIs(t, err, checkpoint.ErrSerializationFailed)
	})

	t.Run("invalid utf8 text never touches storage", func(t *testing.T) {
		_, err := saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "t1"}, conversation("lost\xff"), nil)
		assert.ErrorIs(t, err, checkpoint.ErrSerializationFailed)
		assert.ErrorIs(t, err, snapshot.ErrUnsupportedValue)
	})

	t.Run("blank thread id", func(t *testing.T) {
		_, err := saver.GetLatest(ctx, "   ")
		assert.ErrorIs(t, err, checkpoint.ErrInvalidThreadID)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := saver.Put(cctx, checkpoint.SessionConfig{ThreadID: "t1"}, conversation("lost"), nil)
		assert.ErrorIs(t, err, checkpoint.ErrPersistenceFailed)
	})

	assert.Equal(t, 1, countRows(t, saver, "t1"))
	tuple, err := saver.GetLatest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, "kept", tuple.Snapshot.Messages[0].Content)
	assert.Equal(t, "web", tuple.Config.Platform)
}

func TestSQLiteCheckpointSaver_TextSurvives(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)

	snap := conversation("a\x00b", "ภาษาไทย \U0001F600")
	_, err := saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "t1"}, snap, nil)
	require.NoError(t, err)

	tuple, err := saver.GetLatest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, snap.Messages, tuple.Snapshot.Messages)
}

func TestSQLiteCheckpointSaver_Routing(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)

	md := snapshot.Metadata{"platform": "line", "user_id": "meta-user", "project_id": "meta-project"}
	_, err := saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "t1", UserID: "cfg-user"}, conversation("x"), md)
	require.NoError(t, err)

	var platform, userID, projectID string
	err = saver.db.QueryRow("SELECT platform, user_id, project_id FROM chat_history WHERE thread_id = 't1'").
		Scan(&platform, &userID, &projectID)
	require.NoError(t, err)
	assert.Equal(t, "line", platform)
	assert.Equal(t, "cfg-user", userID)
	assert.Equal(t, "meta-project", projectID)

	// Routing is never inherited from an earlier record.
	_, err = saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "t1"}, conversation("y"), nil)
	require.NoError(t, err)
	tuple, err := saver.GetLatest(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, checkpoint.SessionConfig{ThreadID: "t1", Platform: "web"}, tuple.Config)
}

func TestSQLiteCheckpointSaver_CorruptRow(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)

	_, err := saver.db.Exec(`INSERT INTO chat_history (id, thread_id, platform, checkpoint_blob) VALUES ('bad-row', 'broken', 'web', '{not json')`)
	require.NoError(t, err)

	tuple, err := saver.GetLatest(ctx, "broken")
	require.NoError(t, err)
	assert.Nil(t, tuple)
	assert.Equal(t, 1, countRows(t, saver, "broken"))

	var errs []error
	for _, err := range saver.List(ctx, checkpoint.Filter{}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	var corrupt *checkpoint.CorruptRecordError
	require.True(t, errors.As(errs[0], &corrupt))
	assert.Equal(t, "bad-row", corrupt.RecordID)

	// A later Put replaces the corrupt row.
	_, err = saver.Put(ctx, checkpoint.SessionConfig{ThreadID: "broken"}, conversation("fresh start"), nil)
	require.NoError(t, err)
	tuple, err = saver.GetLatest(ctx, "broken")
	require.NoError(t, err)
	require.NotNil(t, tuple)
	assert.Equal(t, 1, countRows(t, saver, "broken"))
}

func TestSQLiteCheckpointSaver_List(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)

	for i := 0; i < 5; i++ {
		cfg := checkpoint.SessionConfig{ThreadID: fmt.Sprintf("t%d", i), ProjectID: "p1"}
		if i >= 3 {
			cfg.ProjectID = "p2"
		}
		_, err := saver.Put(ctx, cfg, conversation(fmt.Sprintf("msg %d", i)), nil)
		require.NoError(t, err)
		time.Sleep(3 * time.Millisecond)
	}

	collect := func(f checkpoint.Filter) []string {
		var ids []string
		for tp, err := range saver.List(ctx, f) {
			require.NoError(t, err)
			ids = append(ids, tp.Config.ThreadID)
		}
		return ids
	}

	assert.Equal(t, []string{"t4", "t3", "t2", "t1", "t0"}, collect(checkpoint.Filter{PageSize: 2}))
	assert.Equal(t, []string{"t2", "t1", "t0"}, collect(checkpoint.Filter{ProjectID: "p1"}))
	assert.Equal(t, []string{"t4"}, collect(checkpoint.Filter{Limit: 1}))
	assert.Equal(t, []string{"t3"}, collect(checkpoint.Filter{ThreadID: "t3"}))

	t3, err := saver.GetLatest(ctx, "t3")
	require.NoError(t, err)
	before := t3.UpdatedAt
	assert.Equal(t, []string{"t2", "t1", "t0"}, collect(checkpoint.Filter{Before: &before}))

	var errs []error
	for _, err := range saver.List(ctx, checkpoint.Filter{Limit: -1}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], checkpoint.ErrInvalidLimit)
}

func TestSQLiteCheckpointSaver_PutWrites(t *testing.T) {
	saver := newTestSaver(t)
	cfg := checkpoint.SessionConfig{ThreadID: "t1"}

	ack, err := saver.PutWrites(context.Background(), cfg, []checkpoint.PendingWrite{{TaskID: "agent", Channel: "messages", Value: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, cfg, ack.Config)
	assert.Equal(t, 0, countRows(t, saver, "t1"))
}

func TestSQLiteCheckpointSaver_TableName(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "custom.db"))
	require.NoError(t, err)
	defer db.Close()

	saver := NewCheckpointSaver(db).WithTableName("nia_threads").WithTableName("bad; DROP TABLE x")
	assert.Equal(t, "nia_threads", saver.tableName)
	require.NoError(t, saver.CreateTables(context.Background()))

	_, err = saver.Put(context.Background(), checkpoint.SessionConfig{ThreadID: "t"}, conversation("x"), nil)
	require.NoError(t, err)
}

func TestCursorTime(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 123_000_000, time.UTC)
	assert.Equal(t, "2025-01-01T00:00:00.123Z", cursorTime(&checkpoint.Cursor{UpdatedAt: base, ID: "x"}))
	assert.Equal(t, "2025-01-01T00:00:00.123Z", cursorTime(&checkpoint.Cursor{UpdatedAt: base}))
	assert.Equal(t, "2025-01-01T00:00:00.124Z", cursorTime(&checkpoint.Cursor{UpdatedAt: base.Add(500 * time.Microsecond)}))
}
