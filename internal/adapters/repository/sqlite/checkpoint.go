package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Fikei1151/nia/internal/adapters/repository/storeutil"
	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/core/snapshot"
)

const (
	backend = "sqlite"

	// DefaultTableName is the table holding one current record per thread.
	DefaultTableName = "chat_history"

	// timeLayout is fixed width so text timestamps order lexically.
	timeLayout = "2006-01-02T15:04:05.000Z"
	nowExpr    = `strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`
)

// Open opens a SQLite database file. Every transaction takes the write lock
// at BEGIN so concurrent writers of a thread queue instead of interleaving.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return db, nil
}

// CheckpointSaver implements checkpoint.Saver interface for SQLite
type CheckpointSaver struct {
	db        *sql.DB
	tableName string
	logger    *slog.Logger
}

// NewCheckpointSaver creates a new SQLite checkpoint saver
func NewCheckpointSaver(db *sql.DB) *CheckpointSaver {
	return &CheckpointSaver{
		db:        db,
		tableName: DefaultTableName,
		logger:    slog.Default(),
	}
}

// WithTableName allows overriding the default table name with validation.
// Only alphanumeric and underscore are permitted to prevent SQL injection via identifiers.
func (s *CheckpointSaver) WithTableName(name string) *CheckpointSaver {
	if isSafeIdent(name) {
		s.tableName = name
	}
	return s
}

// WithLogger sets the logger used for store diagnostics.
func (s *CheckpointSaver) WithLogger(l *slog.Logger) *CheckpointSaver {
	s.logger = storeutil.Logger(l)
	return s
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

const selectColumns = `id, thread_id, project_id, platform, user_id, checkpoint_blob, metadata_blob, created_at, updated_at`

// GetLatest returns the newest decodable tuple of a thread, or nil.
func (s *CheckpointSaver) GetLatest(ctx context.Context, threadID string) (*checkpoint.Tuple, error) {
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE thread_id = ?
		ORDER BY updated_at DESC, created_at DESC, id DESC
		LIMIT 1
	`, selectColumns, s.tableName)

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, threadID))
	if errors.Is(err, sql.ErrNoRows) {
		return storeutil.DecodeLatest(s.logger, backend, nil), nil
	}
	if err != nil {
		return nil, checkpoint.Persistence(threadID, fmt.Errorf("failed to load checkpoint: %w", err))
	}
	return storeutil.DecodeLatest(s.logger, backend, rec), nil
}

// Put deletes every record of the thread and inserts the new one in a single
// transaction.
func (s *CheckpointSaver) Put(ctx context.Context, cfg checkpoint.SessionConfig, snap *snapshot.Snapshot, md snapshot.Metadata) (*checkpoint.Ack, error) {
	rec, err := checkpoint.NewRecord(uuid.NewString(), cfg, snap, md)
	if err != nil {
		return nil, storeutil.PutFailed(s.logger, backend, cfg.ThreadID, err)
	}

	if err := s.replace(ctx, rec); err != nil {
		return nil, storeutil.PutFailed(s.logger, backend, cfg.ThreadID, checkpoint.Persistence(cfg.ThreadID, err))
	}
	return storeutil.PutSucceeded(s.logger, backend, rec), nil
}

func (s *CheckpointSaver) replace(ctx context.Context, rec *checkpoint.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	del := fmt.Sprintf("DELETE FROM %s WHERE thread_id = ?", s.tableName)
	if _, err := tx.ExecContext(ctx, del, rec.ThreadID); err != nil {
		return fmt.Errorf("failed to delete previous checkpoints: %w", err)
	}

	ins := fmt.Sprintf(`
		INSERT INTO %s (id, thread_id, project_id, platform, user_id, checkpoint_blob, metadata_blob, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, %s, %s)
		RETURNING created_at, updated_at
	`, s.tableName, nowExpr, nowExpr)

	var createdAt, updatedAt string
	err = tx.QueryRowContext(ctx, ins,
		rec.ID, rec.ThreadID, nullable(rec.ProjectID), rec.Platform, nullable(rec.UserID),
		string(rec.SnapshotBlob), nullableBlob(rec.MetadataBlob),
	).Scan(&createdAt, &updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List yields stored tuples newest first, paging with a keyset cursor.
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) iter.Seq2[*checkpoint.Tuple, error] {
	return checkpoint.Lister{Latest: s.GetLatest, Page: s.page}.List(ctx, filter)
}

// PutWrites acknowledges intermediate writes without staging them.
func (s *CheckpointSaver) PutWrites(_ context.Context, cfg checkpoint.SessionConfig, writes []checkpoint.PendingWrite) (*checkpoint.Ack, error) {
	return storeutil.AcceptWrites(s.logger, backend, cfg, writes)
}

func (s *CheckpointSaver) page(ctx context.Context, f checkpoint.Filter, after *checkpoint.Cursor, n int) ([]*checkpoint.Record, error) {
	query, args := s.buildPageQuery(f, after, n)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, checkpoint.Persistence("", fmt.Errorf("failed to list checkpoints: %w", err))
	}
	defer rows.Close()

	var out []*checkpoint.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, checkpoint.Persistence("", fmt.Errorf("failed to scan checkpoint row: %w", err))
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, checkpoint.Persistence("", err)
	}
	return out, nil
}

// buildPageQuery constructs the SQL query for one page of records
func (s *CheckpointSaver) buildPageQuery(f checkpoint.Filter, after *checkpoint.Cursor, n int) (string, []any) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE 1=1", selectColumns, s.tableName)
	args := make([]any, 0, 8)

	if f.Platform != "" {
		b.WriteString(" AND platform = ?")
		args = append(args, f.Platform)
	}
	if f.UserID != "" {
		b.WriteString(" AND user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		b.WriteString(" AND project_id = ?")
		args = append(args, f.ProjectID)
	}
	if after != nil {
		ts := cursorTime(after)
		b.WriteString(" AND (updated_at < ? OR (updated_at = ? AND id < ?))")
		args = append(args, ts, ts, after.ID)
	}

	b.WriteString(" ORDER BY updated_at DESC, id DESC LIMIT ?")
	args = append(args, n)
	return b.String(), args
}

// CreateTables creates the necessary database tables
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	t := s.tableName
	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			project_id TEXT,
			platform TEXT NOT NULL DEFAULT 'web',
			user_id TEXT,
			checkpoint_blob TEXT NOT NULL,
			metadata_blob TEXT,
			created_at TEXT NOT NULL DEFAULT (%s),
			updated_at TEXT NOT NULL DEFAULT (%s)
		)`, t, nowExpr, nowExpr),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ix_%s_thread_id_updated_at ON %s (thread_id, updated_at)`, t, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ix_%s_project_id ON %s (project_id)`, t, t),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS ix_%s_user_id ON %s (user_id)`, t, t),
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *CheckpointSaver) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*checkpoint.Record, error) {
	var (
		rec                  checkpoint.Record
		projectID, userID    sql.NullString
		blob, mdBlob         []byte
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.ThreadID, &projectID, &rec.Platform, &userID, &blob, &mdBlob, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.ProjectID = projectID.String
	rec.UserID = userID.String
	rec.SnapshotBlob = blob
	rec.MetadataBlob = mdBlob

	var err error
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// cursorTime renders the cursor at millisecond precision. A bare time bound
// (no id) is rounded up so rows inside the truncated millisecond stay visible.
func cursorTime(c *checkpoint.Cursor) string {
	ts := c.UpdatedAt.UTC()
	if c.ID == "" {
		if trunc := ts.Truncate(time.Millisecond); !trunc.Equal(ts) {
			ts = trunc.Add(time.Millisecond)
		}
	}
	return ts.Format(timeLayout)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableBlob(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
