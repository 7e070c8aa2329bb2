package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Fikei1151/nia/internal/adapters/repository/storeutil"
	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/core/snapshot"
)

const (
	backend = "postgres"

	// DefaultTableName is the table holding one current record per thread.
	DefaultTableName = "chat_history"
)

// CheckpointSaver implements checkpoint.Saver interface for PostgreSQL
type CheckpointSaver struct {
	pool      *pgxpool.Pool
	tableName string
	logger    *slog.Logger
}

// NewCheckpointSaver creates a new PostgreSQL checkpoint saver
func NewCheckpointSaver(pool *pgxpool.Pool) *CheckpointSaver {
	return &CheckpointSaver{
		pool:      pool,
		tableName: DefaultTableName,
		logger:    slog.Default(),
	}
}

// WithTableName overrides the table name. Unsafe identifiers are ignored.
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
	if s == "" || len(s) > 63 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9' && i > 0) || c == '_' {
			continue
		}
		return false
	}
	return true
}

const selectColumns = `id::text, thread_id, project_id, platform, user_id, checkpoint_blob, metadata_blob, created_at, updated_at`

// GetLatest returns the newest decodable tuple of a thread, or nil.
func (s *CheckpointSaver) GetLatest(ctx context.Context, threadID string) (*checkpoint.Tuple, error) {
	if err := checkpoint.ValidateThreadID(threadID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE thread_id = $1
		ORDER BY updated_at DESC, created_at DESC, id DESC
		LIMIT 1
	`, selectColumns, s.tableName)

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, threadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return storeutil.DecodeLatest(s.logger, backend, nil), nil
	}
	if err != nil {
		return nil, checkpoint.Persistence(threadID, fmt.Errorf("failed to load checkpoint: %w", err))
	}
	return storeutil.DecodeLatest(s.logger, backend, rec), nil
}

// Put replaces every record of the thread with one new record. A
// transaction-scoped advisory lock on the thread id serializes concurrent
// writers so two puts can never both insert.
func (s *CheckpointSaver) Put(ctx context.Context, cfg checkpoint.SessionConfig, snap *snapshot.Snapshot, md snapshot.Metadata) (*checkpoint.Ack, error) {
	rec, err := checkpoint.NewRecord(uuid.NewString(), cfg, snap, md)
	if err != nil {
		return nil, storeutil.PutFailed(s.logger, backend, cfg.ThreadID, err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.ThreadID); err != nil {
			return fmt.Errorf("failed to lock thread: %w", err)
		}

		del := fmt.Sprintf(`DELETE FROM %s WHERE thread_id = $1`, s.tableName)
		if _, err := tx.Exec(ctx, del, rec.ThreadID); err != nil {
			return fmt.Errorf("failed to delete previous checkpoints: %w", err)
		}

		ins := fmt.Sprintf(`
			INSERT INTO %s (id, thread_id, project_id, platform, user_id, checkpoint_blob, metadata_blob)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at
		`, s.tableName)
		err := tx.QueryRow(ctx, ins,
			rec.ID, rec.ThreadID, nullable(rec.ProjectID), rec.Platform, nullable(rec.UserID),
			rec.SnapshotBlob, rec.MetadataBlob,
		).Scan(&rec.CreatedAt, &rec.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, storeutil.PutFailed(s.logger, backend, cfg.ThreadID, checkpoint.Persistence(cfg.ThreadID, err))
	}

	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return storeutil.PutSucceeded(s.logger, backend, rec), nil
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

	rows, err := s.pool.Query(ctx, query, args...)
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
	args := make([]any, 0, 6)
	argCount := 0

	if f.Platform != "" {
		argCount++
		fmt.Fprintf(&b, " AND platform = $%d", argCount)
		args = append(args, f.Platform)
	}
	if f.UserID != "" {
		argCount++
		fmt.Fprintf(&b, " AND user_id = $%d", argCount)
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		argCount++
		fmt.Fprintf(&b, " AND project_id = $%d", argCount)
		args = append(args, f.ProjectID)
	}
	if after != nil {
		fmt.Fprintf(&b, " AND (updated_at < $%d OR (updated_at = $%d AND id::text < $%d))", argCount+1, argCount+1, argCount+2)
		argCount += 2
		args = append(args, after.UpdatedAt, after.ID)
	}

	argCount++
	fmt.Fprintf(&b, " ORDER BY updated_at DESC, id DESC LIMIT $%d", argCount)
	args = append(args, n)
	return b.String(), args
}

// CreateTables creates the necessary database tables
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	t := s.tableName
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY,
			thread_id TEXT NOT NULL,
			project_id TEXT,
			platform TEXT NOT NULL DEFAULT 'web',
			user_id TEXT,
			checkpoint_blob JSON NOT NULL,
			metadata_blob JSON,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS ix_%s_thread_id_updated_at ON %s (thread_id, updated_at DESC);
		CREATE INDEX IF NOT EXISTS ix_%s_project_id ON %s (project_id);
		CREATE INDEX IF NOT EXISTS ix_%s_user_id ON %s (user_id);
	`, t, t, t, t, t, t, t)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close closes the database connection pool
func (s *CheckpointSaver) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func scanRecord(row pgx.Row) (*checkpoint.Record, error) {
	var (
		rec               checkpoint.Record
		projectID, userID *string
	)
	err := row.Scan(&rec.ID, &rec.ThreadID, &projectID, &rec.Platform, &userID,
		&rec.SnapshotBlob, &rec.MetadataBlob, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if projectID != nil {
		rec.ProjectID = *projectID
	}
	if userID != nil {
		rec.UserID = *userID
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
