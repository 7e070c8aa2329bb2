// Package repository selects and opens the configured checkpoint backend.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Fikei1151/nia/internal/adapters/repository/memory"
	"github.com/Fikei1151/nia/internal/adapters/repository/postgres"
	"github.com/Fikei1151/nia/internal/adapters/repository/sqlite"
	"github.com/Fikei1151/nia/internal/core/checkpoint"
	"github.com/Fikei1151/nia/internal/infrastructure/config"
	"github.com/Fikei1151/nia/pkg/serialization"
)

// Store is an opened checkpoint backend together with its lifecycle hooks.
type Store struct {
	checkpoint.Saver

	Backend string

	createTables func(context.Context) error
	close        func() error
	stats        func() any
}

// Health describes the backend for the health endpoint.
func (s *Store) Health() map[string]any {
	out := map[string]any{"backend": s.Backend}
	if s.stats != nil {
		out["stats"] = s.stats()
	}
	return out
}

// Migrate creates the checkpoint table and indexes when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if s.createTables == nil {
		return nil
	}
	return s.createTables(ctx)
}

// Close releases connections held by the backend.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the backend named by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", cfg.Driver)

	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.Open(ctx, cfg.URL, int32(cfg.MaxConnections), int32(cfg.MinConnections))
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		saver := postgres.NewCheckpointSaver(pool).WithTableName(cfg.TableName).WithLogger(logger)
		return &Store{
			Saver:        saver,
			Backend:      cfg.Driver,
			createTables: saver.CreateTables,
			close:        func() error { saver.Close(); return nil },
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ping sqlite %s: %w", cfg.SQLitePath, err)
		}
		saver := sqlite.NewCheckpointSaver(db).WithTableName(cfg.TableName).WithLogger(logger)
		return &Store{
			Saver:        saver,
			Backend:      cfg.Driver,
			createTables: saver.CreateTables,
			close:        saver.Close,
		}, nil

	case config.DriverMemory:
		ser, err := memorySerializer(cfg)
		if err != nil {
			return nil, err
		}
		saver := memory.NewCheckpointSaver(memory.WithSerializer(ser), memory.WithLogger(logger))
		return &Store{
			Saver:   saver,
			Backend: cfg.Driver,
			close:   saver.Close,
			stats:   func() any { return saver.Stats() },
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// memorySerializer builds the record pipeline of the in-process store.
// Unset fields keep the msgpack+zstd default.
func memorySerializer(cfg config.DatabaseConfig) (*serialization.Serializer, error) {
	codec, err := serialization.CodecByName(cfg.MemoryCodec)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	compression := serialization.CompressionType(cfg.MemoryCompression)
	if compression == "" {
		compression = serialization.CompressionZstd
	}
	ser, err := serialization.NewSerializer(serialization.SerializationConfig{Codec: codec, Compression: compression})
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	return ser, nil
}

// Bootstrap prepares storage for first use: it creates the PostgreSQL
// database when missing, then opens the backend and creates its tables.
func Bootstrap(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Driver == config.DriverPostgres {
		created, err := postgres.EnsureDatabase(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("ensure database: %w", err)
		}
		if created {
			logger.Info("created database", "backend", cfg.Driver)
		}
	}

	store, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}
