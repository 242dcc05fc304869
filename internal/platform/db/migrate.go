package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

// NewMigrator builds a goose provider over the *.sql files at the root of
// fsys. Concurrent migrators are serialised by a Postgres session lock.
func NewMigrator(sqlDB *sql.DB, fsys fs.FS) (*goose.Provider, error) {
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("platform/db: migration lock: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("platform/db: load migrations: %w", err)
	}
	return provider, nil
}

// Migrate applies pending migrations through the pool and returns the
// versions it applied.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS, logger *slog.Logger) ([]int64, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	defer sqlDB.Close()

	provider, err := NewMigrator(sqlDB, fsys)
	if err != nil {
		return nil, err
	}
	results, err := provider.Up(ctx)
	applied := make([]int64, 0, len(results))
	for _, res := range results {
		if res.Error != nil {
			continue
		}
		logger.Info("migration applied",
			slog.Int64("version", res.Source.Version),
			slog.Duration("took", res.Duration),
		)
		applied = append(applied, res.Source.Version)
	}
	if err != nil {
		return applied, fmt.Errorf("platform/db: migrate: %w", err)
	}
	return applied, nil
}
