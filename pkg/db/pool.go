// Package db persists the remote agent address catalog and the dispatch journal via pgx.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	// Journal writes are short; a small pool is enough.
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established", logPrefix))
	return pool, nil
}

// RunMigrations applies migrations in order. Migration files are written to be re-runnable.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) error {
	slog.Info(fmt.Sprintf("%s - Running %d migrations", logPrefix, len(migrations)))

	for _, m := range migrations {
		slog.Debug(fmt.Sprintf("%s - Applying %s", logPrefix, m.Name))
		if _, err := pool.Exec(ctx, m.SQL); err != nil {
			return fmt.Errorf("%s - migration %s failed: %w", logPrefix, m.Name, err)
		}
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete", logPrefix))
	return nil
}

// MigrationStatus reports whether the schema is present (both tables exist).
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, migrationPath string) (string, error) {
	const statusLogPrefix = "db:MigrationStatus"

	var tables int
	err := pool.QueryRow(ctx,
		`SELECT COUNT(*)::int FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_name IN ('remote_agents', 'dispatch_log')`).Scan(&tables)
	if err != nil {
		return "", fmt.Errorf("%s - failed to check schema: %w", statusLogPrefix, err)
	}

	migrations, err := LoadMigrations(migrationPath)
	if err != nil {
		return "", fmt.Errorf("%s - load migration list: %w", statusLogPrefix, err)
	}

	return describeStatus(tables, len(migrations), migrationPath), nil
}

func describeStatus(tables, files int, migrationPath string) string {
	switch tables {
	case 2:
		return fmt.Sprintf("Migration status: applied (schema present, %d migration files in %s)", files, migrationPath)
	case 0:
		return fmt.Sprintf("Migration status: not applied (run 'orchestrator migrate up'). %d migration files in %s", files, migrationPath)
	default:
		return fmt.Sprintf("Migration status: partial (%d of 2 tables present, run 'orchestrator migrate up'). %d migration files in %s", tables, files, migrationPath)
	}
}
