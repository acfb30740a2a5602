package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearOrchestrator truncates the dispatch journal and, when includeAgents is
// set, the address catalog. Schema is preserved. RESTART IDENTITY resets sequences.
func ClearOrchestrator(ctx context.Context, pool *pgxpool.Pool, includeAgents bool) error {
	slog.Info(fmt.Sprintf("%s - Clearing orchestrator tables (agents=%t)", clearLogPrefix, includeAgents))

	stmt := clearStatement(includeAgents)
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Orchestrator tables cleared", clearLogPrefix))
	return nil
}

func clearStatement(includeAgents bool) string {
	if includeAgents {
		return `TRUNCATE TABLE dispatch_log, remote_agents RESTART IDENTITY CASCADE`
	}
	return `TRUNCATE TABLE dispatch_log RESTART IDENTITY`
}
