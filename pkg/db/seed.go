package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/agent-orchestrator/pkg/bootstrap"
)

const seedLogPrefix = "db:seed"

// SeedRemoteAgents loads the seed file and upserts every entry into
// remote_agents in one transaction. Idempotent. Returns the number of rows written.
func SeedRemoteAgents(ctx context.Context, pool *pgxpool.Pool, seedFilePath string) (int, error) {
	f, err := bootstrap.LoadSeedFile(seedFilePath)
	if err != nil {
		return 0, fmt.Errorf("%s - load seed file: %w", seedLogPrefix, err)
	}
	if len(f.Agents) == 0 {
		slog.Info(fmt.Sprintf("%s - no agents to seed", seedLogPrefix))
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s - begin tx: %w", seedLogPrefix, err)
	}
	defer tx.Rollback(ctx)

	repo := &Repository{q: tx}
	n := 0
	for _, a := range f.Agents {
		var note *string
		if a.Note != "" {
			note = &a.Note
		}
		if _, err := repo.UpsertRemoteAgent(ctx, UpsertRemoteAgentParams{Address: a.Address, Enabled: a.IsEnabled(), Note: note}); err != nil {
			return 0, fmt.Errorf("%s - upsert %s: %w", seedLogPrefix, a.Address, err)
		}
		n++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("%s - commit: %w", seedLogPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Seeded %d remote agent address(es) from %s", seedLogPrefix, n, f.Name))
	return n, nil
}
