package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const repoLogPrefix = "db:repository"

// querier is the subset of pgxpool.Pool and pgx.Tx the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides database access for the address catalog and dispatch journal.
type Repository struct {
	q querier
}

// NewRepository creates a new Repository with the given connection pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// WithTx returns a Repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{q: tx}
}

// =========================================================================
// REMOTE AGENT ADDRESSES
// =========================================================================

const remoteAgentColumns = `id, address, enabled, note, created, modified`

// ListEnabledAddresses returns enabled addresses in insertion order.
func (r *Repository) ListEnabledAddresses(ctx context.Context) ([]string, error) {
	rows, err := r.q.Query(ctx,
		`SELECT address FROM remote_agents WHERE enabled ORDER BY created, address`)
	if err != nil {
		return nil, fmt.Errorf("%s - list enabled addresses: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("%s - scan address: %w", repoLogPrefix, err)
		}
		out = append(out, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - iterate addresses: %w", repoLogPrefix, err)
	}
	return out, nil
}

// ListRemoteAgents returns every catalog row.
func (r *Repository) ListRemoteAgents(ctx context.Context) ([]RemoteAgent, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+remoteAgentColumns+` FROM remote_agents ORDER BY created, address`)
	if err != nil {
		return nil, fmt.Errorf("%s - list remote agents: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	out := []RemoteAgent{}
	for rows.Next() {
		a, err := scanRemoteAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// UpsertRemoteAgentParams holds parameters for UpsertRemoteAgent.
type UpsertRemoteAgentParams struct {
	Address string
	Enabled bool
	Note    *string
}

// UpsertRemoteAgent creates or updates a catalog entry keyed by address.
func (r *Repository) UpsertRemoteAgent(ctx context.Context, params UpsertRemoteAgentParams) (*RemoteAgent, error) {
	addr := strings.TrimRight(strings.TrimSpace(params.Address), "/")
	if addr == "" {
		return nil, fmt.Errorf("%s - address is required", repoLogPrefix)
	}
	slog.Info(fmt.Sprintf("%s - UpsertRemoteAgent address=%s enabled=%t", repoLogPrefix, addr, params.Enabled))

	row := r.q.QueryRow(ctx,
		`INSERT INTO remote_agents (address, enabled, note)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (address) DO UPDATE SET
		   enabled = EXCLUDED.enabled,
		   note = COALESCE(EXCLUDED.note, remote_agents.note),
		   modified = NOW()
		 RETURNING `+remoteAgentColumns,
		addr, params.Enabled, params.Note)

	return scanRemoteAgent(row)
}

// SetRemoteAgentEnabled toggles an address. It reports whether a row matched.
func (r *Repository) SetRemoteAgentEnabled(ctx context.Context, address string, enabled bool) (bool, error) {
	tag, err := r.q.Exec(ctx,
		`UPDATE remote_agents SET enabled = $2, modified = NOW() WHERE address = $1`,
		strings.TrimRight(strings.TrimSpace(address), "/"), enabled)
	if err != nil {
		return false, fmt.Errorf("%s - set enabled for %s: %w", repoLogPrefix, address, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanRemoteAgent(row pgx.Row) (*RemoteAgent, error) {
	var a RemoteAgent
	err := row.Scan(&a.ID, &a.Address, &a.Enabled, &a.Note, &a.Created, &a.Modified)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("%s - scan remote agent: %w", repoLogPrefix, err)
	}
	return &a, nil
}

// =========================================================================
// DISPATCH JOURNAL
// =========================================================================

// InsertDispatch appends a journal row and returns its id.
func (r *Repository) InsertDispatch(ctx context.Context, rec DispatchRecord) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx,
		`INSERT INTO dispatch_log
		   (agent_name, session_id, task_id, context_id, message_id, outcome, task_state, error, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		rec.AgentName, rec.SessionID, rec.TaskID, rec.ContextID, rec.MessageID,
		rec.Outcome, rec.TaskState, rec.Error, rec.DurationMs).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s - insert dispatch for %s: %w", repoLogPrefix, rec.AgentName, err)
	}
	return id, nil
}

// ListRecentDispatchesParams holds parameters for ListRecentDispatches.
type ListRecentDispatchesParams struct {
	AgentName string
	Limit     int
}

// ListRecentDispatches returns the newest journal rows first.
func (r *Repository) ListRecentDispatches(ctx context.Context, params ListRecentDispatchesParams) ([]DispatchRecord, error) {
	limit := params.Limit
	if limit < 1 || limit > 500 {
		limit = 50
	}

	query := `SELECT id, agent_name, session_id, task_id, context_id, message_id,
	                 outcome, task_state, error, duration_ms, created
	          FROM dispatch_log`
	args := []any{}
	if params.AgentName != "" {
		query += ` WHERE agent_name = $1`
		args = append(args, params.AgentName)
	}
	query += fmt.Sprintf(` ORDER BY created DESC, id DESC LIMIT %d`, limit)

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - list dispatches: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	out := []DispatchRecord{}
	for rows.Next() {
		var d DispatchRecord
		if err := rows.Scan(&d.ID, &d.AgentName, &d.SessionID, &d.TaskID, &d.ContextID, &d.MessageID,
			&d.Outcome, &d.TaskState, &d.Error, &d.DurationMs, &d.Created); err != nil {
			return nil, fmt.Errorf("%s - scan dispatch: %w", repoLogPrefix, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
