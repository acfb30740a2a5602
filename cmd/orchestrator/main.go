// Package main is the entrypoint for the agent-orchestrator (binary name "orchestrator" in Docker).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/agent-orchestrator/internal/config"
	"github.com/morezero/agent-orchestrator/internal/server"
	"github.com/morezero/agent-orchestrator/pkg/card"
	"github.com/morezero/agent-orchestrator/pkg/db"
)

const usage = `Usage: orchestrator [command]
       orchestrator serve                 Start the orchestrator (NATS, HTTP, dispatch API).
       orchestrator migrate up            Run database migrations.
       orchestrator migrate status        Show migration status.
       orchestrator ensure-db [name]      Create database if missing (default name: orchestrator_test). Uses DATABASE_URL host/user.
       orchestrator clear [--all]         Truncate the dispatch journal (--all also empties the address catalog); schema is preserved.
       orchestrator seed [file]           Upsert remote agent addresses from a seed file into the catalog.
       orchestrator agents                List the remote agent address catalog.
       orchestrator enable <address>      Enable a catalog address.
       orchestrator disable <address>     Disable a catalog address.
       orchestrator dispatches [agent] [n]  Show the newest dispatch journal rows.
       orchestrator resolve <address>     Fetch and print the agent card published at address.

Commands:
  serve            (default) Start the agent orchestrator.
  migrate up       Run database migrations only.
  migrate status   Show current migration status.
  ensure-db [name] Create database (e.g. orchestrator_test) on same host as DATABASE_URL; then run tests with that URL.
  clear [--all]    Truncate orchestrator data; schema preserved.
  seed [file]      Seed the catalog (file defaults to REMOTE_AGENTS_FILE, then config/remote_agents.json).
  resolve <addr>   Check an address the way discovery does (AGENT_CARD_PATH, AGENT_VERSION_CONSTRAINT, RESOLVE_TIMEOUT).

Environment: REMOTE_AGENT_ADDRESSES, COMMS_URL, DATABASE_URL (required for catalog commands), MIGRATION_PATH, REMOTE_AGENTS_FILE, HTTP_PORT. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("orchestrator migrate: require subcommand (up, status)")
		}
		switch sub := args[1]; sub {
		case "up":
			if err := runMigrateUp(); err != nil {
				log.Fatalf("orchestrator migrate up: %v", err)
			}
		case "status":
			if err := runMigrateStatus(); err != nil {
				log.Fatalf("orchestrator migrate status: %v", err)
			}
		default:
			log.Fatalf("orchestrator migrate: unknown subcommand %q (use up, status)", sub)
		}
		return
	case "clear":
		all := len(args) > 1 && args[1] == "--all"
		if err := runClear(all); err != nil {
			log.Fatalf("orchestrator clear: %v", err)
		}
		return
	case "seed":
		if err := runSeed(argAt(args, 1)); err != nil {
			log.Fatalf("orchestrator seed: %v", err)
		}
		return
	case "agents":
		if err := runAgents(os.Stdout); err != nil {
			log.Fatalf("orchestrator agents: %v", err)
		}
		return
	case "enable", "disable":
		address := argAt(args, 1)
		if address == "" {
			log.Fatalf("orchestrator %s: require an address", cmd)
		}
		if err := runSetEnabled(address, cmd == "enable"); err != nil {
			log.Fatalf("orchestrator %s: %v", cmd, err)
		}
		return
	case "dispatches":
		limit := 20
		if n := argAt(args, 2); n != "" {
			v, err := strconv.Atoi(n)
			if err != nil {
				log.Fatalf("orchestrator dispatches: invalid limit %q", n)
			}
			limit = v
		}
		if err := runDispatches(os.Stdout, argAt(args, 1), limit); err != nil {
			log.Fatalf("orchestrator dispatches: %v", err)
		}
		return
	case "resolve":
		address := argAt(args, 1)
		if address == "" {
			log.Fatalf("orchestrator resolve: require an address")
		}
		if err := runResolve(os.Stdout, address); err != nil {
			log.Fatalf("orchestrator resolve: %v", err)
		}
		return
	case "ensure-db":
		dbName := "orchestrator_test"
		if name := argAt(args, 1); name != "" {
			dbName = name
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("orchestrator ensure-db: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
}

func argAt(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

// withPool loads config, requires DATABASE_URL and runs fn with a connected pool.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	server.SetupLogging(cfg.LogLevel)
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	return fn(ctx, cfg, pool)
}

func runMigrateUp() error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		migrations, err := db.LoadMigrations(db.ResolveMigrationPath(cfg.MigrationPath))
		if err != nil {
			return fmt.Errorf("load migrations: %w", err)
		}
		if err := db.RunMigrations(ctx, pool, migrations); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		return nil
	})
}

func runMigrateStatus() error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		status, err := db.MigrationStatus(ctx, pool, db.ResolveMigrationPath(cfg.MigrationPath))
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	})
}

func runClear(includeAgents bool) error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		if err := db.ClearOrchestrator(ctx, pool, includeAgents); err != nil {
			return fmt.Errorf("clear orchestrator: %w", err)
		}
		return nil
	})
}

func runSeed(fileOverride string) error {
	return withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
		path := fileOverride
		if path == "" {
			path = cfg.RemoteAgentsFile
		}
		n, err := db.SeedRemoteAgents(ctx, pool, path)
		if err != nil {
			return err
		}
		fmt.Printf("Seeded %d remote agent address(es).\n", n)
		return nil
	})
}

func runAgents(out io.Writer) error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		agents, err := db.NewRepository(pool).ListRemoteAgents(ctx)
		if err != nil {
			return err
		}
		writeAgents(out, agents)
		return nil
	})
}

func writeAgents(out io.Writer, agents []db.RemoteAgent) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tENABLED\tNOTE")
	for _, a := range agents {
		note := ""
		if a.Note != nil {
			note = *a.Note
		}
		fmt.Fprintf(w, "%s\t%t\t%s\n", a.Address, a.Enabled, note)
	}
	w.Flush()
}

func runSetEnabled(address string, enabled bool) error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		found, err := db.NewRepository(pool).SetRemoteAgentEnabled(ctx, address, enabled)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("address %q is not in the catalog (run seed first)", address)
		}
		fmt.Printf("%s enabled=%t\n", address, enabled)
		return nil
	})
}

func runDispatches(out io.Writer, agentName string, limit int) error {
	return withPool(func(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
		rows, err := db.NewRepository(pool).ListRecentDispatches(ctx, db.ListRecentDispatchesParams{AgentName: agentName, Limit: limit})
		if err != nil {
			return err
		}
		writeDispatches(out, rows)
		return nil
	})
}

func writeDispatches(out io.Writer, rows []db.DispatchRecord) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tAGENT\tOUTCOME\tSTATE\tTASK\tMS")
	for _, r := range rows {
		state := "-"
		if r.TaskState != nil {
			state = *r.TaskState
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n", r.Created.UTC().Format("2006-01-02T15:04:05Z"), r.AgentName, r.Outcome, state, r.TaskID, r.DurationMs)
	}
	w.Flush()
}

func runResolve(out io.Writer, address string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForResolve(); err != nil {
		return err
	}
	constraint, _ := cfg.Constraint()
	resolver := card.NewHTTPResolver(card.HTTPResolverParams{
		Path:       cfg.CardPath,
		Timeout:    cfg.ResolveTimeout,
		Constraint: constraint,
	})
	return resolveTo(context.Background(), out, resolver, address)
}

func resolveTo(ctx context.Context, out io.Writer, resolver card.Resolver, address string) error {
	d, err := resolver.Resolve(ctx, address)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := db.WithDatabaseName(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}
