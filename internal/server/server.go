// Package server wires all components: NATS client, optional DB, orchestrator, dispatcher, HTTP health.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-orchestrator/internal/config"
	"github.com/morezero/agent-orchestrator/pkg/bootstrap"
	"github.com/morezero/agent-orchestrator/pkg/card"
	"github.com/morezero/agent-orchestrator/pkg/commsutil"
	"github.com/morezero/agent-orchestrator/pkg/db"
	"github.com/morezero/agent-orchestrator/pkg/dispatcher"
	"github.com/morezero/agent-orchestrator/pkg/events"
	"github.com/morezero/agent-orchestrator/pkg/orchestrator"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/session"
)

const logPrefix = "server:server"

// Server is the agent-orchestrator process.
type Server struct {
	cfg        *config.Config
	nc         *comms.Conn
	pool       *pgxpool.Pool
	httpServer *http.Server
	orch       orchestratorForServer
}

// orchestratorForServer is the slice of the orchestrator the HTTP handlers read.
type orchestratorForServer interface {
	Health() orchestrator.Health
	ListRemoteAgents() []remote.AgentInfo
	Descriptor(name string) *card.Descriptor
}

// ParseLogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogging installs the process-wide text logger.
func SetupLogging(level string) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: ParseLogLevel(level)})))
}

// Run starts the server, blocks until shutdown signal, then cleans up.
func Run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("%s - failed to load config: %w", logPrefix, err)
	}
	SetupLogging(cfg.LogLevel)

	if err := cfg.ValidateForServe(); err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("%s - Starting agent-orchestrator", logPrefix))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Server{cfg: cfg}

	// Step 1: Load seed file
	seed, err := bootstrap.LoadSeedFile(cfg.RemoteAgentsFile)
	if err != nil {
		return fmt.Errorf("%s - failed to load seed file: %w", logPrefix, err)
	}

	subject := cfg.Subject()
	slog.Info(fmt.Sprintf("%s - Orchestrator subject: %s", logPrefix, subject))

	// Step 2: Connect to NATS
	nc, err := commsutil.Connect(cfg.COMMSURL, cfg.COMMSName)
	if err != nil {
		return fmt.Errorf("%s - failed to connect to NATS: %w", logPrefix, err)
	}
	s.nc = nc

	// Step 3: Connect to database when configured
	var repo *db.Repository
	if cfg.HasDatabase() {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			nc.Close()
			return fmt.Errorf("%s - failed to connect to database: %w", logPrefix, err)
		}
		s.pool = pool

		if cfg.RunMigrations {
			if err := migrate(ctx, pool, cfg.MigrationPath); err != nil {
				pool.Close()
				nc.Close()
				return err
			}
		}
		repo = db.NewRepository(pool)
	} else {
		slog.Info(fmt.Sprintf("%s - DATABASE_URL not set, address catalog and dispatch journal disabled", logPrefix))
	}

	// Step 4: Build the orchestrator
	orch, err := buildOrchestrator(cfg, nc, seed, repo)
	if err != nil {
		s.closeResources()
		return err
	}
	s.orch = orch

	// Step 5: Create dispatcher and subscribe
	disp := dispatcher.NewDispatcher(orch, session.NewStore())
	handler := newRequestHandler(ctx, disp, cfg.RequestTimeout, cfg.MaxInFlightRequests)
	sub, err := nc.Subscribe(subject, handler.Handle)
	if err != nil {
		orch.Close()
		s.closeResources()
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))

	if cfg.EagerDiscovery {
		go func() {
			res := orch.Initialize(ctx)
			slog.Info(fmt.Sprintf("%s - Eager discovery finished: state=%s agents=%d failed=%d", logPrefix, res.State, len(res.Agents), len(res.Failed)))
		}()
	}

	// Step 6: Start HTTP health server
	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	s.httpServer = &http.Server{Addr: httpAddr, Handler: s.routes()}
	go func() {
		slog.Info(fmt.Sprintf("%s - HTTP health server listening on %s", logPrefix, httpAddr))
		if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error(fmt.Sprintf("%s - HTTP server error: %v", logPrefix, err))
		}
	}()

	slog.Info(fmt.Sprintf("%s - Agent-orchestrator is ready", logPrefix))

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info(fmt.Sprintf("%s - Received signal %s, shutting down", logPrefix, sig))

	// Graceful shutdown
	sub.Unsubscribe()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HealthCheckTimeout)
	defer shutdownCancel()
	s.httpServer.Shutdown(shutdownCtx)
	cancel()
	handler.Wait()
	orch.Close()
	s.closeResources()

	slog.Info(fmt.Sprintf("%s - Shutdown complete", logPrefix))
	return nil
}

func (s *Server) closeResources() {
	commsutil.Drain(s.nc)
	if s.pool != nil {
		s.pool.Close()
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool, path string) error {
	migrations, err := db.LoadMigrations(db.ResolveMigrationPath(path))
	if err != nil {
		return fmt.Errorf("%s - failed to load migrations: %w", logPrefix, err)
	}
	if err := db.RunMigrations(ctx, pool, migrations); err != nil {
		return fmt.Errorf("%s - failed to run migrations: %w", logPrefix, err)
	}
	return nil
}

// buildOrchestrator assembles resolver, connection factory, address source and
// event publishers from cfg.
func buildOrchestrator(cfg *config.Config, nc *comms.Conn, seed *bootstrap.SeedFile, repo *db.Repository) (*orchestrator.Orchestrator, error) {
	constraint, err := cfg.Constraint()
	if err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}

	publishers := events.MultiPublisher{
		events.NewCommsPublisher(nc, &events.CommsPublisherOpts{DispatchedSubject: cfg.DispatchEventSubject}),
	}
	var lister addressLister
	if repo != nil {
		publishers = append(publishers, db.NewJournalPublisher(repo))
		lister = repo
	}

	return orchestrator.New(orchestrator.Params{
		Resolver: card.NewHTTPResolver(card.HTTPResolverParams{
			Path:       cfg.CardPath,
			Timeout:    cfg.ResolveTimeout,
			Constraint: constraint,
		}),
		Factory: remote.NewHTTPConnectionFactory(remote.HTTPConnectionParams{
			MaxFailures: cfg.BreakerMaxFailures,
			OpenTimeout: cfg.BreakerOpenTimeout,
		}),
		Source:          addressSource(cfg.Addresses(), seed, lister),
		Publisher:       publishers,
		SendTimeout:     cfg.SendTimeout,
		ResolveAttempts: cfg.ResolveAttempts,
		ResolveBackoff:  cfg.ResolveBackoff,
	}), nil
}
