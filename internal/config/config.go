// Package config provides orchestrator configuration loaded from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/agent-orchestrator/pkg/commsutil"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/semver"
)

const logPrefix = "config:LoadConfig"

// Config holds agent-orchestrator configuration.
type Config struct {
	// Discovery
	RemoteAgentAddresses []string      `envconfig:"REMOTE_AGENT_ADDRESSES"`
	RemoteAgentsFile     string        `envconfig:"REMOTE_AGENTS_FILE"`
	CardPath             string        `envconfig:"AGENT_CARD_PATH" default:"/.well-known/agent.json"`
	VersionConstraint    string        `envconfig:"AGENT_VERSION_CONSTRAINT"`
	ResolveTimeout       time.Duration `envconfig:"RESOLVE_TIMEOUT" default:"10s"`
	ResolveAttempts      int           `envconfig:"RESOLVE_ATTEMPTS" default:"1"`
	ResolveBackoff       time.Duration `envconfig:"RESOLVE_BACKOFF" default:"500ms"`
	EagerDiscovery       bool          `envconfig:"EAGER_DISCOVERY" default:"false"`

	// Dispatch
	SendTimeout        time.Duration `envconfig:"SEND_TIMEOUT" default:"120s"`
	BreakerMaxFailures uint32        `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	BreakerOpenTimeout time.Duration `envconfig:"BREAKER_OPEN_TIMEOUT" default:"30s"`

	// COMMS: connect to standalone NATS at COMMSURL.
	COMMSURL  string `envconfig:"COMMS_URL" default:"nats://127.0.0.1:4222"`
	COMMSName string `envconfig:"SERVICE_NAME" default:"agent-orchestrator"`

	// Subject overrides (empty = defaults from commsutil)
	OrchestratorSubject  string        `envconfig:"ORCHESTRATOR_SUBJECT"`
	DispatchEventSubject string        `envconfig:"DISPATCH_EVENT_SUBJECT"`
	RequestTimeout       time.Duration `envconfig:"REQUEST_TIMEOUT" default:"150s"`
	MaxInFlightRequests  int64         `envconfig:"MAX_IN_FLIGHT_REQUESTS" default:"64"`

	// Database (optional: empty disables the address catalog and dispatch journal)
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP health endpoint
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	return &c, nil
}

// Addresses returns REMOTE_AGENT_ADDRESSES trimmed, without empty entries,
// duplicates or trailing slashes.
func (c *Config) Addresses() []string {
	return remote.NormalizeAddresses(c.RemoteAgentAddresses)
}

// Subject returns the request subject the orchestrator serves.
func (c *Config) Subject() string {
	if c.OrchestratorSubject != "" {
		return c.OrchestratorSubject
	}
	return commsutil.SubjectOrchestrator
}

// HasDatabase reports whether a database is configured.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// Constraint parses AGENT_VERSION_CONSTRAINT. Nil means no gate.
func (c *Config) Constraint() (*semver.Constraint, error) {
	return semver.ParseConstraint(c.VersionConstraint)
}

// ValidateForServe checks required config when running the orchestrator server.
func (c *Config) ValidateForServe() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.MaxInFlightRequests < 1 {
		return fmt.Errorf("%s - MAX_IN_FLIGHT_REQUESTS must be at least 1", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if err := c.ValidateForResolve(); err != nil {
		return err
	}
	if c.SendTimeout < 0 {
		return fmt.Errorf("%s - SEND_TIMEOUT must not be negative", logPrefix)
	}
	if c.BreakerOpenTimeout <= 0 {
		return fmt.Errorf("%s - BREAKER_OPEN_TIMEOUT must be positive", logPrefix)
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("%s - HTTP_PORT %d is out of range", logPrefix, c.HTTPPort)
	}
	return nil
}

// ValidateForResolve checks the discovery settings (also used by the resolve command).
func (c *Config) ValidateForResolve() error {
	if c.ResolveTimeout <= 0 {
		return fmt.Errorf("%s - RESOLVE_TIMEOUT must be positive", logPrefix)
	}
	if c.ResolveAttempts < 1 {
		return fmt.Errorf("%s - RESOLVE_ATTEMPTS must be at least 1", logPrefix)
	}
	if c.ResolveBackoff < 0 {
		return fmt.Errorf("%s - RESOLVE_BACKOFF must not be negative", logPrefix)
	}
	if _, err := c.Constraint(); err != nil {
		return fmt.Errorf("%s - AGENT_VERSION_CONSTRAINT: %w", logPrefix, err)
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, clear, seed).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
