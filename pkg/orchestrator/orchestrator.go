// Package orchestrator routes a caller's task to one of the discovered remote
// agents and keeps the session's correlation ids across turns.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/agent-orchestrator/pkg/card"
	"github.com/morezero/agent-orchestrator/pkg/events"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/session"
)

const logPrefix = "orchestrator:orchestrator"

// sourceTimeout bounds the address source lookup made for a discovery attempt.
const sourceTimeout = 10 * time.Second

// Reasons reported on AgentsChangedEvent.
const (
	ReasonInitialize = "initialize"
	ReasonReload     = "reload"
)

// AddressSource returns the discovery addresses to resolve. It is consulted
// once per initialization.
type AddressSource func(ctx context.Context) ([]string, error)

// StaticAddresses returns an AddressSource that always yields addresses.
func StaticAddresses(addresses []string) AddressSource {
	return func(context.Context) ([]string, error) {
		return addresses, nil
	}
}

// Params holds parameters for New.
type Params struct {
	Resolver card.Resolver
	Factory  remote.ConnectionFactory
	Source   AddressSource
	// Publisher receives agents changed and dispatch events. Nil means no events.
	Publisher events.EventPublisher
	// SendTimeout bounds each dispatch. Zero means only the caller's context applies.
	SendTimeout     time.Duration
	ResolveAttempts int
	ResolveBackoff  time.Duration
}

// Orchestrator is the dispatch engine. One instance is built by the
// composition root and shared by every request handler.
type Orchestrator struct {
	registry    *remote.Registry
	source      AddressSource
	publisher   events.EventPublisher
	sendTimeout time.Duration

	reasonMu   sync.Mutex
	nextReason string
}

// New creates an Orchestrator. The registry is not initialized until the first
// BeforeTurn, Send or Initialize call.
func New(p Params) *Orchestrator {
	o := &Orchestrator{
		source:      p.Source,
		publisher:   p.Publisher,
		sendTimeout: p.SendTimeout,
		nextReason:  ReasonInitialize,
	}
	if o.source == nil {
		o.source = StaticAddresses(nil)
	}
	if o.publisher == nil {
		o.publisher = &events.NoOpPublisher{}
	}
	o.registry = remote.NewRegistry(remote.RegistryParams{
		Resolver:      p.Resolver,
		Factory:       p.Factory,
		Attempts:      p.ResolveAttempts,
		Backoff:       p.ResolveBackoff,
		OnInitialized: o.onInitialized,
	})
	return o
}

// Registry exposes the underlying connection registry.
func (o *Orchestrator) Registry() *remote.Registry { return o.registry }

// Initialize resolves the configured addresses once. Later calls return the
// stored result without consulting the address source. Discovery is shared by
// every caller, so it is not cut short by ctx; ctx only bounds the wait.
func (o *Orchestrator) Initialize(ctx context.Context) remote.InitResult {
	if o.registry.State().Initialized() {
		return o.registry.Result()
	}

	srcCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sourceTimeout)
	defer cancel()
	addresses, err := o.source(srcCtx)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Address source failed, continuing with %d address(es): %v", logPrefix, len(addresses), err))
	}
	return o.registry.Initialize(ctx, addresses)
}

// BeforeTurn runs ahead of every caller turn: it makes sure discovery has run
// and that the session is active.
func (o *Orchestrator) BeforeTurn(ctx context.Context, state *session.State) remote.InitResult {
	res := o.Initialize(ctx)
	state.EnsureActive()
	return res
}

// Reload drops every connection and resolves the addresses again.
func (o *Orchestrator) Reload(ctx context.Context) remote.InitResult {
	o.reasonMu.Lock()
	o.nextReason = ReasonReload
	o.reasonMu.Unlock()

	slog.Info(fmt.Sprintf("%s - Reloading remote agents", logPrefix))
	o.registry.Reset()
	return o.Initialize(ctx)
}

// Close releases every connection.
func (o *Orchestrator) Close() {
	o.registry.Reset()
}

func (o *Orchestrator) onInitialized(res remote.InitResult) {
	o.reasonMu.Lock()
	reason := o.nextReason
	o.nextReason = ReasonInitialize
	o.reasonMu.Unlock()

	failed := make([]string, 0, len(res.Failed))
	for _, f := range res.Failed {
		failed = append(failed, f.Address)
	}
	event := &events.AgentsChangedEvent{
		Reason:    reason,
		State:     res.State.String(),
		Agents:    res.Agents,
		Failed:    failed,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := o.publisher.PublishAgentsChanged(context.Background(), event); err != nil {
		slog.Warn(fmt.Sprintf("%s - Failed to publish agents changed event: %v", logPrefix, err))
	}
}
