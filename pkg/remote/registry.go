package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/morezero/agent-orchestrator/pkg/card"
)

const registryLogPrefix = "remote:registry"

var (
	// ErrAgentNotFound is returned by Lookup for a name with no registered connection.
	ErrAgentNotFound = errors.New("agent not found")
	// ErrRegistryNotReady is returned by Lookup before initialization has finished.
	ErrRegistryNotReady = errors.New("registry not initialized")
)

// State is the registry lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	// StateDegraded means initialization finished with zero usable agents.
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Initialized reports whether initialization has completed, with or without agents.
func (s State) Initialized() bool {
	return s == StateReady || s == StateDegraded
}

// FailedAddress records an address that could not be turned into a connection.
type FailedAddress struct {
	Address string `json:"address"`
	Error   string `json:"error"`
	err     error
}

// Err returns the underlying error.
func (f FailedAddress) Err() error { return f.err }

// InitResult summarizes one initialization attempt.
type InitResult struct {
	State  State           `json:"-"`
	Agents []string        `json:"agents"`
	Failed []FailedAddress `json:"failed"`
}

// Partial reports whether some, but not all, addresses produced an agent.
func (r InitResult) Partial() bool {
	return len(r.Agents) > 0 && len(r.Failed) > 0
}

// AgentInfo is the public listing of one registered agent.
type AgentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type entry struct {
	descriptor *card.Descriptor
	conn       Connection
}

// RegistryParams holds parameters for NewRegistry.
type RegistryParams struct {
	Resolver card.Resolver
	Factory  ConnectionFactory
	// Attempts is the number of resolve attempts per address for unreachable
	// addresses. Values below 1 mean a single attempt.
	Attempts int
	// Backoff is multiplied by the attempt number between attempts.
	Backoff time.Duration
	// OnInitialized, if set, is called once per completed initialization,
	// outside the registry lock.
	OnInitialized func(InitResult)
}

// Registry maps agent names to live connections. It is populated once by
// Initialize and is read-mostly afterwards.
type Registry struct {
	resolver card.Resolver
	factory  ConnectionFactory
	attempts int
	backoff  time.Duration
	onInit   func(InitResult)

	mu       sync.RWMutex
	state    State
	entries  map[string]*entry
	result   InitResult
	inflight chan struct{}
	gen      uint64
}

// NewRegistry creates an uninitialized registry.
func NewRegistry(params RegistryParams) *Registry {
	attempts := params.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Registry{
		resolver: params.Resolver,
		factory:  params.Factory,
		attempts: attempts,
		backoff:  params.Backoff,
		onInit:   params.OnInitialized,
		state:    StateUninitialized,
		entries:  make(map[string]*entry),
	}
}

// Initialize resolves every address and registers a connection per descriptor.
// Only the first call does work: concurrent callers wait for it and later
// callers get the stored result.
//
// The attempt runs detached from ctx, so a caller whose deadline expires only
// stops waiting and gets StateInitializing back; the shared attempt completes
// for everyone else. Each resolve is bounded by the resolver's own timeout.
func (r *Registry) Initialize(ctx context.Context, addresses []string) InitResult {
	r.mu.Lock()
	if r.state.Initialized() {
		res := r.result
		r.mu.Unlock()
		slog.Debug(fmt.Sprintf("%s - Initialize called after completion, ignoring", registryLogPrefix))
		return res
	}
	ch := r.inflight
	if ch != nil {
		slog.Debug(fmt.Sprintf("%s - Initialization in progress, waiting", registryLogPrefix))
	} else {
		ch = make(chan struct{})
		r.inflight = ch
		r.state = StateInitializing
		slog.Info(fmt.Sprintf("%s - Initializing with %d address(es)", registryLogPrefix, len(addresses)))
		go r.run(context.WithoutCancel(ctx), ch, r.gen, addresses)
	}
	r.mu.Unlock()

	select {
	case <-ch:
		return r.Result()
	case <-ctx.Done():
		select {
		case <-ch:
			return r.Result()
		default:
		}
		return InitResult{State: StateInitializing}
	}
}

// run performs one attempt and releases its waiters once the result is
// installed and OnInitialized has returned.
func (r *Registry) run(ctx context.Context, ch chan struct{}, gen uint64, addresses []string) {
	defer close(ch)
	entries, res := r.resolveAll(ctx, addresses)
	if r.install(ch, gen, entries, res) && r.onInit != nil {
		r.onInit(res)
	}
}

// install publishes the outcome of an attempt unless Reset ran meanwhile.
func (r *Registry) install(ch chan struct{}, gen uint64, entries map[string]*entry, res InitResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight == ch {
		r.inflight = nil
	}

	if gen != r.gen {
		// Reset ran while resolving; the new generation starts clean.
		for _, e := range entries {
			_ = e.conn.Close()
		}
		return false
	}

	r.entries = entries
	r.state = res.State
	r.result = res

	if res.State == StateDegraded {
		slog.Warn(fmt.Sprintf("%s - No remote agents available (%d address(es) failed)", registryLogPrefix, len(res.Failed)))
	} else {
		slog.Info(fmt.Sprintf("%s - Ready with %d agent(s), %d failed address(es)", registryLogPrefix, len(res.Agents), len(res.Failed)))
	}
	return true
}

type resolution struct {
	descriptor *card.Descriptor
	conn       Connection
	err        error
}

// resolveAll resolves addresses concurrently and registers them in address
// order so duplicate names are last-write-wins.
func (r *Registry) resolveAll(ctx context.Context, addresses []string) (map[string]*entry, InitResult) {
	results := make([]resolution, len(addresses))
	var wg sync.WaitGroup
	for i, addr := range addresses {
		wg.Add(1)
		go func(i int, addr string) {
			defer wg.Done()
			results[i] = r.resolveOne(ctx, addr)
		}(i, addr)
	}
	wg.Wait()

	entries := make(map[string]*entry)
	res := InitResult{Agents: []string{}, Failed: []FailedAddress{}}
	for i, addr := range addresses {
		rr := results[i]
		if rr.err != nil {
			slog.Warn(fmt.Sprintf("%s - Skipping address %s: %v", registryLogPrefix, addr, rr.err))
			res.Failed = append(res.Failed, FailedAddress{Address: addr, Error: rr.err.Error(), err: rr.err})
			continue
		}
		name := rr.descriptor.Name
		if prev, ok := entries[name]; ok {
			slog.Warn(fmt.Sprintf("%s - Duplicate agent name %q: %s replaces %s", registryLogPrefix, name, addr, prev.descriptor.Address))
			_ = prev.conn.Close()
		}
		entries[name] = &entry{descriptor: rr.descriptor, conn: rr.conn}
		slog.Info(fmt.Sprintf("%s - Registered agent %q from %s", registryLogPrefix, name, addr))
	}

	for name := range entries {
		res.Agents = append(res.Agents, name)
	}
	sort.Strings(res.Agents)

	res.State = StateReady
	if len(entries) == 0 {
		res.State = StateDegraded
	}
	return entries, res
}

func (r *Registry) resolveOne(ctx context.Context, address string) resolution {
	var (
		d   *card.Descriptor
		err error
	)
	for attempt := 1; attempt <= r.attempts; attempt++ {
		d, err = r.resolver.Resolve(ctx, address)
		if err == nil || !errors.Is(err, card.ErrAddressUnreachable) || attempt == r.attempts {
			break
		}
		wait := r.backoff * time.Duration(attempt)
		slog.Debug(fmt.Sprintf("%s - Resolve %s failed (attempt %d/%d), retrying in %s", registryLogPrefix, address, attempt, r.attempts, wait))
		select {
		case <-ctx.Done():
			return resolution{err: fmt.Errorf("%s - resolve %s: %w", registryLogPrefix, address, errors.Join(err, ctx.Err()))}
		case <-time.After(wait):
		}
	}
	if err != nil {
		return resolution{err: err}
	}

	conn, err := r.factory(d)
	if err != nil {
		return resolution{err: fmt.Errorf("%s - connect %q: %w", registryLogPrefix, d.Name, err)}
	}
	return resolution{descriptor: d, conn: conn}
}

// Lookup returns the connection registered under name.
func (r *Registry) Lookup(name string) (Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.state.Initialized() {
		return nil, ErrRegistryNotReady
	}
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return e.conn, nil
}

// Descriptor returns the card registered under name, or nil.
func (r *Registry) Descriptor(name string) *card.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.entries[name]; ok {
		return e.descriptor
	}
	return nil
}

// ListDescriptors returns a snapshot of registered agents sorted by name.
// The slice is empty, never nil, when nothing is registered.
func (r *Registry) ListDescriptors() []AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AgentInfo, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, AgentInfo{Name: e.descriptor.Name, Description: e.descriptor.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns the registered agent names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Connections returns a snapshot of registered connections keyed by name.
func (r *Registry) Connections() map[string]Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Connection, len(r.entries))
	for name, e := range r.entries {
		out[name] = e.conn
	}
	return out
}

// State returns the current lifecycle state.
func (r *Registry) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Result returns the outcome of the last completed initialization.
func (r *Registry) Result() InitResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := r.result
	res.State = r.state
	return res
}

// Reset closes every connection and returns the registry to StateUninitialized
// so the next Initialize resolves again.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, e := range r.entries {
		if err := e.conn.Close(); err != nil {
			slog.Warn(fmt.Sprintf("%s - Closing %q: %v", registryLogPrefix, name, err))
		}
	}
	r.entries = make(map[string]*entry)
	r.result = InitResult{}
	r.state = StateUninitialized
	r.gen++
	// Waiters on an in-flight attempt are released when it finishes; new callers start over.
	r.inflight = nil
	slog.Info(fmt.Sprintf("%s - Reset", registryLogPrefix))
}
