package orchestrator

import (
	"context"
	"sync"

	"github.com/morezero/agent-orchestrator/internal/agenttest"
	"github.com/morezero/agent-orchestrator/pkg/card"
	"github.com/morezero/agent-orchestrator/pkg/events"
	"github.com/morezero/agent-orchestrator/pkg/remote"
)

var (
	newFakeAgent = agenttest.New
	echoTask     = agenttest.EchoTask
	fixedReply   = agenttest.Fixed
)

type recorder struct {
	mu         sync.Mutex
	changed    []*events.AgentsChangedEvent
	dispatched []*events.DispatchedEvent
}

func (r *recorder) publisher() *events.CallbackPublisher {
	return &events.CallbackPublisher{
		OnAgentsChanged: func(_ context.Context, e *events.AgentsChangedEvent) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.changed = append(r.changed, e)
			return nil
		},
		OnDispatched: func(_ context.Context, e *events.DispatchedEvent) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.dispatched = append(r.dispatched, e)
			return nil
		},
	}
}

func (r *recorder) lastDispatched() *events.DispatchedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.dispatched) == 0 {
		return nil
	}
	return r.dispatched[len(r.dispatched)-1]
}

func newTestOrchestrator(rec *recorder, addresses ...string) *Orchestrator {
	p := Params{
		Resolver: card.NewHTTPResolver(card.HTTPResolverParams{}),
		Factory:  remote.NewHTTPConnectionFactory(remote.HTTPConnectionParams{}),
		Source:   StaticAddresses(addresses),
	}
	if rec != nil {
		p.Publisher = rec.publisher()
	}
	return New(p)
}
