package orchestrator

import "github.com/morezero/agent-orchestrator/pkg/remote"

// Health is a point-in-time summary of discovery and connection state.
type Health struct {
	State    string                 `json:"state"`
	Ready    bool                   `json:"ready"`
	Agents   []string               `json:"agents"`
	Failed   []remote.FailedAddress `json:"failed"`
	Breakers map[string]string      `json:"breakers,omitempty"`
}

type breakerReporter interface {
	BreakerState() string
}

// Health reports discovery state and, for HTTP connections, breaker state.
func (o *Orchestrator) Health() Health {
	res := o.registry.Result()
	h := Health{
		State:  res.State.String(),
		Ready:  res.State.Initialized(),
		Agents: o.registry.Names(),
		Failed: res.Failed,
	}
	if h.Failed == nil {
		h.Failed = []remote.FailedAddress{}
	}
	for name, conn := range o.registry.Connections() {
		if br, ok := conn.(breakerReporter); ok {
			if h.Breakers == nil {
				h.Breakers = make(map[string]string)
			}
			h.Breakers[name] = br.BreakerState()
		}
	}
	return h
}
