package orchestrator

import (
	"encoding/json"
	"strings"

	"github.com/morezero/agent-orchestrator/pkg/card"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/session"
)

// ListRemoteAgents returns the registered agents sorted by name. The slice is
// empty, never nil, before discovery or when no agent is reachable.
func (o *Orchestrator) ListRemoteAgents() []remote.AgentInfo {
	return o.registry.ListDescriptors()
}

// CheckActiveAgent reports which agent the session is talking to.
func (o *Orchestrator) CheckActiveAgent(state *session.State) session.ActiveAgent {
	if state == nil {
		return session.ActiveAgent{ActiveAgent: session.NoActiveAgent}
	}
	return state.DescribeActiveAgent()
}

// Roster renders the registered agents as newline-separated JSON objects for
// inclusion in the decision layer's instructions.
func (o *Orchestrator) Roster() string {
	agents := o.registry.ListDescriptors()
	lines := make([]string, 0, len(agents))
	for _, a := range agents {
		data, err := json.Marshal(a)
		if err != nil {
			continue
		}
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n")
}

// Descriptor returns the card of a registered agent, or nil.
func (o *Orchestrator) Descriptor(name string) *card.Descriptor {
	return o.registry.Descriptor(name)
}
