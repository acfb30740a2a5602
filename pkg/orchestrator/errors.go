package orchestrator

import (
	"fmt"
	"strings"

	"github.com/morezero/agent-orchestrator/pkg/remote"
)

// AgentNotFoundError is returned by Send for a name the registry does not hold.
type AgentNotFoundError struct {
	Name  string
	Known []string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("%s - agent %q not found (known: [%s])", sendLogPrefix, e.Name, strings.Join(e.Known, ", "))
}

func (e *AgentNotFoundError) Unwrap() error { return remote.ErrAgentNotFound }
