package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectAgentsChanged = "orchestrator.agents.changed"
	SubjectDispatched    = "orchestrator.dispatched"
	dispatchSubjectRoot  = "orchestrator.dispatch"
)

// SubjectOrchestrator is the default request subject of the orchestrator service.
var SubjectOrchestrator = BuildCapabilitySubject("orchestrator", "host", 1)

// BuildCapabilitySubject builds a COMMS subject for a capability.
func BuildCapabilitySubject(app, name string, major int) string {
	return fmt.Sprintf("cap.%s.%s.v%d", SubjectToken(app), SubjectToken(name), major)
}

// BuildDispatchSubject builds the per-agent dispatch event subject.
func BuildDispatchSubject(agentName string) string {
	return dispatchSubjectRoot + "." + SubjectToken(agentName)
}

// SubjectToken turns an arbitrary name into a single subject token: lowercase,
// with separators, wildcards and whitespace replaced by '_'.
func SubjectToken(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, name)
}
