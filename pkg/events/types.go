// Package events defines event types and publisher interfaces for orchestrator events.
package events

// Dispatch outcomes.
const (
	OutcomeTask  = "task"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// AgentsChangedEvent is emitted when the set of registered agents changes
// (registry initialization or reload).
type AgentsChangedEvent struct {
	Reason    string   `json:"reason"`
	State     string   `json:"state"`
	Agents    []string `json:"agents"`
	Failed    []string `json:"failed"`
	Timestamp string   `json:"timestamp"`
}

// DispatchedEvent is emitted once per dispatch, whatever its outcome.
type DispatchedEvent struct {
	Agent      string `json:"agent"`
	SessionID  string `json:"sessionId"`
	TaskID     string `json:"taskId"`
	ContextID  string `json:"contextId"`
	MessageID  string `json:"messageId"`
	Outcome    string `json:"outcome"`
	TaskState  string `json:"taskState,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Timestamp  string `json:"timestamp"`
}
