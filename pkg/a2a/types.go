// Package a2a holds the agent-to-agent wire types the orchestrator sends and receives.
package a2a

// JSON-RPC and message constants.
const (
	JSONRPCVersion    = "2.0"
	MethodSendMessage = "message/send"
	RoleUser          = "user"
	PartTypeText      = "text"
	KindTask          = "task"
	KindMessage       = "message"
)

// Part is one content segment of a message. Only text parts are produced here.
type Part struct {
	Type string `json:"type,omitempty"`
	Kind string `json:"kind,omitempty"`
	Text string `json:"text"`
}

// Message is a single turn sent to (or returned by) a remote agent.
type Message struct {
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	MessageID string `json:"messageId"`
	TaskID    string `json:"taskId,omitempty"`
	ContextID string `json:"contextId,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// MessageSendParams is the params object of a message/send call.
type MessageSendParams struct {
	Message  Message        `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SendMessageRequest is the JSON-RPC request for message/send.
type SendMessageRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	Params  MessageSendParams `json:"params"`
}

// TaskState is the lifecycle state reported by a remote agent.
type TaskState string

const (
	TaskStateSubmitted     TaskState = "submitted"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateCanceled      TaskState = "canceled"
	TaskStateFailed        TaskState = "failed"
	TaskStateRejected      TaskState = "rejected"
	TaskStateAuthRequired  TaskState = "auth-required"
	TaskStateUnknown       TaskState = "unknown"
)

// IsTerminal reports whether no further messages can be sent to a task in this state.
func (s TaskState) IsTerminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateCanceled, TaskStateFailed, TaskStateRejected:
		return true
	}
	return false
}

// TaskStatus is a task's state and optional status message.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
}

// Artifact is an output produced by a task.
type Artifact struct {
	ArtifactID  string `json:"artifactId,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parts       []Part `json:"parts"`
}

// Task is the downstream unit of work. The orchestrator treats it as opaque
// beyond its id and state.
type Task struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId,omitempty"`
	Status    TaskStatus     `json:"status"`
	Artifacts []Artifact     `json:"artifacts,omitempty"`
	History   []Message      `json:"history,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Kind      string         `json:"kind,omitempty"`
}
