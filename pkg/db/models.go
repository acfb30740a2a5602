package db

import "time"

// RemoteAgent represents a row in the remote_agents table.
type RemoteAgent struct {
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	Enabled  bool      `json:"enabled"`
	Note     *string   `json:"note,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// DispatchRecord represents a row in the dispatch_log table.
type DispatchRecord struct {
	ID         int64     `json:"id"`
	AgentName  string    `json:"agent_name"`
	SessionID  string    `json:"session_id"`
	TaskID     string    `json:"task_id"`
	ContextID  string    `json:"context_id"`
	MessageID  string    `json:"message_id"`
	Outcome    string    `json:"outcome"`
	TaskState  *string   `json:"task_state,omitempty"`
	Error      *string   `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Created    time.Time `json:"created"`
}
