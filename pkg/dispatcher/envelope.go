// Package dispatcher routes incoming COMMS messages to orchestrator methods.
package dispatcher

import (
	"encoding/json"

	"github.com/morezero/agent-orchestrator/pkg/a2a"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/session"
)

// Error codes returned in ErrorDetail.Code.
const (
	CodeAgentNotFound   = "AGENT_NOT_FOUND"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeMethodNotFound  = "METHOD_NOT_FOUND"
	CodeInternal        = "INTERNAL_ERROR"
)

// OrchestratorRequest is the JSON envelope for incoming COMMS orchestrator requests.
type OrchestratorRequest struct {
	ID     string             `json:"id"`
	Type   string             `json:"type,omitempty"`
	Cap    string             `json:"cap,omitempty"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params,omitempty"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// OrchestratorResponse is the JSON envelope for COMMS orchestrator responses.
type OrchestratorResponse struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller. SessionKey selects the
// session whose state the call reads and updates; calls without one run
// against a throwaway session.
type InvocationContext struct {
	SessionKey    string `json:"sessionKey,omitempty"`
	TenantID      string `json:"tenantId,omitempty"`
	UserID        string `json:"userId,omitempty"`
	RequestID     string `json:"requestId,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
	DeadlineMs    int    `json:"deadlineMs,omitempty"`
	TimeoutMs     int    `json:"timeoutMs,omitempty"`
}

// SendInput is the params object of the send method.
type SendInput struct {
	AgentName string `json:"agentName"`
	Task      string `json:"task"`
	// MessageID, when set, becomes the outgoing message id.
	MessageID string `json:"messageId,omitempty"`
}

// SendOutput is the result of the send method. Task is nil when the agent
// did not answer with a task.
type SendOutput struct {
	Task    *a2a.Task     `json:"task"`
	Session session.State `json:"session"`
}

// BeginTurnOutput is the result of the beginTurn method.
type BeginTurnOutput struct {
	State   string                 `json:"state"`
	Agents  []string               `json:"agents"`
	Failed  []remote.FailedAddress `json:"failed"`
	Session session.State          `json:"session"`
}

// RosterOutput is the result of the roster method.
type RosterOutput struct {
	Roster string `json:"roster"`
}

// ReloadOutput is the result of the reload method.
type ReloadOutput struct {
	State  string                 `json:"state"`
	Agents []string               `json:"agents"`
	Failed []remote.FailedAddress `json:"failed"`
}
