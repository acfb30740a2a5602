// Package session holds the per-conversation correlation state carried
// across dispatches.
package session

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

const logPrefix = "session:state"

// NoActiveAgent is reported when no agent has been addressed in the session.
const NoActiveAgent = "None"

// MetadataMessageID is the InputMessageMetadata key for the caller-supplied message id.
const MetadataMessageID = "message_id"

// State is the mutable record for one session. Empty strings mean "none".
// A State is owned by one flow at a time and is not safe for concurrent use.
type State struct {
	SessionID            string            `json:"sessionId"`
	Active               bool              `json:"sessionActive"`
	ActiveAgent          string            `json:"activeAgent"`
	TaskID               string            `json:"taskId"`
	ContextID            string            `json:"contextId"`
	InputMessageMetadata map[string]string `json:"inputMessageMetadata,omitempty"`
}

// ActiveAgent is the answer to "who is the session talking to".
type ActiveAgent struct {
	ActiveAgent string `json:"active_agent"`
}

// EnsureActive marks the session active with a fresh id if it is not already.
// It reports whether anything changed.
func (s *State) EnsureActive() bool {
	if s.Active {
		return false
	}
	s.SessionID = uuid.NewString()
	s.Active = true
	slog.Debug(fmt.Sprintf("%s - Activated session %s", logPrefix, s.SessionID))
	return true
}

// RecordActiveAgent remembers the agent the session last addressed.
func (s *State) RecordActiveAgent(name string) {
	s.ActiveAgent = name
}

// DescribeActiveAgent reports the active agent, or NoActiveAgent.
func (s *State) DescribeActiveAgent() ActiveAgent {
	if s.Active && s.ActiveAgent != "" {
		return ActiveAgent{ActiveAgent: s.ActiveAgent}
	}
	return ActiveAgent{ActiveAgent: NoActiveAgent}
}

// MessageID returns the caller-supplied message id, if any.
func (s *State) MessageID() string {
	if s.InputMessageMetadata == nil {
		return ""
	}
	return s.InputMessageMetadata[MetadataMessageID]
}

// SetMessageID stores the caller-supplied message id for the next dispatch.
func (s *State) SetMessageID(id string) {
	if s.InputMessageMetadata == nil {
		s.InputMessageMetadata = make(map[string]string)
	}
	if id == "" {
		delete(s.InputMessageMetadata, MetadataMessageID)
		return
	}
	s.InputMessageMetadata[MetadataMessageID] = id
}

// Snapshot returns a copy safe to hand to another goroutine.
func (s *State) Snapshot() State {
	cp := *s
	if s.InputMessageMetadata != nil {
		cp.InputMessageMetadata = make(map[string]string, len(s.InputMessageMetadata))
		for k, v := range s.InputMessageMetadata {
			cp.InputMessageMetadata[k] = v
		}
	}
	return cp
}
