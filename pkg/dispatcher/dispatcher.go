package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/agent-orchestrator/pkg/orchestrator"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/session"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes COMMS requests to orchestrator methods.
type Dispatcher struct {
	orch     *orchestrator.Orchestrator
	sessions *session.Store
}

// NewDispatcher creates a new Dispatcher. A nil store gets a fresh one.
func NewDispatcher(orch *orchestrator.Orchestrator, sessions *session.Store) *Dispatcher {
	if sessions == nil {
		sessions = session.NewStore()
	}
	return &Dispatcher{orch: orch, sessions: sessions}
}

// Sessions returns the session store the dispatcher reads and updates.
func (d *Dispatcher) Sessions() *session.Store { return d.sessions }

// Dispatch routes a request to the appropriate orchestrator method and returns a response.
func (d *Dispatcher) Dispatch(ctx context.Context, req *OrchestratorRequest) *OrchestratorResponse {
	slog.Debug(fmt.Sprintf("%s - method=%s id=%s", logPrefix, req.Method, req.ID))

	if d.orch == nil {
		if isKnownMethod(req.Method) {
			return errorResponse(req.ID, CodeInternal, "orchestrator not configured", true)
		}
		return methodNotFound(req)
	}

	switch req.Method {
	case "beginTurn":
		return d.handleBeginTurn(ctx, req)
	case "send":
		return d.handleSend(ctx, req)
	case "listRemoteAgents":
		return &OrchestratorResponse{ID: req.ID, Ok: true, Result: d.orch.ListRemoteAgents()}
	case "checkActiveAgent":
		return d.handleCheckActiveAgent(req)
	case "roster":
		return &OrchestratorResponse{ID: req.ID, Ok: true, Result: &RosterOutput{Roster: d.orch.Roster()}}
	case "health":
		h := d.orch.Health()
		return &OrchestratorResponse{ID: req.ID, Ok: true, Result: &h}
	case "reload":
		return d.handleReload(ctx, req)
	default:
		return methodNotFound(req)
	}
}

// Methods lists the supported method names.
var Methods = []string{
	"beginTurn", "send", "listRemoteAgents", "checkActiveAgent",
	"roster", "health", "reload",
}

func isKnownMethod(method string) bool {
	for _, m := range Methods {
		if m == method {
			return true
		}
	}
	return false
}

func methodNotFound(req *OrchestratorRequest) *OrchestratorResponse {
	return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("Unknown method: %s", req.Method), false)
}

func (d *Dispatcher) handleBeginTurn(ctx context.Context, req *OrchestratorRequest) *OrchestratorResponse {
	var out *BeginTurnOutput
	err := d.withSession(req, func(state *session.State) error {
		res := d.orch.BeforeTurn(ctx, state)
		out = &BeginTurnOutput{
			State:   res.State.String(),
			Agents:  nonNilStrings(res.Agents),
			Failed:  nonNilFailed(res.Failed),
			Session: state.Snapshot(),
		}
		return nil
	})
	if err != nil {
		return orchestratorErrorToResponse(req.ID, err)
	}
	return &OrchestratorResponse{ID: req.ID, Ok: true, Result: out}
}

func (d *Dispatcher) handleSend(ctx context.Context, req *OrchestratorRequest) *OrchestratorResponse {
	var input SendInput
	if err := decodeParams(req.Params, &input); err != nil {
		return errorResponse(req.ID, CodeInvalidArgument, "Failed to parse send params", false)
	}
	if strings.TrimSpace(input.AgentName) == "" {
		return errorResponse(req.ID, CodeInvalidArgument, "agentName is required", false)
	}

	var out *SendOutput
	err := d.withSession(req, func(state *session.State) error {
		// The message id belongs to this turn only.
		state.SetMessageID(input.MessageID)
		task, err := d.orch.Send(ctx, input.AgentName, input.Task, state)
		if err != nil {
			return err
		}
		out = &SendOutput{Task: task, Session: state.Snapshot()}
		return nil
	})
	if err != nil {
		return orchestratorErrorToResponse(req.ID, err)
	}
	return &OrchestratorResponse{ID: req.ID, Ok: true, Result: out}
}

func (d *Dispatcher) handleCheckActiveAgent(req *OrchestratorRequest) *OrchestratorResponse {
	var out session.ActiveAgent
	_ = d.withSession(req, func(state *session.State) error {
		out = d.orch.CheckActiveAgent(state)
		return nil
	})
	return &OrchestratorResponse{ID: req.ID, Ok: true, Result: &out}
}

func (d *Dispatcher) handleReload(ctx context.Context, req *OrchestratorRequest) *OrchestratorResponse {
	res := d.orch.Reload(ctx)
	return &OrchestratorResponse{ID: req.ID, Ok: true, Result: &ReloadOutput{
		State:  res.State.String(),
		Agents: nonNilStrings(res.Agents),
		Failed: nonNilFailed(res.Failed),
	}}
}

// withSession runs fn on the caller's session, or on a throwaway one when the
// request carries no session key.
func (d *Dispatcher) withSession(req *OrchestratorRequest, fn func(*session.State) error) error {
	key := sessionKey(req.Ctx)
	if key == "" {
		return fn(&session.State{})
	}
	return d.sessions.With(key, fn)
}

func sessionKey(invCtx *InvocationContext) string {
	if invCtx == nil {
		return ""
	}
	return strings.TrimSpace(invCtx.SessionKey)
}

// decodeParams treats absent params as an empty object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilFailed(f []remote.FailedAddress) []remote.FailedAddress {
	if f == nil {
		return []remote.FailedAddress{}
	}
	return f
}

func errorResponse(id, code, message string, retryable bool) *OrchestratorResponse {
	return &OrchestratorResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

func orchestratorErrorToResponse(id string, err error) *OrchestratorResponse {
	var notFound *orchestrator.AgentNotFoundError
	if errors.As(err, &notFound) {
		return &OrchestratorResponse{
			ID: id,
			Ok: false,
			Error: &ErrorDetail{
				Code:      CodeAgentNotFound,
				Message:   fmt.Sprintf("Agent %s not found", notFound.Name),
				Details:   map[string]interface{}{"known": nonNilStrings(notFound.Known)},
				Retryable: false,
			},
		}
	}
	return errorResponse(id, CodeInternal, err.Error(), true)
}
