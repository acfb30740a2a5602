package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/agent-orchestrator/pkg/a2a"
	"github.com/morezero/agent-orchestrator/pkg/events"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/session"
)

const sendLogPrefix = "orchestrator:send"

// Send dispatches task to agentName within the session described by state.
//
// It returns the remote Task when the agent answers with one. Every other
// reply (JSON-RPC error, a non-Task result, a malformed body, a transport
// failure) yields (nil, nil). The only error returned to the caller is
// *AgentNotFoundError, or a wrapped remote.ErrRegistryNotReady when ctx ends
// before discovery completes.
func (o *Orchestrator) Send(ctx context.Context, agentName, task string, state *session.State) (*a2a.Task, error) {
	if state == nil {
		state = &session.State{}
	}

	o.Initialize(ctx)
	state.EnsureActive()

	conn, err := o.registry.Lookup(agentName)
	if err != nil {
		if errors.Is(err, remote.ErrAgentNotFound) {
			return nil, &AgentNotFoundError{Name: agentName, Known: o.registry.Names()}
		}
		return nil, fmt.Errorf("%s - lookup %q: %w", sendLogPrefix, agentName, err)
	}

	state.RecordActiveAgent(agentName)

	params := envelopeParams(task, state)
	req := a2a.NewSendMessageRequest(params)
	state.TaskID = params.TaskID
	state.ContextID = params.ContextID

	slog.Info(fmt.Sprintf("%s - Dispatching to %s task=%s context=%s message=%s", sendLogPrefix, agentName, params.TaskID, params.ContextID, params.MessageID))

	sendCtx := ctx
	if o.sendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, o.sendTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, sendErr := conn.SendMessage(sendCtx, req)
	result, outcome := classify(agentName, resp, sendErr)

	if result != nil {
		o.adoptTask(state, result)
	}
	o.publishDispatched(ctx, agentName, state, params, result, outcome, time.Since(start))
	return result, nil
}

// envelopeParams reuses the session's ids and falls back to fresh UUIDs.
func envelopeParams(text string, state *session.State) a2a.EnvelopeParams {
	p := a2a.EnvelopeParams{
		Text:      text,
		MessageID: state.MessageID(),
		TaskID:    state.TaskID,
		ContextID: state.ContextID,
	}
	if p.MessageID == "" {
		p.MessageID = uuid.NewString()
	}
	if p.TaskID == "" {
		p.TaskID = uuid.NewString()
	}
	if p.ContextID == "" {
		p.ContextID = uuid.NewString()
	}
	return p
}

// adoptTask records the ids the agent answered with. A terminal task accepts
// no further messages, so the next turn starts a new task in the same context.
func (o *Orchestrator) adoptTask(state *session.State, t *a2a.Task) {
	if t.ContextID != "" {
		state.ContextID = t.ContextID
	}
	if t.Status.State.IsTerminal() {
		state.TaskID = ""
		return
	}
	if t.ID != "" {
		state.TaskID = t.ID
	}
}

type outcome struct {
	kind string
	err  string
}

// classify maps every reply shape to a Task or to Empty.
func classify(agentName string, resp a2a.Response, sendErr error) (*a2a.Task, outcome) {
	if sendErr != nil {
		if errors.Is(sendErr, a2a.ErrMalformedResponse) {
			slog.Warn(fmt.Sprintf("%s - %s sent a malformed reply: %v", sendLogPrefix, agentName, sendErr))
		} else {
			slog.Error(fmt.Sprintf("%s - Dispatch to %s failed: %v", sendLogPrefix, agentName, sendErr))
		}
		return nil, outcome{kind: events.OutcomeError, err: sendErr.Error()}
	}

	switch r := resp.(type) {
	case *a2a.ErrorResponse:
		msg := "error response without error member"
		if r.Error != nil {
			msg = r.Error.Error()
		}
		slog.Warn(fmt.Sprintf("%s - %s answered with an error: %s", sendLogPrefix, agentName, msg))
		return nil, outcome{kind: events.OutcomeEmpty, err: msg}
	case *a2a.SuccessResponse:
		switch res := r.Result.(type) {
		case *a2a.Task:
			slog.Info(fmt.Sprintf("%s - %s returned task %s (%s)", sendLogPrefix, agentName, res.ID, res.Status.State))
			return res, outcome{kind: events.OutcomeTask}
		case *a2a.Message:
			slog.Info(fmt.Sprintf("%s - %s replied with a message, not a task", sendLogPrefix, agentName))
			return nil, outcome{kind: events.OutcomeEmpty}
		case *a2a.UnknownResult:
			slog.Warn(fmt.Sprintf("%s - %s returned an unrecognized result", sendLogPrefix, agentName))
			return nil, outcome{kind: events.OutcomeEmpty, err: "unrecognized result"}
		default:
			slog.Warn(fmt.Sprintf("%s - %s returned a success without a result", sendLogPrefix, agentName))
			return nil, outcome{kind: events.OutcomeEmpty, err: "missing result"}
		}
	default:
		slog.Warn(fmt.Sprintf("%s - %s produced no reply", sendLogPrefix, agentName))
		return nil, outcome{kind: events.OutcomeEmpty, err: "no reply"}
	}
}

func (o *Orchestrator) publishDispatched(ctx context.Context, agentName string, state *session.State, p a2a.EnvelopeParams, t *a2a.Task, out outcome, took time.Duration) {
	event := &events.DispatchedEvent{
		Agent:      agentName,
		SessionID:  state.SessionID,
		TaskID:     p.TaskID,
		ContextID:  p.ContextID,
		MessageID:  p.MessageID,
		Outcome:    out.kind,
		Error:      out.err,
		DurationMs: took.Milliseconds(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if t != nil {
		event.TaskState = string(t.Status.State)
	}
	// The dispatch context may already be done; events are best effort either way.
	if err := o.publisher.PublishDispatched(context.WithoutCancel(ctx), event); err != nil {
		slog.Warn(fmt.Sprintf("%s - Failed to publish dispatch event: %v", sendLogPrefix, err))
	}
}
