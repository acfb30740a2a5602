package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/agent-orchestrator/pkg/a2a"
	"github.com/morezero/agent-orchestrator/pkg/card"
	"github.com/morezero/agent-orchestrator/pkg/events"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/session"
)

const sendTestPrefix = "orchestrator:send_test"

func TestSend_UnknownAgent(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans nights out", echoTask(a2a.TaskStateCompleted))
	o := newTestOrchestrator(nil, planner.URL())

	state := &session.State{}
	o.BeforeTurn(context.Background(), state)

	task, err := o.Send(context.Background(), "Unknown", "hi", state)
	if task != nil {
		t.Errorf("%s - expected nil task, got %+v", sendTestPrefix, task)
	}
	var notFound *AgentNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("%s - expected *AgentNotFoundError, got %v", sendTestPrefix, err)
	}
	if notFound.Name != "Unknown" || len(notFound.Known) != 1 || notFound.Known[0] != "Planner" {
		t.Errorf("%s - error = %+v", sendTestPrefix, notFound)
	}
	if !errors.Is(err, remote.ErrAgentNotFound) {
		t.Errorf("%s - expected errors.Is ErrAgentNotFound", sendTestPrefix)
	}
	if state.ActiveAgent != "" {
		t.Errorf("%s - unknown agent must not be recorded, got %q", sendTestPrefix, state.ActiveAgent)
	}
}

func TestSend_ErrorResponseIsEmpty(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans nights out",
		fixedReply(http.StatusOK, `{"jsonrpc":"2.0","id":"x","error":{"code":-32603,"message":"internal"}}`))
	rec := &recorder{}
	o := newTestOrchestrator(rec, planner.URL())

	state := &session.State{}
	o.BeforeTurn(context.Background(), state)

	task, err := o.Send(context.Background(), "Planner", "hi", state)
	if err != nil || task != nil {
		t.Fatalf("%s - expected Empty, got task=%v err=%v", sendTestPrefix, task, err)
	}
	if got := o.CheckActiveAgent(state).ActiveAgent; got != "Planner" {
		t.Errorf("%s - active agent = %q, want Planner", sendTestPrefix, got)
	}
	ev := rec.lastDispatched()
	if ev == nil || ev.Outcome != events.OutcomeEmpty || ev.Error == "" {
		t.Errorf("%s - dispatch event = %+v", sendTestPrefix, ev)
	}
}

func TestSend_RoundTripTask(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans nights out", echoTask(a2a.TaskStateWorking))
	o := newTestOrchestrator(nil, planner.URL())

	state := &session.State{}
	o.BeforeTurn(context.Background(), state)

	task, err := o.Send(context.Background(), "Planner", "Boston this weekend", state)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", sendTestPrefix, err)
	}
	if task == nil {
		t.Fatalf("%s - expected a task", sendTestPrefix)
	}

	req := planner.LastRequest()
	if req == nil {
		t.Fatalf("%s - agent received no request", sendTestPrefix)
	}
	m := req.Params.Message
	if task.ID != m.TaskID || task.ContextID != m.ContextID || task.Status.State != a2a.TaskStateWorking {
		t.Errorf("%s - task %+v does not match request ids %s/%s", sendTestPrefix, task, m.TaskID, m.ContextID)
	}
	if len(task.Artifacts) != 1 || task.Artifacts[0].Parts[0].Text != "done: Boston this weekend" {
		t.Errorf("%s - artifacts = %+v", sendTestPrefix, task.Artifacts)
	}
	if req.JSONRPC != "2.0" || req.Method != a2a.MethodSendMessage || req.ID != m.MessageID {
		t.Errorf("%s - request envelope = %+v", sendTestPrefix, req)
	}
	if m.Role != a2a.RoleUser || len(m.Parts) != 1 || m.Parts[0].Text != "Boston this weekend" {
		t.Errorf("%s - message = %+v", sendTestPrefix, m)
	}
}

func TestSend_FreshIDs(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateWorking))
	o := newTestOrchestrator(nil, planner.URL())

	state := &session.State{}
	if _, err := o.Send(context.Background(), "Planner", "hi", state); err != nil {
		t.Fatalf("%s - unexpected error: %v", sendTestPrefix, err)
	}

	m := planner.LastRequest().Params.Message
	for field, v := range map[string]string{"messageId": m.MessageID, "taskId": m.TaskID, "contextId": m.ContextID} {
		if _, err := uuid.Parse(v); err != nil {
			t.Errorf("%s - %s %q is not a uuid", sendTestPrefix, field, v)
		}
	}
	if state.TaskID != m.TaskID || state.ContextID != m.ContextID {
		t.Errorf("%s - state ids %s/%s not persisted from %s/%s", sendTestPrefix, state.TaskID, state.ContextID, m.TaskID, m.ContextID)
	}
}

func TestSend_ReusesSessionIDs(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateInputRequired))
	o := newTestOrchestrator(nil, planner.URL())

	state := &session.State{TaskID: "task-7", ContextID: "ctx-7"}
	state.SetMessageID("msg-7")

	if _, err := o.Send(context.Background(), "Planner", "hi", state); err != nil {
		t.Fatalf("%s - unexpected error: %v", sendTestPrefix, err)
	}
	req := planner.LastRequest()
	m := req.Params.Message
	if m.TaskID != "task-7" || m.ContextID != "ctx-7" || m.MessageID != "msg-7" || req.ID != "msg-7" {
		t.Errorf("%s - envelope ids = %s/%s/%s id=%s", sendTestPrefix, m.TaskID, m.ContextID, m.MessageID, req.ID)
	}

	// The second turn continues the same exchange.
	state.SetMessageID("")
	if _, err := o.Send(context.Background(), "Planner", "more", state); err != nil {
		t.Fatalf("%s - unexpected error: %v", sendTestPrefix, err)
	}
	m2 := planner.LastRequest().Params.Message
	if m2.TaskID != "task-7" || m2.ContextID != "ctx-7" {
		t.Errorf("%s - second turn ids = %s/%s", sendTestPrefix, m2.TaskID, m2.ContextID)
	}
	if m2.MessageID == "msg-7" {
		t.Errorf("%s - second turn should get a fresh message id", sendTestPrefix)
	}
}

func TestSend_TerminalTaskStartsNewTaskInSameContext(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateCompleted))
	o := newTestOrchestrator(nil, planner.URL())

	state := &session.State{}
	if _, err := o.Send(context.Background(), "Planner", "one", state); err != nil {
		t.Fatalf("%s - unexpected error: %v", sendTestPrefix, err)
	}
	first := planner.LastRequest().Params.Message
	if state.TaskID != "" {
		t.Errorf("%s - completed task should be cleared, got %q", sendTestPrefix, state.TaskID)
	}

	if _, err := o.Send(context.Background(), "Planner", "two", state); err != nil {
		t.Fatalf("%s - unexpected error: %v", sendTestPrefix, err)
	}
	second := planner.LastRequest().Params.Message
	if second.TaskID == first.TaskID {
		t.Errorf("%s - expected a new task id after completion", sendTestPrefix)
	}
	if second.ContextID != first.ContextID {
		t.Errorf("%s - context should carry over: %s vs %s", sendTestPrefix, first.ContextID, second.ContextID)
	}
}

func TestSend_NonTaskResultsAreEmpty(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"message result", http.StatusOK, `{"jsonrpc":"2.0","id":"x","result":{"kind":"message","role":"agent","messageId":"m","parts":[{"kind":"text","text":"hello"}]}}`},
		{"unknown result", http.StatusOK, `{"jsonrpc":"2.0","id":"x","result":{"foo":"bar"}}`},
		{"malformed body", http.StatusOK, `{"jsonrpc":"2.0","id":"x"}`},
		{"not json", http.StatusOK, `<html></html>`},
		{"server error", http.StatusBadGateway, `upstream down`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agent := newFakeAgent(t, "Planner", "plans", fixedReply(tt.status, tt.body))
			o := newTestOrchestrator(nil, agent.URL())
			state := &session.State{}

			task, err := o.Send(context.Background(), "Planner", "hi", state)
			if err != nil || task != nil {
				t.Errorf("%s - expected Empty, got task=%v err=%v", sendTestPrefix, task, err)
			}
			if state.ActiveAgent != "Planner" {
				t.Errorf("%s - active agent not recorded", sendTestPrefix)
			}
		})
	}
}

func TestSend_TransportErrorIsEmpty(t *testing.T) {
	agent := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateCompleted))
	rec := &recorder{}
	o := newTestOrchestrator(rec, agent.URL())
	o.Initialize(context.Background())

	agent.Close()

	task, err := o.Send(context.Background(), "Planner", "hi", &session.State{})
	if err != nil || task != nil {
		t.Fatalf("%s - expected Empty, got task=%v err=%v", sendTestPrefix, task, err)
	}
	if ev := rec.lastDispatched(); ev == nil || ev.Outcome != events.OutcomeError {
		t.Errorf("%s - dispatch event = %+v", sendTestPrefix, ev)
	}
}

func TestSend_Timeout(t *testing.T) {
	agent := newFakeAgent(t, "Planner", "plans", func(req *a2a.SendMessageRequest) (int, string) {
		time.Sleep(300 * time.Millisecond)
		return echoTask(a2a.TaskStateCompleted)(req)
	})
	o := New(Params{
		Resolver:    card.NewHTTPResolver(card.HTTPResolverParams{}),
		Factory:     remote.NewHTTPConnectionFactory(remote.HTTPConnectionParams{}),
		Source:      StaticAddresses([]string{agent.URL()}),
		SendTimeout: 20 * time.Millisecond,
	})

	task, err := o.Send(context.Background(), "Planner", "hi", &session.State{})
	if err != nil || task != nil {
		t.Errorf("%s - expected Empty after timeout, got task=%v err=%v", sendTestPrefix, task, err)
	}
}

func TestSend_LazyInitialization(t *testing.T) {
	agent := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateWorking))
	o := newTestOrchestrator(nil, agent.URL())

	if o.Registry().State() != remote.StateUninitialized {
		t.Fatalf("%s - registry should start uninitialized", sendTestPrefix)
	}
	task, err := o.Send(context.Background(), "Planner", "hi", nil)
	if err != nil || task == nil {
		t.Fatalf("%s - expected task on first send, got task=%v err=%v", sendTestPrefix, task, err)
	}
	if o.Registry().State() != remote.StateReady {
		t.Errorf("%s - state = %s", sendTestPrefix, o.Registry().State())
	}
}

func TestSend_DispatchEventCarriesIDs(t *testing.T) {
	agent := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateCompleted))
	rec := &recorder{}
	o := newTestOrchestrator(rec, agent.URL())

	state := &session.State{}
	o.BeforeTurn(context.Background(), state)
	if _, err := o.Send(context.Background(), "Planner", "hi", state); err != nil {
		t.Fatalf("%s - unexpected error: %v", sendTestPrefix, err)
	}

	m := agent.LastRequest().Params.Message
	ev := rec.lastDispatched()
	if ev == nil {
		t.Fatalf("%s - no dispatch event", sendTestPrefix)
	}
	if ev.Agent != "Planner" || ev.SessionID != state.SessionID || ev.TaskID != m.TaskID || ev.MessageID != m.MessageID {
		t.Errorf("%s - event = %+v", sendTestPrefix, ev)
	}
	if ev.Outcome != events.OutcomeTask || ev.TaskState != string(a2a.TaskStateCompleted) {
		t.Errorf("%s - outcome = %s/%s", sendTestPrefix, ev.Outcome, ev.TaskState)
	}
}

func TestSend_ActivatesSessionWithoutBeforeTurn(t *testing.T) {
	agent := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateWorking))
	rec := &recorder{}
	o := newTestOrchestrator(rec, agent.URL())

	state := &session.State{}
	task, err := o.Send(context.Background(), "Planner", "hi", state)
	if err != nil || task == nil {
		t.Fatalf("%s - expected task, got task=%v err=%v", sendTestPrefix, task, err)
	}
	if !state.Active {
		t.Errorf("%s - send should activate the session", sendTestPrefix)
	}
	if _, err := uuid.Parse(state.SessionID); err != nil {
		t.Errorf("%s - session id %q is not a uuid: %v", sendTestPrefix, state.SessionID, err)
	}
	if got := o.CheckActiveAgent(state).ActiveAgent; got != "Planner" {
		t.Errorf("%s - active agent = %q, want Planner", sendTestPrefix, got)
	}
	if ev := rec.lastDispatched(); ev == nil || ev.SessionID != state.SessionID {
		t.Errorf("%s - dispatch event should carry the session id, got %+v", sendTestPrefix, ev)
	}
}

func TestSend_CallerDeadlineDoesNotDegradeRegistry(t *testing.T) {
	agent := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateWorking))
	inner := card.NewHTTPResolver(card.HTTPResolverParams{})
	slow := card.ResolverFunc(func(ctx context.Context, address string) (*card.Descriptor, error) {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return nil, &card.AddressUnreachableError{Address: address, Err: ctx.Err()}
		}
		return inner.Resolve(ctx, address)
	})
	o := New(Params{
		Resolver: slow,
		Factory:  remote.NewHTTPConnectionFactory(remote.HTTPConnectionParams{}),
		Source:   StaticAddresses([]string{agent.URL()}),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if res := o.BeforeTurn(ctx, &session.State{}); res.State == remote.StateDegraded {
		t.Fatalf("%s - a short caller deadline must not degrade the registry", sendTestPrefix)
	}

	task, err := o.Send(context.Background(), "Planner", "hi", &session.State{})
	if err != nil || task == nil {
		t.Fatalf("%s - later send should reach Planner, got task=%v err=%v", sendTestPrefix, task, err)
	}
	if o.Registry().State() != remote.StateReady {
		t.Errorf("%s - state = %s, want ready", sendTestPrefix, o.Registry().State())
	}
}
