package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/morezero/agent-orchestrator/pkg/a2a"
	"github.com/morezero/agent-orchestrator/pkg/card"
	"github.com/morezero/agent-orchestrator/pkg/remote"
	"github.com/morezero/agent-orchestrator/pkg/session"
)

const introspectTestPrefix = "orchestrator:introspect_test"

func TestListRemoteAgents_SingleAgent(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans nights out", echoTask(a2a.TaskStateCompleted))
	o := newTestOrchestrator(nil, planner.URL())

	o.BeforeTurn(context.Background(), &session.State{})

	got := o.ListRemoteAgents()
	if len(got) != 1 || got[0] != (remote.AgentInfo{Name: "Planner", Description: "plans nights out"}) {
		t.Errorf("%s - ListRemoteAgents = %+v", introspectTestPrefix, got)
	}
}

func TestListRemoteAgents_DuplicateNamesLastWins(t *testing.T) {
	first := newFakeAgent(t, "Social", "first social", echoTask(a2a.TaskStateCompleted))
	second := newFakeAgent(t, "Social", "second social", echoTask(a2a.TaskStateCompleted))
	o := newTestOrchestrator(nil, first.URL(), second.URL())

	o.Initialize(context.Background())

	got := o.ListRemoteAgents()
	if len(got) != 1 || got[0].Description != "second social" {
		t.Fatalf("%s - expected single second entry, got %+v", introspectTestPrefix, got)
	}

	// Dispatch goes to the surviving connection.
	if _, err := o.Send(context.Background(), "Social", "hi", &session.State{}); err != nil {
		t.Fatalf("%s - unexpected error: %v", introspectTestPrefix, err)
	}
	if first.LastRequest() != nil || second.LastRequest() == nil {
		t.Errorf("%s - dispatch should reach the second agent only", introspectTestPrefix)
	}
}

func TestEmptyAddressList(t *testing.T) {
	o := newTestOrchestrator(nil)

	res := o.BeforeTurn(context.Background(), &session.State{})
	if res.State != remote.StateDegraded {
		t.Errorf("%s - state = %s, want degraded", introspectTestPrefix, res.State)
	}
	list := o.ListRemoteAgents()
	if list == nil || len(list) != 0 {
		t.Errorf("%s - expected empty non-nil list, got %#v", introspectTestPrefix, list)
	}
	if o.Roster() != "" {
		t.Errorf("%s - expected empty roster, got %q", introspectTestPrefix, o.Roster())
	}

	_, err := o.Send(context.Background(), "Planner", "hi", &session.State{})
	var notFound *AgentNotFoundError
	if !errors.As(err, &notFound) || len(notFound.Known) != 0 {
		t.Errorf("%s - expected AgentNotFound with no known names, got %v", introspectTestPrefix, err)
	}
}

func TestPartialDegradation(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateCompleted))
	platform := newFakeAgent(t, "Platform", "posts", echoTask(a2a.TaskStateCompleted))
	down := newFakeAgent(t, "Down", "gone", echoTask(a2a.TaskStateCompleted))
	downURL := down.URL()
	down.Close()

	o := newTestOrchestrator(nil, planner.URL(), downURL, platform.URL())
	res := o.Initialize(context.Background())

	if res.State != remote.StateReady || !res.Partial() {
		t.Fatalf("%s - result = %+v", introspectTestPrefix, res)
	}
	names := []string{}
	for _, a := range o.ListRemoteAgents() {
		names = append(names, a.Name)
	}
	if strings.Join(names, ",") != "Planner,Platform" {
		t.Errorf("%s - agents = %v", introspectTestPrefix, names)
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	var sourceCalls int
	planner := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateCompleted))
	o := New(Params{
		Resolver: card.NewHTTPResolver(card.HTTPResolverParams{}),
		Factory:  remote.NewHTTPConnectionFactory(remote.HTTPConnectionParams{}),
		Source: func(context.Context) ([]string, error) {
			sourceCalls++
			return []string{planner.URL()}, nil
		},
	})

	o.Initialize(context.Background())
	connBefore, _ := o.Registry().Lookup("Planner")
	o.BeforeTurn(context.Background(), &session.State{})
	o.Initialize(context.Background())
	connAfter, _ := o.Registry().Lookup("Planner")

	if sourceCalls != 1 {
		t.Errorf("%s - address source consulted %d times, want 1", introspectTestPrefix, sourceCalls)
	}
	if connBefore != connAfter {
		t.Errorf("%s - connection identity changed", introspectTestPrefix)
	}
}

func TestCheckActiveAgent(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateCompleted))
	o := newTestOrchestrator(nil, planner.URL())

	state := &session.State{}
	if got := o.CheckActiveAgent(state).ActiveAgent; got != session.NoActiveAgent {
		t.Errorf("%s - fresh session = %q", introspectTestPrefix, got)
	}
	if got := o.CheckActiveAgent(nil).ActiveAgent; got != session.NoActiveAgent {
		t.Errorf("%s - nil session = %q", introspectTestPrefix, got)
	}

	o.BeforeTurn(context.Background(), state)
	if _, err := o.Send(context.Background(), "Planner", "hi", state); err != nil {
		t.Fatalf("%s - unexpected error: %v", introspectTestPrefix, err)
	}
	if got := o.CheckActiveAgent(state).ActiveAgent; got != "Planner" {
		t.Errorf("%s - active agent = %q", introspectTestPrefix, got)
	}
}

func TestRoster(t *testing.T) {
	social := newFakeAgent(t, "Social", "social graph", echoTask(a2a.TaskStateCompleted))
	planner := newFakeAgent(t, "Planner", "plans nights out", echoTask(a2a.TaskStateCompleted))
	o := newTestOrchestrator(nil, social.URL(), planner.URL())
	o.Initialize(context.Background())

	lines := strings.Split(o.Roster(), "\n")
	if len(lines) != 2 {
		t.Fatalf("%s - roster = %q", introspectTestPrefix, o.Roster())
	}
	var first map[string]string
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("%s - roster line is not JSON: %v", introspectTestPrefix, err)
	}
	if first["name"] != "Planner" || first["description"] != "plans nights out" || len(first) != 2 {
		t.Errorf("%s - first roster entry = %v", introspectTestPrefix, first)
	}
}

func TestReload_PublishesEvents(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateCompleted))
	rec := &recorder{}
	o := newTestOrchestrator(rec, planner.URL())

	o.Initialize(context.Background())
	o.Initialize(context.Background())
	res := o.Reload(context.Background())

	if res.State != remote.StateReady {
		t.Errorf("%s - state after reload = %s", introspectTestPrefix, res.State)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.changed) != 2 {
		t.Fatalf("%s - expected 2 agents changed events, got %d", introspectTestPrefix, len(rec.changed))
	}
	if rec.changed[0].Reason != ReasonInitialize || rec.changed[1].Reason != ReasonReload {
		t.Errorf("%s - reasons = %s, %s", introspectTestPrefix, rec.changed[0].Reason, rec.changed[1].Reason)
	}
	if rec.changed[1].State != "ready" || len(rec.changed[1].Agents) != 1 {
		t.Errorf("%s - reload event = %+v", introspectTestPrefix, rec.changed[1])
	}
}

func TestHealth(t *testing.T) {
	planner := newFakeAgent(t, "Planner", "plans", echoTask(a2a.TaskStateCompleted))
	o := newTestOrchestrator(nil, planner.URL(), "http://127.0.0.1:1")

	if h := o.Health(); h.Ready || h.State != "uninitialized" {
		t.Errorf("%s - health before init = %+v", introspectTestPrefix, h)
	}

	o.Initialize(context.Background())
	h := o.Health()
	if !h.Ready || h.State != "ready" || len(h.Agents) != 1 || len(h.Failed) != 1 {
		t.Errorf("%s - health = %+v", introspectTestPrefix, h)
	}
	if h.Breakers["Planner"] != "closed" {
		t.Errorf("%s - breakers = %v", introspectTestPrefix, h.Breakers)
	}
}
