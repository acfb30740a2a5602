// Package agenttest runs fake remote agents over httptest for package tests.
package agenttest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/morezero/agent-orchestrator/pkg/a2a"
	"github.com/morezero/agent-orchestrator/pkg/card"
)

// ReplyFunc answers one message/send request with a status and JSON body.
type ReplyFunc func(req *a2a.SendMessageRequest) (int, string)

// Agent publishes a card at card.DefaultPath and answers message/send on /rpc.
type Agent struct {
	Name string
	srv  *httptest.Server

	mu       sync.Mutex
	reply    ReplyFunc
	requests []*a2a.SendMessageRequest
}

// New starts an Agent that is closed when the test ends.
func New(t testing.TB, name, description string, reply ReplyFunc) *Agent {
	t.Helper()
	a := &Agent{Name: name, reply: reply}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == card.DefaultPath:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"name":%q,"description":%q,"url":%q,"version":"1.0.0","capabilities":{"streaming":false},"skills":[]}`,
				name, description, a.srv.URL+"/rpc")
		case r.Method == http.MethodPost && r.URL.Path == "/rpc":
			a.serveRPC(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(a.srv.Close)
	return a
}

func (a *Agent) serveRPC(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	var req a2a.SendMessageRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	a.mu.Lock()
	a.requests = append(a.requests, &req)
	reply := a.reply
	a.mu.Unlock()

	status, out := reply(&req)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, out)
}

// URL is the agent's discovery address.
func (a *Agent) URL() string { return a.srv.URL }

// Close stops the agent, making its address unreachable.
func (a *Agent) Close() { a.srv.Close() }

// SetReply swaps the reply used for later requests.
func (a *Agent) SetReply(reply ReplyFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reply = reply
}

// Requests returns the message/send requests received so far.
func (a *Agent) Requests() []*a2a.SendMessageRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*a2a.SendMessageRequest, len(a.requests))
	copy(out, a.requests)
	return out
}

// LastRequest returns the most recent request, or nil.
func (a *Agent) LastRequest() *a2a.SendMessageRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return nil
	}
	return a.requests[len(a.requests)-1]
}

// EchoTask answers with a task in the given state that carries the request's ids.
func EchoTask(state a2a.TaskState) ReplyFunc {
	return func(req *a2a.SendMessageRequest) (int, string) {
		m := req.Params.Message
		text := ""
		if len(m.Parts) > 0 {
			text = m.Parts[0].Text
		}
		return http.StatusOK, fmt.Sprintf(
			`{"jsonrpc":"2.0","id":%q,"result":{"kind":"task","id":%q,"contextId":%q,"status":{"state":%q},"artifacts":[{"artifactId":"a1","parts":[{"kind":"text","text":%q}]}]}}`,
			req.ID, m.TaskID, m.ContextID, state, "done: "+text)
	}
}

// Fixed answers every request with the same status and body.
func Fixed(status int, body string) ReplyFunc {
	return func(*a2a.SendMessageRequest) (int, string) { return status, body }
}
