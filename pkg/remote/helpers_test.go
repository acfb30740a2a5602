package remote

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/morezero/agent-orchestrator/pkg/a2a"
	"github.com/morezero/agent-orchestrator/pkg/card"
)

type fakeConn struct {
	d      *card.Descriptor
	closed atomic.Bool
}

func (c *fakeConn) Descriptor() *card.Descriptor { return c.d }

func (c *fakeConn) SendMessage(context.Context, *a2a.SendMessageRequest) (a2a.Response, error) {
	return &a2a.SuccessResponse{Result: &a2a.Task{ID: "t", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}}}, nil
}

func (c *fakeConn) Close() error {
	c.closed.Store(true)
	return nil
}

func fakeFactory(d *card.Descriptor) (Connection, error) {
	return &fakeConn{d: d}, nil
}

// fakeResolver serves descriptors from a map and counts calls per address.
type fakeResolver struct {
	mu    sync.Mutex
	cards map[string]*card.Descriptor
	errs  map[string]error
	calls map[string]int
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		cards: make(map[string]*card.Descriptor),
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeResolver) add(address, name, description string) {
	f.cards[address] = &card.Descriptor{Name: name, Description: description, URL: address + "/rpc", Address: address}
}

func (f *fakeResolver) Resolve(_ context.Context, address string) (*card.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[address]++
	if err, ok := f.errs[address]; ok {
		return nil, err
	}
	if d, ok := f.cards[address]; ok {
		return d, nil
	}
	return nil, &card.AddressUnreachableError{Address: address, Err: context.DeadlineExceeded}
}

func (f *fakeResolver) callCount(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}
