package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	comms "github.com/nats-io/nats.go"
	"golang.org/x/sync/semaphore"

	"github.com/morezero/agent-orchestrator/pkg/commsutil"
	"github.com/morezero/agent-orchestrator/pkg/dispatcher"
)

// requestHandler serves orchestrator requests from COMMS. The subscription
// callback only admits a message; each admitted request is dispatched on its
// own goroutine so a slow agent does not hold up unrelated sessions.
type requestHandler struct {
	ctx     context.Context
	disp    *dispatcher.Dispatcher
	timeout time.Duration
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
}

// newRequestHandler creates a handler that runs at most maxInFlight requests
// at once. Further messages wait in the subscription until a slot frees up.
func newRequestHandler(ctx context.Context, disp *dispatcher.Dispatcher, requestTimeout time.Duration, maxInFlight int64) *requestHandler {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &requestHandler{
		ctx:     ctx,
		disp:    disp,
		timeout: requestTimeout,
		sem:     semaphore.NewWeighted(maxInFlight),
	}
}

// Handle is the COMMS message callback.
func (h *requestHandler) Handle(msg *comms.Msg) {
	if err := h.sem.Acquire(h.ctx, 1); err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping request on %s: %v", logPrefix, msg.Subject, err))
		respond(msg, &dispatcher.OrchestratorResponse{
			Ok: false,
			Error: &dispatcher.ErrorDetail{
				Code:      dispatcher.CodeInternal,
				Message:   "Orchestrator is shutting down",
				Retryable: true,
			},
		})
		return
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.sem.Release(1)
		h.serve(msg)
	}()
}

// Wait blocks until every admitted request has been answered.
func (h *requestHandler) Wait() {
	h.wg.Wait()
}

func (h *requestHandler) serve(msg *comms.Msg) {
	var req dispatcher.OrchestratorRequest
	if err := commsutil.DecodePayload(msg.Data, &req); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to decode request: %v", logPrefix, err))
		respond(msg, &dispatcher.OrchestratorResponse{
			Ok: false,
			Error: &dispatcher.ErrorDetail{
				Code:    dispatcher.CodeInvalidRequest,
				Message: "Failed to decode request",
			},
		})
		return
	}

	reqCtx, cancel := context.WithTimeout(h.ctx, effectiveTimeout(req.Ctx, h.timeout))
	defer cancel()

	respond(msg, h.disp.Dispatch(reqCtx, &req))
}

// effectiveTimeout honours a caller deadline shorter than the server limit.
func effectiveTimeout(invCtx *dispatcher.InvocationContext, limit time.Duration) time.Duration {
	if invCtx == nil {
		return limit
	}
	ms := invCtx.DeadlineMs
	if ms <= 0 {
		ms = invCtx.TimeoutMs
	}
	if ms > 0 && time.Duration(ms)*time.Millisecond < limit {
		return time.Duration(ms) * time.Millisecond
	}
	return limit
}

func respond(msg *comms.Msg, resp *dispatcher.OrchestratorResponse) {
	data, err := commsutil.EncodePayload(resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response: %v", logPrefix, err))
		return
	}
	if err := msg.Respond(data); err != nil {
		slog.Warn(fmt.Sprintf("%s - failed to respond: %v", logPrefix, err))
	}
}
