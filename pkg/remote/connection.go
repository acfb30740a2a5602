// Package remote holds the live connections to remote agents and the registry
// that discovers them.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/morezero/agent-orchestrator/pkg/a2a"
	"github.com/morezero/agent-orchestrator/pkg/card"
)

const connectionLogPrefix = "remote:connection"

const (
	defaultMaxFailures uint32 = 5
	defaultOpenTimeout        = 30 * time.Second
	defaultInterval           = 60 * time.Second
	maxReplyBytes             = 8 << 20
)

// Connection is a reusable channel to one remote agent.
type Connection interface {
	Descriptor() *card.Descriptor
	SendMessage(ctx context.Context, req *a2a.SendMessageRequest) (a2a.Response, error)
	Close() error
}

// ConnectionFactory builds the Connection for a resolved descriptor.
type ConnectionFactory func(d *card.Descriptor) (Connection, error)

// HTTPConnectionParams configures HTTPConnection. Zero values use defaults.
type HTTPConnectionParams struct {
	Client      *http.Client
	MaxFailures uint32
	OpenTimeout time.Duration
}

// HTTPConnection posts JSON-RPC requests to the agent's service URL. Each
// connection owns a circuit breaker that opens after MaxFailures consecutive
// transport failures.
type HTTPConnection struct {
	descriptor *card.Descriptor
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker[a2a.Response]
}

// NewHTTPConnection creates a connection for d.
func NewHTTPConnection(d *card.Descriptor, params HTTPConnectionParams) *HTTPConnection {
	client := params.Client
	if client == nil {
		client = &http.Client{}
	}
	maxFailures := params.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	openTimeout := params.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}

	cb := gobreaker.NewCircuitBreaker[a2a.Response](gobreaker.Settings{
		Name:        "agent:" + d.Name,
		MaxRequests: 1,
		Interval:    defaultInterval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn(fmt.Sprintf("%s - Circuit breaker %s: %s -> %s", connectionLogPrefix, name, from, to))
		},
		// A reply that arrived but could not be classified says nothing about
		// the agent's availability.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, a2a.ErrMalformedResponse)
		},
	})

	return &HTTPConnection{descriptor: d, client: client, breaker: cb}
}

// NewHTTPConnectionFactory returns a ConnectionFactory producing HTTPConnections.
func NewHTTPConnectionFactory(params HTTPConnectionParams) ConnectionFactory {
	return func(d *card.Descriptor) (Connection, error) {
		if d == nil || d.URL == "" {
			return nil, fmt.Errorf("%s - descriptor has no service url", connectionLogPrefix)
		}
		return NewHTTPConnection(d, params), nil
	}
}

// Descriptor returns the card this connection was built from.
func (c *HTTPConnection) Descriptor() *card.Descriptor { return c.descriptor }

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (c *HTTPConnection) BreakerState() string { return c.breaker.State().String() }

// SendMessage performs one message/send round trip. A reply that cannot be
// classified is returned as an error wrapping a2a.ErrMalformedResponse.
func (c *HTTPConnection) SendMessage(ctx context.Context, req *a2a.SendMessageRequest) (a2a.Response, error) {
	resp, err := c.breaker.Execute(func() (a2a.Response, error) {
		return c.post(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%s - agent %q circuit open: %w", connectionLogPrefix, c.descriptor.Name, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *HTTPConnection) post(ctx context.Context, req *a2a.SendMessageRequest) (a2a.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%s - marshal request: %w", connectionLogPrefix, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.descriptor.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s - build request: %w", connectionLogPrefix, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s - post to %s: %w", connectionLogPrefix, c.descriptor.URL, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxReplyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s - read reply from %s: %w", connectionLogPrefix, c.descriptor.URL, err)
	}

	decoded, decodeErr := a2a.DecodeResponse(body)
	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		// Some agents send JSON-RPC errors with a non-2xx status.
		if er, ok := decoded.(*a2a.ErrorResponse); ok && decodeErr == nil {
			return er, nil
		}
		return nil, fmt.Errorf("%s - agent %q returned status %d", connectionLogPrefix, c.descriptor.Name, httpResp.StatusCode)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	return decoded, nil
}

// Close releases idle connections held by the client.
func (c *HTTPConnection) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

var _ Connection = (*HTTPConnection)(nil)
