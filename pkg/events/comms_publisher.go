package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/agent-orchestrator/pkg/commsutil"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// DispatchedSubject overrides the global dispatch event subject (e.g. from DISPATCH_EVENT_SUBJECT).
	DispatchedSubject string
	// AgentsChangedSubject overrides the agents changed subject.
	AgentsChangedSubject string
}

// CommsPublisher publishes orchestrator events to COMMS subjects.
type CommsPublisher struct {
	nc                   *comms.Conn
	dispatchedSubject    string
	agentsChangedSubject string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{
		nc:                   nc,
		dispatchedSubject:    commsutil.SubjectDispatched,
		agentsChangedSubject: commsutil.SubjectAgentsChanged,
	}
	if opts != nil {
		if opts.DispatchedSubject != "" {
			p.dispatchedSubject = opts.DispatchedSubject
		}
		if opts.AgentsChangedSubject != "" {
			p.agentsChangedSubject = opts.AgentsChangedSubject
		}
	}
	return p
}

// PublishAgentsChanged publishes an AgentsChangedEvent.
func (p *CommsPublisher) PublishAgentsChanged(_ context.Context, event *AgentsChangedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}
	if err := p.nc.Publish(p.agentsChangedSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.agentsChangedSubject, err))
		return err
	}
	slog.Debug(fmt.Sprintf("%s - Published agents changed (%s, %d agents)", commsPublisherLogPrefix, event.Reason, len(event.Agents)))
	return nil
}

// PublishDispatched publishes a DispatchedEvent to both the per-agent
// and global dispatch subjects.
func (p *CommsPublisher) PublishDispatched(_ context.Context, event *DispatchedEvent) error {
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}

	agentSubject := commsutil.BuildDispatchSubject(event.Agent)
	if err := p.nc.Publish(agentSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, agentSubject, err))
		return err
	}

	if err := p.nc.Publish(p.dispatchedSubject, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", commsPublisherLogPrefix, p.dispatchedSubject, err))
		return err
	}

	slog.Debug(fmt.Sprintf("%s - Published dispatch event for %s (%s)", commsPublisherLogPrefix, event.Agent, event.Outcome))
	return nil
}

var _ EventPublisher = (*CommsPublisher)(nil)
