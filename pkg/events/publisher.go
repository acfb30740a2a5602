package events

import (
	"context"
	"errors"
)

// EventPublisher is the interface for publishing orchestrator events.
type EventPublisher interface {
	PublishAgentsChanged(ctx context.Context, event *AgentsChangedEvent) error
	PublishDispatched(ctx context.Context, event *DispatchedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishAgentsChanged is a no-op.
func (p *NoOpPublisher) PublishAgentsChanged(_ context.Context, _ *AgentsChangedEvent) error {
	return nil
}

// PublishDispatched is a no-op.
func (p *NoOpPublisher) PublishDispatched(_ context.Context, _ *DispatchedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls callback functions (for testing).
// Nil callbacks are skipped.
type CallbackPublisher struct {
	OnAgentsChanged func(ctx context.Context, event *AgentsChangedEvent) error
	OnDispatched    func(ctx context.Context, event *DispatchedEvent) error
}

// PublishAgentsChanged calls OnAgentsChanged.
func (p *CallbackPublisher) PublishAgentsChanged(ctx context.Context, event *AgentsChangedEvent) error {
	if p.OnAgentsChanged == nil {
		return nil
	}
	return p.OnAgentsChanged(ctx, event)
}

// PublishDispatched calls OnDispatched.
func (p *CallbackPublisher) PublishDispatched(ctx context.Context, event *DispatchedEvent) error {
	if p.OnDispatched == nil {
		return nil
	}
	return p.OnDispatched(ctx, event)
}

// MultiPublisher fans events out to every publisher. All publishers are
// called; their errors are joined.
type MultiPublisher []EventPublisher

// PublishAgentsChanged publishes to every publisher.
func (m MultiPublisher) PublishAgentsChanged(ctx context.Context, event *AgentsChangedEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishAgentsChanged(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishDispatched publishes to every publisher.
func (m MultiPublisher) PublishDispatched(ctx context.Context, event *DispatchedEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishDispatched(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ EventPublisher = (*NoOpPublisher)(nil)
	_ EventPublisher = (*CallbackPublisher)(nil)
	_ EventPublisher = MultiPublisher(nil)
)
