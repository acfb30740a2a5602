package db

import (
	"context"
	"fmt"

	"github.com/morezero/agent-orchestrator/pkg/events"
)

const journalLogPrefix = "db:journal"

// dispatchInserter is the part of Repository JournalPublisher needs.
type dispatchInserter interface {
	InsertDispatch(ctx context.Context, rec DispatchRecord) (int64, error)
}

// JournalPublisher records dispatch events in dispatch_log. Agents changed
// events are not journaled.
type JournalPublisher struct {
	repo dispatchInserter
}

// NewJournalPublisher creates a JournalPublisher writing through repo.
func NewJournalPublisher(repo *Repository) *JournalPublisher {
	return &JournalPublisher{repo: repo}
}

// PublishAgentsChanged is a no-op.
func (p *JournalPublisher) PublishAgentsChanged(_ context.Context, _ *events.AgentsChangedEvent) error {
	return nil
}

// PublishDispatched inserts a journal row.
func (p *JournalPublisher) PublishDispatched(ctx context.Context, event *events.DispatchedEvent) error {
	if _, err := p.repo.InsertDispatch(ctx, recordFromEvent(event)); err != nil {
		return fmt.Errorf("%s - %w", journalLogPrefix, err)
	}
	return nil
}

func recordFromEvent(e *events.DispatchedEvent) DispatchRecord {
	rec := DispatchRecord{
		AgentName:  e.Agent,
		SessionID:  e.SessionID,
		TaskID:     e.TaskID,
		ContextID:  e.ContextID,
		MessageID:  e.MessageID,
		Outcome:    e.Outcome,
		DurationMs: e.DurationMs,
	}
	if e.TaskState != "" {
		s := e.TaskState
		rec.TaskState = &s
	}
	if e.Error != "" {
		s := e.Error
		rec.Error = &s
	}
	return rec
}

var _ events.EventPublisher = (*JournalPublisher)(nil)
