// Package publisher emits ledger events with fail-closed semantics.
//
// Emit writes the event through the audit store inside the caller's unit of work:
// if the write fails the caller's operation fails, and if the operation later rolls
// back the event disappears with it. In-process subscribers (webhook and socket
// fan-out live outside the core) are notified only after the unit commits.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	audit "impactledger/pkg/platform/audit"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

// Subscriber receives committed events. It runs outside the ledger lock and must
// not assume the ledger state is unchanged since the event.
type Subscriber func(ctx context.Context, event audit.Event)

// Publisher emits events to a store and fans committed events out to subscribers.
type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers []Subscriber
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithSubscriber registers a committed-event subscriber at construction.
func WithSubscriber(sub Subscriber) Option {
	return func(p *Publisher) {
		p.subscribers = append(p.subscribers, sub)
	}
}

// New creates a publisher over store.
func New(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Subscribe adds a committed-event subscriber.
func (p *Publisher) Subscribe(sub Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, sub)
}

// Emit persists event in the current unit of work. The caller MUST fail its
// operation when Emit returns an error.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return fmt.Errorf("audit event requires Action")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	if err := p.store.Append(ctx, event); err != nil {
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "event persistence failed",
				"action", event.Action,
				"subject", event.Subject,
				"error", err,
			)
		}
		return fmt.Errorf("event persistence failed: %w", err)
	}

	tx.AfterCommit(ctx, func(ctx context.Context) {
		p.notify(ctx, event)
	})
	return nil
}

func (p *Publisher) notify(ctx context.Context, event audit.Event) {
	p.mu.RLock()
	subs := append([]Subscriber(nil), p.subscribers...)
	p.mu.RUnlock()
	for _, sub := range subs {
		sub(ctx, event)
	}
}

// List returns events recorded for a subject.
func (p *Publisher) List(ctx context.Context, subject string) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subject)
}

// Recent returns the most recent events, newest first.
func (p *Publisher) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}
