// Package worker relays committed outbox entries to the message broker.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "impactledger/pkg/platform/audit"
)

// Outbox is the relay's view of the transactional outbox.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Message is one broker record.
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Producer publishes a batch synchronously; it returns an error unless every
// message was acknowledged.
type Producer interface {
	Publish(ctx context.Context, msgs []Message) error
}

// Metrics is the subset of process metrics the relay reports.
type Metrics interface {
	AddOutboxPublished(n int)
	IncrementOutboxFailure()
}

// RunInTx wraps one relay batch so fetch and mark share a transaction.
type RunInTx func(ctx context.Context, fn func(ctx context.Context) error) error

// Relay polls the outbox and publishes entries to topic "<prefix>.<category>".
// Delivery is at-least-once: entries are marked only after the broker acks.
type Relay struct {
	outbox   Outbox
	producer Producer
	runInTx  RunInTx
	prefix   string
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  Metrics
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// WithTx runs each batch inside a database transaction.
func WithTx(run RunInTx) Option {
	return func(r *Relay) { r.runInTx = run }
}

func NewRelay(outbox Outbox, producer Producer, topicPrefix string, opts ...Option) *Relay {
	r := &Relay{
		outbox:   outbox,
		producer: producer,
		prefix:   topicPrefix,
		interval: time.Second,
		batch:    100,
		logger:   slog.Default(),
		runInTx: func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Topic returns the topic an entry of the given aggregate type is published to.
func (r *Relay) Topic(aggregateType string) string {
	return r.prefix + "." + aggregateType
}

// Topics lists every topic the relay can publish to.
func (r *Relay) Topics() []string {
	return []string{
		r.Topic(string(audit.CategoryLedger)),
		r.Topic(string(audit.CategoryGovernance)),
		r.Topic(string(audit.CategoryRegistry)),
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if r.metrics != nil {
					r.metrics.IncrementOutboxFailure()
				}
				r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
				continue
			}
			if n > 0 {
				r.logger.DebugContext(ctx, "outbox relayed", "count", n)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	var relayed int
	err := r.runInTx(ctx, func(ctx context.Context) error {
		entries, err := r.outbox.FetchUnpublished(ctx, r.batch)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}
		msgs := make([]Message, 0, len(entries))
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			msgs = append(msgs, Message{
				Topic:   r.Topic(e.AggregateType),
				Key:     []byte(e.AggregateID),
				Value:   e.Payload,
				Headers: map[string]string{"event_type": e.EventType, "event_id": e.ID.String()},
			})
			ids = append(ids, e.ID)
		}
		if err := r.producer.Publish(ctx, msgs); err != nil {
			return fmt.Errorf("publish outbox batch: %w", err)
		}
		if err := r.outbox.MarkPublished(ctx, ids, time.Now()); err != nil {
			return err
		}
		relayed = len(entries)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if r.metrics != nil && relayed > 0 {
		r.metrics.AddOutboxPublished(relayed)
	}
	return relayed, nil
}
