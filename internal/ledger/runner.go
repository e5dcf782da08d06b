// Package ledger runs every exposed operation as one serialized, all-or-nothing
// unit of work.
//
// Runner opens a tx.Unit inside a tx.Manager transaction. Stores record their
// compensations on the unit (memory backend) or write through the SQL transaction
// carried in the context (Postgres backend). If fn fails the unit rolls back and
// the transaction aborts, so no write of the call is observable. Post-commit hooks
// run only after the manager released its lock.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "impactledger/pkg/domain-errors"
	"impactledger/pkg/platform/tx"
)

// Metrics is the subset of process metrics the runner reports.
type Metrics interface {
	ObserveOperation(op, code string, d time.Duration)
}

// Runner implements tx.Runner.
type Runner struct {
	manager tx.Manager
	tracer  trace.Tracer
	logger  *slog.Logger
	metrics Metrics
}

type Option func(*Runner)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) { r.tracer = t }
}

func NewRunner(manager tx.Manager, opts ...Option) *Runner {
	r := &Runner{
		manager: manager,
		tracer:  otel.Tracer("impactledger/ledger"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes fn as operation op. A call made while ctx already carries a unit
// joins it: the outer operation owns commit and rollback.
func (r *Runner) Run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if _, ok := tx.Current(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation aborted: context cancelled")
	}

	ctx, span := r.tracer.Start(ctx, "ledger."+op, trace.WithAttributes(attribute.String("ledger.op", op)))
	defer span.End()
	start := time.Now()

	var hooks, aborted []func(context.Context)
	err := r.manager.RunInTx(ctx, func(ctx context.Context) error {
		ctx, unit := tx.Begin(ctx)
		defer unit.Rollback() // no-op once committed; covers panics
		if err := fn(ctx); err != nil {
			aborted = unit.Abort()
			return err
		}
		hooks = unit.Commit()
		return nil
	})
	err = normalize(err)

	code := "ok"
	if err != nil {
		code = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		if code == string(dErrors.CodeInternal) || code == string(dErrors.CodeInvariantViolation) {
			r.logger.ErrorContext(ctx, "ledger operation failed", "op", op, "error", err)
		}
	}
	if r.metrics != nil {
		r.metrics.ObserveOperation(op, code, time.Since(start))
	}
	if err != nil {
		tx.RunHooks(ctx, aborted)
		return err
	}

	tx.RunHooks(ctx, hooks)
	return nil
}

// normalize gives context failures a stable code; everything else passes through.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "operation timed out")
	}
	return err
}
