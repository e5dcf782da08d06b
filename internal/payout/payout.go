// Package payout records outgoing transfers inside ledger operations and hands
// committed transfers to an external Transferor.
//
// The ledger never calls out while it holds its lock: Record only writes a
// pending row, and the Dispatcher picks it up after the unit commits. Failed
// transfers are marked failed and left for an operator; there is no retry loop.
package payout

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"impactledger/internal/payout/models"
	"impactledger/pkg/domain"
	dErrors "impactledger/pkg/domain-errors"
	"impactledger/pkg/platform/tx"
	"impactledger/pkg/requestcontext"
)

// LeaseExpiredReason is the last_error of a transfer whose dispatch outlived its
// lease. The rail may or may not have moved the funds.
const LeaseExpiredReason = "dispatch lease expired, outcome unknown"

type Store interface {
	Create(ctx context.Context, t *models.Transfer) error
	// Claim moves up to limit pending transfers to dispatching, oldest first.
	Claim(ctx context.Context, limit int, at time.Time) ([]models.Transfer, error)
	Complete(ctx context.Context, id domain.TransferID, status models.Status, externalRef, lastError string, at time.Time) error
	// ExpireLeases fails dispatching transfers last touched before cutoff.
	ExpireLeases(ctx context.Context, cutoff time.Time, lastError string, at time.Time) ([]models.Transfer, error)
	ListByNGO(ctx context.Context, ngoID domain.NGOID) ([]models.Transfer, error)
}

// Transferor moves funds outside the ledger (bank rail, custodian, chain).
type Transferor interface {
	Transfer(ctx context.Context, t models.Transfer) (externalRef string, err error)
}

type Metrics interface {
	IncrementPayout(kind, status string)
}

// Recorder writes transfers within the caller's unit and wakes the dispatcher
// once the unit commits.
type Recorder struct {
	store Store
	kick  func()
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// OnCommit sets the function run after a unit that recorded transfers commits.
func (r *Recorder) OnCommit(fn func()) {
	r.kick = fn
}

func (r *Recorder) Record(ctx context.Context, kind models.Kind, ngoID domain.NGOID, reference string, recipient domain.Address, amount int64) (domain.TransferID, error) {
	t, err := models.NewTransfer(kind, ngoID, reference, recipient, amount, requestcontext.Now(ctx))
	if err != nil {
		return domain.TransferID{}, err
	}
	if err := r.store.Create(ctx, t); err != nil {
		return domain.TransferID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record transfer")
	}
	if r.kick != nil {
		kick := r.kick
		tx.AfterCommit(ctx, func(context.Context) { kick() })
	}
	return t.ID, nil
}

// ListByNGO returns the transfers recorded for an NGO, oldest first.
func (r *Recorder) ListByNGO(ctx context.Context, ngoID domain.NGOID) ([]models.Transfer, error) {
	return r.store.ListByNGO(ctx, ngoID)
}

// Dispatcher drains committed transfers to the Transferor.
type Dispatcher struct {
	store       Store
	transferor  Transferor
	runner      tx.Runner
	logger      *slog.Logger
	metrics     Metrics
	interval    time.Duration
	batchSize   int
	concurrency int
	lease       time.Duration
	wake        chan struct{}
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithInterval(interval time.Duration) Option {
	return func(d *Dispatcher) {
		if interval > 0 {
			d.interval = interval
		}
	}
}

func WithBatchSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithConcurrency(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// WithLeaseTimeout bounds how long a transfer may stay dispatching. It must
// exceed the Transferor's own timeout.
func WithLeaseTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.lease = d
		}
	}
}

func NewDispatcher(store Store, transferor Transferor, runner tx.Runner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		transferor:  transferor,
		runner:      runner,
		logger:      slog.Default(),
		interval:    5 * time.Second,
		batchSize:   50,
		concurrency: 4,
		lease:       10 * time.Minute,
		wake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Kick schedules a dispatch pass without blocking.
func (d *Dispatcher) Kick() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run dispatches on every tick or kick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	d.logger.InfoContext(ctx, "payout dispatcher started", "interval", d.interval, "concurrency", d.concurrency)
	for {
		select {
		case <-ctx.Done():
			d.logger.InfoContext(ctx, "payout dispatcher stopped")
			return nil
		case <-ticker.C:
		case <-d.wake:
		}
		if _, err := d.DispatchOnce(ctx); err != nil {
			d.logger.ErrorContext(ctx, "payout dispatch failed", "error", err)
		}
	}
}

// DispatchOnce fails expired leases, then claims one batch and sends it. It
// returns how many transfers were attempted.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	var (
		batch   []models.Transfer
		expired []models.Transfer
	)
	err := d.runner.Run(ctx, "payout.claim", func(ctx context.Context) error {
		now := requestcontext.Now(ctx)
		var err error
		if expired, err = d.store.ExpireLeases(ctx, now.Add(-d.lease), LeaseExpiredReason, now); err != nil {
			return err
		}
		batch, err = d.store.Claim(ctx, d.batchSize, now)
		return err
	})
	if err != nil {
		return 0, err
	}
	for _, t := range expired {
		d.logger.ErrorContext(ctx, "transfer lease expired, needs operator review",
			"transfer_id", t.ID, "kind", t.Kind, "recipient", t.Recipient, "amount", t.Amount, "attempts", t.Attempts)
		if d.metrics != nil {
			d.metrics.IncrementPayout(string(t.Kind), "expired")
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, t := range batch {
		g.Go(func() error {
			return d.send(gctx, t)
		})
	}
	return len(batch), g.Wait()
}

func (d *Dispatcher) send(ctx context.Context, t models.Transfer) error {
	status := models.StatusSent
	ref, sendErr := d.transferor.Transfer(ctx, t)
	lastError := ""
	if sendErr != nil {
		status = models.StatusFailed
		lastError = sendErr.Error()
		d.logger.WarnContext(ctx, "transfer failed",
			"transfer_id", t.ID, "kind", t.Kind, "recipient", t.Recipient, "amount", t.Amount, "error", sendErr)
	}
	if d.metrics != nil {
		d.metrics.IncrementPayout(string(t.Kind), string(status))
	}
	// The rail has already answered; shutdown must not drop the outcome.
	return d.runner.Run(context.WithoutCancel(ctx), "payout.complete", func(ctx context.Context) error {
		return d.store.Complete(ctx, t.ID, status, ref, lastError, requestcontext.Now(ctx))
	})
}

// LogTransferor acknowledges every transfer with a synthetic reference. It
// stands in for a real rail in development.
type LogTransferor struct {
	Logger *slog.Logger
}

func (l LogTransferor) Transfer(ctx context.Context, t models.Transfer) (string, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "transfer sent", "transfer_id", t.ID, "kind", t.Kind, "recipient", t.Recipient, "amount", t.Amount)
	return "log:" + t.ID.String(), nil
}
