package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}
type unitKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok && tx != nil
}

// Runner executes fn as one indivisible ledger operation. Implementations join an
// enclosing unit when ctx already carries one.
type Runner interface {
	Run(ctx context.Context, op string, fn func(ctx context.Context) error) error
}

// Manager opens a unit of work around fn. It commits when fn returns nil and
// discards every write otherwise.
type Manager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Unit tracks the compensations and post-commit hooks of one operation.
// In-memory stores register undo closures; SQL stores rely on the *sql.Tx.
// A Unit is confined to the goroutine running the operation.
type Unit struct {
	undo    []func()
	after   []func(context.Context)
	aborted []func(context.Context)
	done    bool
}

// Begin attaches a fresh Unit to ctx.
func Begin(ctx context.Context) (context.Context, *Unit) {
	u := &Unit{}
	return context.WithValue(ctx, unitKey{}, u), u
}

// Current returns the Unit carried by ctx.
func Current(ctx context.Context) (*Unit, bool) {
	u, ok := ctx.Value(unitKey{}).(*Unit)
	return u, ok && u != nil && !u.done
}

// OnRollback registers a compensation to run if the enclosing unit fails.
// Outside a unit it is a no-op: the write is already final.
func OnRollback(ctx context.Context, fn func()) {
	if u, ok := Current(ctx); ok {
		u.undo = append(u.undo, fn)
	}
}

// AfterCommit defers fn until the enclosing unit commits. Hooks run outside the
// ledger lock with a detached context, so a hook that calls back into the ledger
// starts a new, separately serialized operation. Outside a unit fn runs at once.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if u, ok := Current(ctx); ok {
		u.after = append(u.after, fn)
		return
	}
	fn(ctx)
}

// AfterRollback defers fn until the enclosing unit rolls back. It records facts
// that must outlive the failed operation, such as halting an account whose
// invariant broke. The hook runs outside the ledger lock like AfterCommit hooks.
// Outside a unit fn runs at once.
func AfterRollback(ctx context.Context, fn func(ctx context.Context)) {
	if u, ok := Current(ctx); ok {
		u.aborted = append(u.aborted, fn)
		return
	}
	fn(ctx)
}

// Rollback runs compensations in reverse registration order.
func (u *Unit) Rollback() {
	if u.done {
		return
	}
	u.done = true
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
	u.after = nil
}

// Abort rolls the unit back and returns its rollback hooks in order.
func (u *Unit) Abort() []func(context.Context) {
	if u.done {
		return nil
	}
	hooks := u.aborted
	u.aborted = nil
	u.Rollback()
	return hooks
}

// Commit marks the unit final and returns the post-commit hooks in order.
// The caller runs them once every lock has been released.
func (u *Unit) Commit() []func(context.Context) {
	u.done = true
	hooks := u.after
	u.undo = nil
	u.after = nil
	u.aborted = nil
	return hooks
}

// Detach strips the unit and SQL transaction from ctx, keeping deadlines and
// request-scoped values.
func Detach(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, unitKey{}, (*Unit)(nil))
	return context.WithValue(ctx, txKey, (*sql.Tx)(nil))
}

// RunHooks executes post-commit hooks against a detached context.
func RunHooks(ctx context.Context, hooks []func(context.Context)) {
	if len(hooks) == 0 {
		return
	}
	detached := Detach(ctx)
	for _, h := range hooks {
		h(detached)
	}
}
