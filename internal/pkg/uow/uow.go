// Package uow implements the Unit of Work: one transaction-scoped connection,
// repositories bound to it, and a single commit or rollback.
package uow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/notes-garden/internal/pkg/ctxlog"
	"github.com/bissquit/notes-garden/internal/pkg/metrics"
)

// ErrInvalidState is returned when an operation is not allowed in the unit's current state.
var ErrInvalidState = errors.New("unit of work: invalid state")

// FinalizeTimeout bounds commit, rollback and release once the caller's context is gone.
var FinalizeTimeout = 5 * time.Second

// State is a step of the unit lifecycle: Idle → Active → (Committed | RolledBack) → Closed.
type State int

const (
	Idle State = iota
	Active
	Committed
	RolledBack
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled_back"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is a transaction on a connection acquired for one unit.
type Session interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Release returns the connection. Called exactly once per session.
	Release()
}

// Opener acquires a connection, begins a transaction and binds fresh repositories to it.
type Opener[R any] interface {
	Open(ctx context.Context) (Session, R, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc[R any] func(ctx context.Context) (Session, R, error)

// Open calls f.
func (f OpenerFunc[R]) Open(ctx context.Context) (Session, R, error) {
	return f(ctx)
}

// UnitOfWork drives one transaction to a terminal state.
// It is request-scoped: not safe for concurrent use and not reusable after Close.
type UnitOfWork[R any] struct {
	opener  Opener[R]
	session Session
	state   State
	started time.Time
}

// New creates an idle unit.
func New[R any](opener Opener[R]) *UnitOfWork[R] {
	return &UnitOfWork[R]{opener: opener, state: Idle}
}

// State returns the current lifecycle state.
func (u *UnitOfWork[R]) State() State {
	return u.state
}

// Begin opens the transaction and returns the repositories bound to it.
func (u *UnitOfWork[R]) Begin(ctx context.Context) (R, error) {
	var zero R
	if u.state != Idle {
		return zero, fmt.Errorf("%w: begin while %s", ErrInvalidState, u.state)
	}

	session, repos, err := u.opener.Open(ctx)
	if err != nil {
		// Nothing was acquired, so there is nothing to release.
		u.state = Closed
		return zero, fmt.Errorf("begin unit of work: %w", err)
	}

	u.session = session
	u.state = Active
	u.started = time.Now()
	return repos, nil
}

// Commit persists all changes. A failed commit is rolled back; a rollback failure
// is joined to the returned commit error.
func (u *UnitOfWork[R]) Commit(ctx context.Context) error {
	if u.state != Active {
		return fmt.Errorf("%w: commit while %s", ErrInvalidState, u.state)
	}

	fctx, cancel := finalizeContext(ctx)
	defer cancel()

	if err := u.session.Commit(fctx); err != nil {
		rbErr := u.session.Rollback(fctx)
		u.finish(RolledBack, "commit_failed")
		return fmt.Errorf("commit unit of work: %w", errors.Join(err, rbErr))
	}

	u.finish(Committed, "committed")
	return nil
}

// Rollback discards all changes. It is a no-op once the unit reached a terminal state.
func (u *UnitOfWork[R]) Rollback(ctx context.Context) error {
	switch u.state {
	case Committed, RolledBack:
		return nil
	case Active:
	default:
		return fmt.Errorf("%w: rollback while %s", ErrInvalidState, u.state)
	}

	fctx, cancel := finalizeContext(ctx)
	defer cancel()

	err := u.session.Rollback(fctx)
	u.finish(RolledBack, "rolled_back")
	if err != nil {
		return fmt.Errorf("rollback unit of work: %w", err)
	}
	return nil
}

// Close rolls back an unfinished unit and releases the connection. Safe to call more than once.
func (u *UnitOfWork[R]) Close(ctx context.Context) {
	if u.state == Closed {
		return
	}

	if u.state == Active {
		if err := u.Rollback(ctx); err != nil {
			ctxlog.FromContext(ctx).Error("failed to rollback unit of work on close", "error", err)
		}
	}

	if u.session != nil {
		u.session.Release()
		u.session = nil
	}
	u.state = Closed
}

func (u *UnitOfWork[R]) finish(state State, outcome string) {
	u.state = state
	metrics.UnitOfWorkFinished.WithLabelValues(outcome).Inc()
	metrics.UnitOfWorkDuration.Observe(time.Since(u.started).Seconds())
}

// Run executes fn inside a new unit of work: commit when fn returns nil,
// rollback when it returns an error or panics, release in every case.
// The error from fn is returned unchanged and a rollback failure after it is only logged.
// A rollback failure after a failed commit is joined to the commit error.
func Run[R any](ctx context.Context, opener Opener[R], fn func(ctx context.Context, repos R) error) error {
	u := New(opener)

	repos, err := u.Begin(ctx)
	if err != nil {
		return err
	}
	// Also covers panics in fn: Close rolls back an active unit.
	defer u.Close(ctx)

	if err := fn(ctx, repos); err != nil {
		if rbErr := u.Rollback(ctx); rbErr != nil {
			ctxlog.FromContext(ctx).Error("failed to rollback unit of work",
				"cause", err,
				"error", rbErr,
			)
		}
		return err
	}

	return u.Commit(ctx)
}

// finalizeContext keeps finalization going after the caller's context is cancelled.
func finalizeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), FinalizeTimeout)
}
