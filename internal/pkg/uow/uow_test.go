package uow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSession records what the unit did with it.
type fakeSession struct {
	commits     int
	rollbacks   int
	releases    int
	commitErr   error
	rollbackErr error

	// commitCtxErr is the context error observed while committing.
	commitCtxErr error
}

func (s *fakeSession) Commit(ctx context.Context) error {
	s.commits++
	s.commitCtxErr = ctx.Err()
	return s.commitErr
}

func (s *fakeSession) Rollback(_ context.Context) error {
	s.rollbacks++
	return s.rollbackErr
}

func (s *fakeSession) Release() {
	s.releases++
}

type repos struct {
	name string
}

func openerFor(s *fakeSession, openErr error) Opener[repos] {
	return OpenerFunc[repos](func(_ context.Context) (Session, repos, error) {
		if openErr != nil {
			return nil, repos{}, openErr
		}
		return s, repos{name: "bound"}, nil
	})
}

func TestUnitOfWork_CommitLifecycle(t *testing.T) {
	session := &fakeSession{}
	u := New(openerFor(session, nil))
	assert.Equal(t, Idle, u.State())

	r, err := u.Begin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bound", r.name)
	assert.Equal(t, Active, u.State())

	require.NoError(t, u.Commit(context.Background()))
	assert.Equal(t, Committed, u.State())

	u.Close(context.Background())
	assert.Equal(t, Closed, u.State())
	assert.Equal(t, 1, session.commits)
	assert.Equal(t, 0, session.rollbacks)
	assert.Equal(t, 1, session.releases)
}

func TestUnitOfWork_CloseRollsBackActiveUnit(t *testing.T) {
	session := &fakeSession{}
	u := New(openerFor(session, nil))

	_, err := u.Begin(context.Background())
	require.NoError(t, err)

	u.Close(context.Background())
	u.Close(context.Background())

	assert.Equal(t, Closed, u.State())
	assert.Equal(t, 1, session.rollbacks)
	assert.Equal(t, 1, session.releases, "connection must be released exactly once")
}

func TestUnitOfWork_NotReusable(t *testing.T) {
	session := &fakeSession{}
	u := New(openerFor(session, nil))

	_, err := u.Begin(context.Background())
	require.NoError(t, err)
	u.Close(context.Background())

	_, err = u.Begin(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, u.Commit(context.Background()), ErrInvalidState)
}

func TestUnitOfWork_CommitBeforeBegin(t *testing.T) {
	u := New(openerFor(&fakeSession{}, nil))
	assert.ErrorIs(t, u.Commit(context.Background()), ErrInvalidState)
	assert.ErrorIs(t, u.Rollback(context.Background()), ErrInvalidState)
}

func TestUnitOfWork_CommitFailureRollsBack(t *testing.T) {
	commitErr := errors.New("connection reset")
	session := &fakeSession{commitErr: commitErr}
	u := New(openerFor(session, nil))

	_, err := u.Begin(context.Background())
	require.NoError(t, err)

	err = u.Commit(context.Background())
	assert.ErrorIs(t, err, commitErr)
	assert.Equal(t, RolledBack, u.State())
	assert.Equal(t, 1, session.rollbacks)
}

func TestUnitOfWork_CommitFailureJoinsRollbackError(t *testing.T) {
	commitErr := errors.New("connection reset")
	rollbackErr := errors.New("conn closed")
	session := &fakeSession{commitErr: commitErr, rollbackErr: rollbackErr}
	u := New(openerFor(session, nil))

	_, err := u.Begin(context.Background())
	require.NoError(t, err)

	err = u.Commit(context.Background())
	assert.ErrorIs(t, err, commitErr)
	assert.ErrorIs(t, err, rollbackErr)
	assert.Equal(t, RolledBack, u.State())
}

func TestRun_CommitFailureJoinsRollbackError(t *testing.T) {
	commitErr := errors.New("connection reset")
	rollbackErr := errors.New("conn closed")
	session := &fakeSession{commitErr: commitErr, rollbackErr: rollbackErr}

	err := Run(context.Background(), openerFor(session, nil), func(context.Context, repos) error { return nil })

	assert.ErrorIs(t, err, commitErr)
	assert.ErrorIs(t, err, rollbackErr)
	assert.Equal(t, 1, session.releases)
}

func TestUnitOfWork_BeginFailure(t *testing.T) {
	openErr := errors.New("pool exhausted")
	u := New(openerFor(nil, openErr))

	_, err := u.Begin(context.Background())
	assert.ErrorIs(t, err, openErr)
	assert.Equal(t, Closed, u.State())

	u.Close(context.Background())
}

func TestRun_CommitsOnSuccess(t *testing.T) {
	session := &fakeSession{}

	err := Run(context.Background(), openerFor(session, nil), func(_ context.Context, r repos) error {
		assert.Equal(t, "bound", r.name)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, session.commits)
	assert.Equal(t, 0, session.rollbacks)
	assert.Equal(t, 1, session.releases)
}

func TestRun_RollsBackOnError(t *testing.T) {
	session := &fakeSession{}
	workErr := errors.New("forced failure")

	err := Run(context.Background(), openerFor(session, nil), func(_ context.Context, _ repos) error {
		return workErr
	})

	assert.ErrorIs(t, err, workErr)
	assert.Equal(t, 0, session.commits)
	assert.Equal(t, 1, session.rollbacks)
	assert.Equal(t, 1, session.releases)
}

func TestRun_ReturnsOriginalErrorWhenRollbackFails(t *testing.T) {
	session := &fakeSession{rollbackErr: errors.New("rollback failed")}
	workErr := errors.New("forced failure")

	err := Run(context.Background(), openerFor(session, nil), func(_ context.Context, _ repos) error {
		return workErr
	})

	assert.ErrorIs(t, err, workErr)
	assert.NotContains(t, err.Error(), "rollback failed")
	assert.Equal(t, 1, session.releases)
}

func TestRun_RollsBackOnPanic(t *testing.T) {
	session := &fakeSession{}

	assert.Panics(t, func() {
		_ = Run(context.Background(), openerFor(session, nil), func(_ context.Context, _ repos) error {
			panic("boom")
		})
	})

	assert.Equal(t, 0, session.commits)
	assert.Equal(t, 1, session.rollbacks)
	assert.Equal(t, 1, session.releases)
}

func TestRun_FinalizesAfterCancellation(t *testing.T) {
	session := &fakeSession{}
	ctx, cancel := context.WithCancel(context.Background())

	err := Run(ctx, openerFor(session, nil), func(_ context.Context, _ repos) error {
		cancel()
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, session.commits)
	assert.NoError(t, session.commitCtxErr, "commit must not see the caller's cancellation")
	assert.Equal(t, 1, session.releases)
}
