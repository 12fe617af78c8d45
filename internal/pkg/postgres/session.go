package postgres

import (
	"context"
	"errors"

	"github.com/bissquit/notes-garden/internal/pkg/uow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Session is a transaction on a connection acquired from the pool for one unit of work.
type Session struct {
	conn *pgxpool.Conn
	tx   pgx.Tx
}

// BeginSession acquires a connection and starts a transaction on it.
func BeginSession(ctx context.Context, pool *pgxpool.Pool, opts pgx.TxOptions) (*Session, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, Translate("acquire connection", err)
	}

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		conn.Release()
		return nil, Translate("begin transaction", err)
	}

	return &Session{conn: conn, tx: tx}, nil
}

// Tx returns the session transaction.
func (s *Session) Tx() pgx.Tx {
	return s.tx
}

// Commit commits the transaction.
func (s *Session) Commit(ctx context.Context) error {
	return Translate("commit transaction", s.tx.Commit(ctx))
}

// Rollback rolls the transaction back. Rolling back a finished transaction is not an error.
func (s *Session) Rollback(ctx context.Context) error {
	err := s.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return Translate("rollback transaction", err)
}

// Release returns the connection to the pool.
// A connection still inside a transaction is destroyed by the pool instead of reused.
func (s *Session) Release() {
	s.conn.Release()
}

// NewOpener returns a unit-of-work opener whose repositories, built by bind,
// all run on the same fresh transaction.
func NewOpener[R any](pool *pgxpool.Pool, opts pgx.TxOptions, bind func(tx pgx.Tx) R) uow.Opener[R] {
	return uow.OpenerFunc[R](func(ctx context.Context) (uow.Session, R, error) {
		var zero R

		session, err := BeginSession(ctx, pool, opts)
		if err != nil {
			return nil, zero, err
		}
		return session, bind(session.Tx()), nil
	})
}
