package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Authus/internal/domain/session"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	DefaultTxTimeout = 5000 * time.Millisecond
	rollbackTimeout  = 2 * time.Second
)

var (
	ErrTxNotFound = errors.New("tx not found in context")
	ErrTxTimeout  = session.ErrUnitTimeout
	ErrTxDone     = errors.New("transaction already finished")
)

type Transactor interface {
	WithTx(ctx context.Context, function func(ctx context.Context) error) error
}

var _ Transactor = (*transactorImpl)(nil)

type transactorImpl struct {
	db      *DB
	logger  *zap.Logger
	timeout time.Duration
}

func NewTransactor(db *DB, logger *zap.Logger, timeout time.Duration) *transactorImpl {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &transactorImpl{
		db:      db,
		logger:  logger,
		timeout: timeout,
	}
}

// Unit is one open transaction bounded by the transactor timeout. Commit and
// Abort both release it; whichever runs second is a no-op, so deferring Abort
// right after Begin is always safe.
type Unit struct {
	tx     pgx.Tx
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	done   bool
}

func (t *transactorImpl) Begin(ctx context.Context) (*Unit, error) {
	txCtx, cancel := context.WithTimeout(ctx, t.timeout)

	tx, err := t.db.Pool.Begin(txCtx)
	if err != nil {
		err = timeoutAware(txCtx, fmt.Errorf("begin tx: %w", err))
		cancel()
		return nil, err
	}

	return &Unit{
		tx:     tx,
		ctx:    context.WithValue(txCtx, txInjector{}, tx),
		cancel: cancel,
		logger: t.logger,
	}, nil
}

// Context carries the transaction; repositories called with it join the unit.
func (u *Unit) Context() context.Context { return u.ctx }

func (u *Unit) Commit() error {
	if u.done {
		return ErrTxDone
	}
	u.done = true
	defer u.cancel()

	if err := u.ctx.Err(); err != nil {
		u.rollback()
		return timeoutAware(u.ctx, fmt.Errorf("commit: %w", err))
	}
	if err := u.tx.Commit(u.ctx); err != nil {
		u.logger.Error("commit", zap.Error(err))
		return timeoutAware(u.ctx, fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (u *Unit) Abort() {
	if u.done {
		return
	}
	u.done = true
	defer u.cancel()
	u.rollback()
}

func (u *Unit) rollback() {
	// the unit context may already be past its deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(u.ctx), rollbackTimeout)
	defer cancel()

	if err := u.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		u.logger.Error("rollback", zap.Error(err))
	}
}

// WithTx runs function inside a unit of work. A ctx that already carries a
// transaction is reused, so nested calls join the outer unit.
func (t *transactorImpl) WithTx(ctx context.Context, function func(ctx context.Context) error) error {
	if _, err := extractTx(ctx); err == nil {
		return function(ctx)
	}

	unit, err := t.Begin(ctx)
	if err != nil {
		return err
	}
	defer unit.Abort()

	if err := function(unit.Context()); err != nil {
		err = timeoutAware(unit.ctx, fmt.Errorf("function execution error: %w", err))
		unit.Abort()
		return err
	}

	return unit.Commit()
}

func timeoutAware(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, ErrTxTimeout) {
		return fmt.Errorf("%w: %w", ErrTxTimeout, err)
	}
	return err
}

type txInjector struct{}

func extractTx(ctx context.Context) (pgx.Tx, error) {
	tx, ok := ctx.Value(txInjector{}).(pgx.Tx)

	if !ok {
		return nil, ErrTxNotFound
	}

	return tx, nil
}

type execQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (db *DB) execQueryer(ctx context.Context) execQueryer {
	if tx, err := extractTx(ctx); err == nil && tx != nil {
		return tx
	}
	return db.Pool
}
