package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Runner executes a function inside a database transaction. The settlement
// orchestrator depends on this interface so tests can substitute a fake.
type Runner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}

// PoolRunner runs transactions against a pgx pool at RepeatableRead, which is
// sufficient with explicit FOR UPDATE locks on the shop settings and stock
// rows to keep concurrent settlements from sharing a counter or stock
// snapshot.
type PoolRunner struct {
	Pool *pgxpool.Pool
}

// WithTx begins a transaction, runs fn, and commits; any error rolls back.
func (r PoolRunner) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	if r.Pool == nil {
		return errors.New("db: pool not configured")
	}
	tx, err := r.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("db: commit tx: %w", err)
	}
	return nil
}

// SQLSTATE classes raised when concurrent transactions collide.
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
)

// IsSerializationFailure reports whether err is a transient transaction
// conflict that is safe to retry as a whole unit of work.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlstateSerializationFailure || pgErr.Code == sqlstateDeadlockDetected
	}
	return false
}
