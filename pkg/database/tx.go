package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE codes the service reacts to.
const (
	CodeUniqueViolation      = "23505"
	CodeSerializationFailure = "40001"
	CodeDeadlockDetected     = "40P01"
)

// Transactor runs a function inside a database transaction.
type Transactor interface {
	// InTx runs fn with a context whose querier is the transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type transactor struct{}

// NewTransactor returns a Transactor that works on the querier in context.
func NewTransactor() Transactor {
	return transactor{}
}

func (transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return RunInTx(ctx, fn)
}

// RunInTx begins a transaction on the querier in ctx and runs fn with it.
// When ctx already carries a transaction, pgx opens a SAVEPOINT instead, so a
// failing nested call rolls back only its own work.
func RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	q, ok := GetQuerier(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tx, err := q.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(SetQuerier(ctx, tx)); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HasCode reports whether err is a Postgres error with the given SQLSTATE.
func HasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return HasCode(err, CodeUniqueViolation)
}
