// internal/storage/transaction.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Retry settings for contended writes.
const (
	DefaultMaxAttempts = 5
	DefaultRetryDelay  = 50 * time.Millisecond
)

// TxRunner runs closures inside a transaction, retrying when SQLite reports
// the database busy or locked.
type TxRunner struct {
	db          *sql.DB
	maxAttempts int
	retryDelay  time.Duration
}

// NewTxRunner returns a runner with the default retry policy.
func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db, maxAttempts: DefaultMaxAttempts, retryDelay: DefaultRetryDelay}
}

// WithRetryDelay overrides the base backoff; attempt n waits n times this delay.
func (r *TxRunner) WithRetryDelay(d time.Duration) *TxRunner {
	r.retryDelay = d
	return r
}

// DB exposes the underlying pool for reads outside a transaction.
func (r *TxRunner) DB() *sql.DB {
	return r.db
}

// RunAtomic begins a transaction, runs fn and commits. The whole closure is
// retried on contention; other errors roll back and return immediately.
// fn may run more than once, so it must not have side effects outside tx.
func (r *TxRunner) RunAtomic(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !IsContention(err) {
			return err
		}

		lastErr = err
		customLog.Warnf("Storage: Write contention on attempt %d/%d: %v", attempt, r.maxAttempts, err)
		if attempt == r.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrWriteConflict, errors.Join(ctx.Err(), lastErr))
		case <-time.After(time.Duration(attempt) * r.retryDelay):
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrWriteConflict, r.maxAttempts, lastErr)
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			customLog.Warnf("Storage: Rollback failed: %v", rbErr)
		}
		return err
	}

	return tx.Commit()
}
