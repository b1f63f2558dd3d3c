package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

const (
	defaultMaxAttempts  = 5
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3
)

// PostgreSQL SQLSTATE codes that signal a lost race rather than a broken request.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateLockNotAvailable     = "55P03"
)

// isRetryableError reports whether err came from transactional contention: PostgreSQL
// serialization failures, deadlocks and lock timeouts, or a busy/locked SQLite database.
// Business-rule errors are never retryable.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryable) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected, sqlStateLockNotAvailable:
			return true
		}
		return false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}

// transact runs fn inside one database transaction. The whole transaction is retried with
// exponential backoff and jitter when it fails on contention; once attempts are exhausted the
// failure is surfaced wrapped in ErrRetryable. Any other error rolls back and returns as is.
//
// Retry schedule (defaults): 0 ms, 10 ms, 20 ms, 40 ms, 80 ms, each with up to 30% jitter.
func (s *libraryService) transact(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	var lastErr error

	for attempt := 0; attempt < s.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := s.baseDelay * time.Duration(1<<(attempt-1))
			jitter := rand.Float64() * float64(delay) * defaultJitterFactor //nolint:gosec // jitter only
			backoff := delay + time.Duration(jitter)

			log.Printf("[WARN] %s: transaction conflict (attempt %d/%d), retrying in %s: %v", op, attempt, s.maxAttempts, backoff, lastErr)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = s.db.WithContext(ctx).Transaction(fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}

	log.Printf("[ERROR] %s: giving up after %d attempts: %v", op, s.maxAttempts, lastErr)
	if errors.Is(lastErr, ErrRetryable) {
		return lastErr
	}
	return fmt.Errorf("%w: %s: %v", ErrRetryable, op, lastErr)
}
