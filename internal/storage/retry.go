package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kittclouds/memoryd/internal/memerr"
)

// withRetry runs op once, and on a transient I/O failure retries it exactly
// once after a capped exponential backoff, per spec §7's propagation policy
// ("storage errors are retried at most once for transient I/O, exponential
// backoff capped at 250 ms"). Non-transient errors (constraint violations,
// context cancellation) are never retried.
func withRetry(ctx context.Context, op func() error) error {
	attempt := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(capped250ms(), 1),
		ctx,
	)

	err := backoff.Retry(attempt, b)
	if err == nil {
		return nil
	}
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return memerr.Wrap(memerr.StorageUnavailable, "storage operation failed after retry", err)
}

func capped250ms() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 50 * time.Millisecond
	eb.MaxInterval = 250 * time.Millisecond
	eb.MaxElapsedTime = 250 * time.Millisecond
	return eb
}

// isTransient classifies a database/sql error as retryable. SQLite under
// ncruces/go-sqlite3 surfaces lock contention and I/O busy errors as plain
// *sql errors wrapping a driver error string; we match on the driver's
// well-known codes rather than introspecting a specific error type so this
// keeps working if the underlying driver package is swapped.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, sql.ErrTxDone) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"database is locked", "busy", "disk i/o error", "interrupted"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
