package store

import (
	"database/sql/driver"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
)

// RetryPolicy controls how the transactional store retries transient
// engine faults. Writes are retried only when RetryWrites is set:
// every write here runs inside a single transaction, which makes a
// retry idempotent, but the default stays off so the choice to retry
// a write is always explicit.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	RetryWrites bool
}

// DefaultRetryPolicy retries reads three times starting at 50ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}
}

// isTransient classifies engine faults against an allow-list. Lock
// contention and dropped connections are worth retrying; constraint
// violations and everything else propagate immediately.
func isTransient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		}
		return false
	}
	return errors.Is(err, driver.ErrBadConn)
}

// errCode labels an error for the retry metrics.
func errCode(err error) string {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code.Error()
	}
	if errors.Is(err, driver.ErrBadConn) {
		return "bad_connection"
	}
	return "unknown"
}

// runWithRetry invokes fn up to MaxAttempts times, doubling the delay
// between attempts, as long as the failure classifies as transient and
// the operation is allowed to retry. There is no caller-facing
// cancellation: once invoked, the loop runs to success or final
// failure.
func runWithRetry(policy RetryPolicy, metrics *Metrics, op string, write bool, fn func() error) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		if write && !policy.RetryWrites {
			return err
		}
		if attempt == attempts {
			return err
		}
		metrics.recordRetry(op, errCode(err))
		time.Sleep(delay)
		delay *= 2
	}
	return err
}
