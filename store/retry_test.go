package store

import (
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"busy", sqlite3.Error{Code: sqlite3.ErrBusy}, true},
		{"locked", sqlite3.Error{Code: sqlite3.ErrLocked}, true},
		{"constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, false},
		{"bad connection", driver.ErrBadConn, true},
		{"plain error", errors.New("boom"), false},
		{"not found", &NotFoundError{Entity: "task", Key: "x"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := isTransient(tc.err); got != tc.want {
				t.Fatalf("isTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestRunWithRetryRecoversTransientRead(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Microsecond}
	metrics := &Metrics{}

	calls := 0
	err := runWithRetry(policy, metrics, "ListTasks", false, func() error {
		calls++
		if calls < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}

	snap := metrics.Snapshot()
	if snap.RetryCount != 2 {
		t.Fatalf("retryCount = %d, want 2", snap.RetryCount)
	}
	if snap.LastRetry == nil || snap.LastRetry.Op != "ListTasks" {
		t.Fatalf("lastRetry = %+v", snap.LastRetry)
	}
}

func TestRunWithRetryExhaustsBudget(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Microsecond}
	metrics := &Metrics{}

	calls := 0
	err := runWithRetry(policy, metrics, "ListTasks", false, func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	if err == nil {
		t.Fatal("expected final failure")
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

// Writes stay single-shot unless explicitly configured, because only
// the caller knows whether repeating the operation is acceptable.
func TestRunWithRetryWritesOffByDefault(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Microsecond}
	metrics := &Metrics{}

	calls := 0
	err := runWithRetry(policy, metrics, "CreateTask", true, func() error {
		calls++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	if err == nil {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Fatalf("write retried %d times without opt-in", calls)
	}

	policy.RetryWrites = true
	calls = 0
	err = runWithRetry(policy, metrics, "CreateTask", true, func() error {
		calls++
		if calls < 2 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("opted-in write: err=%v calls=%d", err, calls)
	}
}

func TestRunWithRetryNonTransientImmediate(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Microsecond}
	metrics := &Metrics{}

	calls := 0
	boom := errors.New("constraint violated")
	err := runWithRetry(policy, metrics, "CreateTag", false, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("non-transient error retried: %d calls", calls)
	}
	if snap := metrics.Snapshot(); snap.RetryCount != 0 {
		t.Fatalf("retryCount = %d, want 0", snap.RetryCount)
	}
}
