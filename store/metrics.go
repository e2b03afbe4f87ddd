package store

import (
	"sync"
	"time"
)

// RetryEvent records the most recent retried attempt.
type RetryEvent struct {
	Op   string    `json:"op"`
	Code string    `json:"code"`
	At   time.Time `json:"at"`
}

// SlowQueryEvent records the most recent operation that exceeded the
// slow-query threshold.
type SlowQueryEvent struct {
	Op       string        `json:"op"`
	Model    string        `json:"model"`
	Action   string        `json:"action"`
	Duration time.Duration `json:"durationNs"`
	At       time.Time     `json:"at"`
}

// MetricsSnapshot is the observability surface the transactional store
// exposes for a health endpoint. It is a point-in-time copy and safe to
// serialize.
type MetricsSnapshot struct {
	TransactionCount uint64          `json:"transactionCount"`
	RetryCount       uint64          `json:"retryCount"`
	SlowQueryCount   uint64          `json:"slowQueryCount"`
	LastRetry        *RetryEvent     `json:"lastRetry,omitempty"`
	LastSlowQuery    *SlowQueryEvent `json:"lastSlowQuery,omitempty"`
}

// Metrics counts transactions, retries and slow operations. All
// methods are safe for concurrent use.
type Metrics struct {
	mu           sync.Mutex
	transactions uint64
	retries      uint64
	slowQueries  uint64
	lastRetry    *RetryEvent
	lastSlow     *SlowQueryEvent
}

func (m *Metrics) recordTransaction() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions++
}

func (m *Metrics) recordRetry(op, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retries++
	m.lastRetry = &RetryEvent{Op: op, Code: code, At: time.Now().UTC()}
}

func (m *Metrics) recordSlowQuery(op, model, action string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowQueries++
	m.lastSlow = &SlowQueryEvent{Op: op, Model: model, Action: action, Duration: d, At: time.Now().UTC()}
}

// Snapshot returns a copy of the current counters and last events.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := MetricsSnapshot{
		TransactionCount: m.transactions,
		RetryCount:       m.retries,
		SlowQueryCount:   m.slowQueries,
	}
	if m.lastRetry != nil {
		e := *m.lastRetry
		snap.LastRetry = &e
	}
	if m.lastSlow != nil {
		e := *m.lastSlow
		snap.LastSlowQuery = &e
	}
	return snap
}
