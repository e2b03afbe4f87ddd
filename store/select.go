package store

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
)

// Config selects and tunes a backend at process start.
type Config struct {
	// Backend is "sqlite" or "file". Anything else is an error;
	// empty defaults to sqlite.
	Backend string
	// DataDir holds the JSON documents of the file backend and, when
	// SQLitePath is empty, the sqlite database file.
	DataDir            string
	SQLitePath         string
	SlowQueryThreshold time.Duration
	Retry              RetryPolicy
}

// Open constructs the one store instance the process uses. The caller
// injects it into every consumer; selection happens exactly once. If
// the sqlite backend fails to initialize, Open logs the failure and
// falls back to the file backend so the application still comes up.
func Open(cfg Config, logger *log.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.DataDir, "tasklist.db")
		}
		s, err := OpenSQL(SQLConfig{
			Path:               path,
			SlowQueryThreshold: cfg.SlowQueryThreshold,
			Retry:              cfg.Retry,
		}, logger)
		if err == nil {
			logger.Info("using sqlite store", "path", path)
			return s, nil
		}
		logger.Warn("sqlite store unavailable, falling back to file store", "err", err)
		fs, ferr := NewFileStore(cfg.DataDir, logger)
		if ferr != nil {
			return nil, fmt.Errorf("file store fallback: %w", ferr)
		}
		return fs, nil
	case "file":
		fs, err := NewFileStore(cfg.DataDir, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("using file store", "dir", cfg.DataDir)
		return fs, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
