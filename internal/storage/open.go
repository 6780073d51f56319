package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "costwatch/pkg/logx"
)

// Store is the minimal persistence API used by the orchestrator.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error

	// RecordAttempt notes one authorization attempt from origin at the
	// given time. CountAttempts returns how many attempts origin has made
	// since the given instant. Together they back the rolling-window rate
	// limiter.
	RecordAttempt(ctx context.Context, origin string, at time.Time) error
	CountAttempts(ctx context.Context, origin string, since time.Time) (int, error)

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
