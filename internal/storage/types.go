package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records an authorization decision or a completed run.
// Keep it compact and schema-stable. It must never carry secrets,
// signatures, or downstream payloads.
type AuditEntry struct {
	At          time.Time
	Origin      string
	UserAgent   string
	Event       string // "rejected", "run"
	Check       string // failing check name for rejections
	RunID       string
	TasksOK     int
	TasksFailed int
	TookMS      int64
}
