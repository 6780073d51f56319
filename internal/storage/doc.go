package storage

// Package storage provides the optional persistence layer used by the
// orchestrator.
//
// It currently supports:
//   - Audit log appends (authorization decisions and run outcomes)
//   - Rate-limiter attempt counters (to survive restarts and to allow a
//     shared store between overlapping invocations)
