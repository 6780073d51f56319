package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "costwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl            (append-only JSON Lines)
//   - <prefix>.attempts.snapshot.json (periodic snapshot)
//   - <prefix>.attempts.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	attemptsSnapshotPath string
	attemptsJournalFile  *os.File
	attempts             map[string][]int64 // origin -> unix milli, ascending

	attemptWrites int
}

type attemptRecord struct {
	Origin string `json:"origin"`
	At     int64  `json:"at"`
}

// attemptRetention bounds how far back attempts are kept. The limiter only
// ever asks about the last hour; keep a little slack for clock wobble.
const attemptRetention = 2 * time.Hour

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".attempts.snapshot.json"
	journalPath := prefix + ".attempts.journal.jsonl"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load attempts from snapshot + journal.
	attempts := map[string][]int64{}
	_ = loadAttemptsSnapshot(snapPath, attempts)
	_ = replayAttemptsJournal(journalPath, attempts)
	pruneOldAttempts(attempts, time.Now().Add(-attemptRetention))

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &fileStore{
		log:                  log,
		auditFile:            af,
		attemptsSnapshotPath: snapPath,
		attemptsJournalFile:  jf,
		attempts:             attempts,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.attemptsJournalFile != nil {
		err2 = s.attemptsJournalFile.Close()
		s.attemptsJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) RecordAttempt(ctx context.Context, origin string, at time.Time) error {
	_ = ctx
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return nil
	}
	ms := at.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attemptsJournalFile == nil {
		return errors.New("attempts journal closed")
	}
	if s.attempts == nil {
		s.attempts = map[string][]int64{}
	}
	s.attempts[origin] = append(s.attempts[origin], ms)

	if err := json.NewEncoder(s.attemptsJournalFile).Encode(attemptRecord{Origin: origin, At: ms}); err != nil {
		return err
	}
	s.attemptWrites++
	if s.attemptWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("attempts compact failed", logx.Any("err", err))
		}
	}
	return nil
}

func (s *fileStore) CountAttempts(ctx context.Context, origin string, since time.Time) (int, error) {
	_ = ctx
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return 0, nil
	}
	cutoff := since.UnixMilli()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ms := range s.attempts[origin] {
		if ms >= cutoff {
			n++
		}
	}
	return n, nil
}

func (s *fileStore) compactLocked() error {
	if s.attempts == nil {
		return nil
	}
	pruneOldAttempts(s.attempts, time.Now().Add(-attemptRetention))

	tmp := s.attemptsSnapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.attempts); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.attemptsSnapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.attemptsJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.attemptsJournalFile.Seek(0, 2)
	return err
}

func loadAttemptsSnapshot(path string, out map[string][]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string][]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = append(out[k], v...)
	}
	return nil
}

func replayAttemptsJournal(path string, out map[string][]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r attemptRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.Origin == "" {
			continue
		}
		out[r.Origin] = append(out[r.Origin], r.At)
	}
	return sc.Err()
}

func pruneOldAttempts(m map[string][]int64, before time.Time) {
	cutoff := before.UnixMilli()
	for origin, times := range m {
		kept := times[:0]
		for _, ms := range times {
			if ms >= cutoff {
				kept = append(kept, ms)
			}
		}
		if len(kept) == 0 {
			delete(m, origin)
			continue
		}
		m[origin] = kept
	}
}
