package authz

import (
	"context"
	"sync"
	"time"

	"costwatch/internal/storage"
	logx "costwatch/pkg/logx"
)

// DefaultRateLimit is the per-origin budget of attempts per rolling hour.
const DefaultRateLimit = 10

const rateWindow = time.Hour

// Limiter answers whether an origin may make another attempt now.
// Every arrival counts against the budget, pass or fail, so a rejected
// caller cannot probe for free.
type Limiter interface {
	Allow(ctx context.Context, origin string, now time.Time) (bool, error)
}

// MemoryLimiter keeps per-origin attempt timestamps in a mutex-protected
// map. Suitable for a single process; use StoreLimiter when invocations
// may overlap across restarts or a shared store is available.
type MemoryLimiter struct {
	mu        sync.Mutex
	limit     int
	lastSweep time.Time
	attempts  map[string][]time.Time
}

func NewMemoryLimiter(limit int) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &MemoryLimiter{limit: limit, attempts: map[string][]time.Time{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, origin string, now time.Time) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-rateWindow)
	if now.Sub(l.lastSweep) >= rateWindow {
		l.sweepLocked(cutoff)
		l.lastSweep = now
	}

	kept := l.attempts[origin][:0]
	for _, t := range l.attempts[origin] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	l.attempts[origin] = kept

	return len(kept) <= l.limit, nil
}

// sweepLocked drops origins whose attempts all aged out of the window.
// Origins come from caller-controlled headers, so without the sweep the
// map keeps an entry for every address ever seen; active origins are
// pruned on their own calls.
func (l *MemoryLimiter) sweepLocked(cutoff time.Time) {
	for origin, ts := range l.attempts {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(l.attempts, origin)
		}
	}
}

// StoreLimiter counts attempts in a storage backend so the budget survives
// restarts and can be shared.
type StoreLimiter struct {
	store storage.Store
	limit int
}

func NewStoreLimiter(store storage.Store, limit int) *StoreLimiter {
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	return &StoreLimiter{store: store, limit: limit}
}

func (l *StoreLimiter) Allow(ctx context.Context, origin string, now time.Time) (bool, error) {
	if err := l.store.RecordAttempt(ctx, origin, now); err != nil {
		return false, err
	}
	n, err := l.store.CountAttempts(ctx, origin, now.Add(-rateWindow))
	if err != nil {
		return false, err
	}
	return n <= l.limit, nil
}

// rateLimitCheck adapts a Limiter into a pipeline Check.
// Limiter errors fail open (with a warning) so a broken counter store
// cannot take down scheduled runs; the remaining layers still apply.
type rateLimitCheck struct {
	lim Limiter
	log logx.Logger
	now func() time.Time
}

// NewRateLimitCheck wraps lim as the second pipeline layer. now may be nil
// (defaults to time.Now); tests inject a fixed clock.
func NewRateLimitCheck(lim Limiter, log logx.Logger, now func() time.Time) Check {
	if now == nil {
		now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &rateLimitCheck{lim: lim, log: log, now: now}
}

func (c *rateLimitCheck) Name() string { return "rate_limit" }

func (c *rateLimitCheck) Check(ctx context.Context, req *Request) *Rejection {
	ok, err := c.lim.Allow(ctx, req.Origin, c.now())
	if err != nil {
		c.log.Warn("rate limiter unavailable; failing open", logx.Err(err), logx.String("origin", req.Origin))
		return nil
	}
	if !ok {
		return &Rejection{Check: c.Name(), Reason: "attempt budget exhausted"}
	}
	return nil
}
