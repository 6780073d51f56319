// Package engine executes due tasks against their internal endpoints.
//
// Tasks run sequentially in registry order: a slow task delays the ones
// after it (up to its own deadline), but one task's failure never stops
// the next task's attempt. Every outbound request carries the same three
// authentication headers the orchestrator itself verifies on the way in,
// computed for the task's own (method, path) pair.
package engine

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"costwatch/internal/registry"
	"costwatch/internal/signing"
	logx "costwatch/pkg/logx"
)

const defaultHistorySize = 200

type Engine struct {
	cfg    Config
	log    logx.Logger
	client *http.Client
	now    func() time.Time

	hmu     sync.Mutex
	history []TaskResult
}

// Option tweaks engine construction; used by tests to inject clock and
// transport.
type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

func New(cfg Config, log logx.Logger, opts ...Option) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	e := &Engine{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: cfg.ClientTimeout},
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes the due tasks in order and returns one result per task.
// It is a fold over the task list: results accumulate regardless of
// individual failures, and ctx cancellation stops the walk between tasks.
func (e *Engine) Run(ctx context.Context, tasks []registry.ScheduledTask) []TaskResult {
	results := make([]TaskResult, 0, len(tasks))
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		res := e.runOne(ctx, t)
		results = append(results, res)
		e.remember(res)
	}
	return results
}

func (e *Engine) runOne(ctx context.Context, t registry.ScheduledTask) TaskResult {
	start := e.now()
	res := TaskResult{TaskID: t.ID, TaskName: t.Name, Started: start}

	finish := func() TaskResult {
		res.Duration = e.now().Sub(res.Started)
		res.DurationMS = res.Duration.Milliseconds()
		if res.Success {
			e.log.Info("task ok", logx.String("task", t.ID), logx.Duration("dur", res.Duration))
		} else {
			e.log.Warn("task failed", logx.String("task", t.ID), logx.String("err", res.Error), logx.Duration("dur", res.Duration))
		}
		return res
	}

	callCtx := ctx
	if t.MaxDuration > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, t.MaxDuration)
		defer cancel()
	}

	ts := start.UTC().Format(time.RFC3339)
	sig := signing.Sign(t.Method, t.Endpoint, ts, t.Body, []byte(e.cfg.Secret))

	url := strings.TrimRight(e.cfg.BaseURL, "/") + t.Endpoint
	req, err := http.NewRequestWithContext(callCtx, t.Method, url, strings.NewReader(t.Body))
	if err != nil {
		res.Error = err.Error()
		return finish()
	}
	req.Header.Set("Authorization", "Bearer "+e.cfg.Secret)
	req.Header.Set("X-Timestamp", ts)
	req.Header.Set("X-Signature", sig)
	if t.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			res.Error = "timeout"
		} else {
			res.Error = err.Error()
		}
		return finish()
	}
	defer resp.Body.Close()

	body, err := readBounded(resp.Body)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			res.Error = "timeout"
		} else {
			res.Error = err.Error()
		}
		return finish()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Error = errorMessage(resp.StatusCode, body)
		return finish()
	}

	res.Success = true
	res.Summary = extractSummary(body)
	return finish()
}

func (e *Engine) remember(res TaskResult) {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	e.history = append(e.history, res)
	if len(e.history) > e.cfg.HistorySize {
		e.history = e.history[len(e.history)-e.cfg.HistorySize:]
	}
}

// History returns a copy of the recent result ring (diagnostics only).
func (e *Engine) History() []TaskResult {
	e.hmu.Lock()
	defer e.hmu.Unlock()
	out := make([]TaskResult, len(e.history))
	copy(out, e.history)
	return out
}
