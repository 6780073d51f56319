package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"costwatch/internal/authz"
	"costwatch/internal/engine"
	"costwatch/internal/registry"
	"costwatch/internal/report"
	"costwatch/internal/storage"
	logx "costwatch/pkg/logx"
)

// RunHandler serves the orchestration entry point. Every request walks the
// authorization pipeline first; only then are due tasks resolved and
// executed inline, and the run report returned as the response body.
type RunHandler struct {
	log      logx.Logger
	pipeline *authz.Pipeline
	reg      *registry.Registry
	eng      *engine.Engine
	store    storage.Store
	now      func() time.Time
}

// NewRunHandler wires the entry point. store may be nil when persistence
// is disabled.
func NewRunHandler(log logx.Logger, pipeline *authz.Pipeline, reg *registry.Registry, eng *engine.Engine, store storage.Store) *RunHandler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &RunHandler{
		log:      log,
		pipeline: pipeline,
		reg:      reg,
		eng:      eng,
		store:    store,
		now:      time.Now,
	}
}

// Routes returns the handler's mux.
func (h *RunHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/tasks/run", h.handleRun)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (h *RunHandler) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}

	req := &authz.Request{
		Origin:    clientOrigin(r),
		UserAgent: r.UserAgent(),
		Method:    r.Method,
		Path:      r.URL.Path,
		Timestamp: r.Header.Get("X-Timestamp"),
		Signature: r.Header.Get("X-Signature"),
		Bearer:    bearerToken(r.Header.Get("Authorization")),
	}
	if rej := h.pipeline.Authorize(r.Context(), req); rej != nil {
		// Opaque on purpose: the failing layer must not be inferable
		// from the response.
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	start := h.now()
	runID := report.NewRunID()
	log := h.log.With(logx.String("run_id", runID))

	defer func() {
		if rec := recover(); rec != nil {
			took := h.now().Sub(start)
			log.Error("run panicked", logx.Any("panic", rec), logx.Duration("dur", took))
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"error":    "Orchestrator failed",
				"message":  fmt.Sprint(rec),
				"duration": took.Milliseconds(),
			})
		}
	}()

	due := h.reg.Due(start)
	log.Info("run started",
		logx.String("origin", req.Origin),
		logx.Int("registry", h.reg.Len()),
		logx.Int("due", len(due)),
	)

	results := h.eng.Run(r.Context(), due)
	rep := report.Build(runID, start, len(due), results, h.now())

	if h.store != nil {
		if err := h.store.AppendAudit(r.Context(), storage.AuditEntry{
			At:          start,
			Origin:      req.Origin,
			UserAgent:   req.UserAgent,
			Event:       "run",
			RunID:       runID,
			TasksOK:     rep.TasksSuccessful,
			TasksFailed: rep.TasksFailed,
			TookMS:      rep.TotalDurationMS,
		}); err != nil {
			log.Warn("audit append failed", logx.Err(err))
		}
	}

	log.Info("run finished",
		logx.Int("executed", rep.TasksExecuted),
		logx.Int("ok", rep.TasksSuccessful),
		logx.Int("failed", rep.TasksFailed),
		logx.Int64("took_ms", rep.TotalDurationMS),
	)
	writeJSON(w, http.StatusOK, rep)
}

// clientOrigin prefers the first X-Forwarded-For hop (the orchestrator is
// expected to sit behind an ingress) and falls back to the peer address.
func clientOrigin(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
