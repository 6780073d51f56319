// Package app wires the orchestrator together: config, logging, storage,
// the authorization pipeline, the task registry, the execution engine, and
// the HTTP entry point.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"costwatch/internal/alerts"
	"costwatch/internal/authz"
	"costwatch/internal/config"
	"costwatch/internal/engine"
	"costwatch/internal/registry"
	"costwatch/internal/runtime/supervisor"
	"costwatch/internal/server"
	"costwatch/internal/storage"
	logx "costwatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	srv   *server.Service

	// handler is swapped on hot reload; the server delegates every
	// request through it.
	handler atomic.Value // stores http.Handler

	// limiter survives reloads so counters aren't reset by an unrelated
	// config change. Rebuilt only when the limit itself changes.
	limiter     authz.Limiter
	limiterN    int
	lastApplied *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Alert sender first so the log service can fan out to it.
	var sender logx.Sender
	if cfg.Logging.Alerts.Enabled && strings.TrimSpace(cfg.Logging.Alerts.Telegram.Token) != "" {
		boot := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "alerts"))
		tg, err := alerts.NewTelegram(alerts.Config{
			Token:  cfg.Logging.Alerts.Telegram.Token,
			ChatID: cfg.Logging.Alerts.Telegram.ChatID,
		}, boot)
		if err != nil {
			return nil, fmt.Errorf("alerts: %w", err)
		}
		sender = tg
	}

	logSvc, log := logx.New(toLogxConfig(cfg.Logging), sender)
	log = log.With(logx.String("comp", "app"))

	store, err := openStorage(cfg.Storage, log)
	if err != nil {
		logSvc.Close()
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
	}

	h, err := a.buildHandler(cfg)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.handler.Store(h)
	a.lastApplied = cfg

	srvReadTO, err := config.ParseDurationField("server.read_timeout", cfg.Server.ReadTimeout)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	srvWriteTO, err := config.ParseDurationField("server.write_timeout", cfg.Server.WriteTimeout)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	srvIdleTO, err := config.ParseDurationField("server.idle_timeout", cfg.Server.IdleTimeout)
	if err != nil {
		a.closeResources()
		return nil, err
	}
	a.srv = server.New(server.Config{
		Addr:             cfg.Server.Addr,
		AllowNonLoopback: cfg.Server.AllowNonLoopback,
		ReadTimeout:      srvReadTO,
		WriteTimeout:     srvWriteTO,
		IdleTimeout:      srvIdleTO,
	}, a, log.With(logx.String("comp", "server")))

	return a, nil
}

// ServeHTTP delegates to the current handler so hot reloads take effect
// without restarting the listener.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h, _ := a.handler.Load().(http.Handler)
	if h == nil {
		http.Error(w, "starting", http.StatusServiceUnavailable)
		return
	}
	h.ServeHTTP(w, r)
}

// Addr returns the bound listen address (tests).
func (a *App) Addr() string { return a.srv.Addr() }

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		// Reject a hot reload the runtime could not build.
		if _, err := buildRegistry(cfg.Tasks); err != nil {
			return err
		}
		if _, err := config.ParseDurationField("target.client_timeout", cfg.Target.ClientTimeout); err != nil {
			return err
		}
		return nil
	})

	if err := a.srv.Start(a.sup.Context()); err != nil {
		return err
	}

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: only the latest config matters.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(newCfg)
			}
		}
	})

	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("addr", a.srv.Addr()))
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(a.lastApplied, cfg)
	a.lastApplied = cfg

	a.logs.Apply(toLogxConfig(cfg.Logging))

	h, err := a.buildHandler(cfg)
	if err != nil {
		// The validator should have caught this; keep the old runtime.
		a.log.Error("config apply failed; keeping previous runtime", logx.Err(err))
		return
	}
	a.handler.Store(h)

	// Listener and storage settings only take effect on restart.
	for _, s := range sections {
		if s == "server" || s == "storage" {
			a.log.Warn("section change requires restart", logx.String("section", s))
		}
	}

	if len(sections) > 0 {
		a.log.Info("config reloaded",
			append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}

// buildHandler assembles the request path for one config version: the
// authorization pipeline, the task registry, and the execution engine.
func (a *App) buildHandler(cfg *config.Config) (http.Handler, error) {
	reg, err := buildRegistry(cfg.Tasks)
	if err != nil {
		return nil, err
	}

	clientTO, err := config.ParseDurationField("target.client_timeout", cfg.Target.ClientTimeout)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engine.Config{
		BaseURL:       cfg.Target.BaseURL,
		Secret:        cfg.Auth.Secret,
		ClientTimeout: clientTO,
	}, a.log.With(logx.String("comp", "engine")))

	limit := cfg.Auth.RateLimitPerHour
	if limit == 0 {
		limit = authz.DefaultRateLimit
	}
	authLog := a.log.With(logx.String("comp", "authz"))
	checks := []authz.Check{
		authz.NewOriginCheck(cfg.Auth.AllowedOrigins),
	}
	if limit > 0 {
		if a.limiter == nil || a.limiterN != limit {
			if a.store != nil {
				a.limiter = authz.NewStoreLimiter(a.store, limit)
			} else {
				a.limiter = authz.NewMemoryLimiter(limit)
			}
			a.limiterN = limit
		}
		checks = append(checks, authz.NewRateLimitCheck(a.limiter, authLog, time.Now))
	}
	checks = append(checks,
		authz.NewSignatureCheck([]byte(cfg.Auth.Secret), time.Now),
		authz.NewSecretCheck(cfg.Auth.Secret, 0),
	)

	var auditor authz.Auditor
	if a.store != nil {
		auditor = &storeAuditor{store: a.store, log: authLog}
	}
	pipeline := authz.NewPipeline(authLog, auditor, checks...)

	return server.NewRunHandler(
		a.log.With(logx.String("comp", "run")),
		pipeline, reg, eng, a.store,
	).Routes(), nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	a.srv.Stop(ctx)

	waitCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.sup.Wait(waitCtx)
	cancel()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("shutdown finished with error", logx.Err(err))
	}

	a.closeResources()
	a.log.Info("stopped")
	return nil
}

func (a *App) closeResources() {
	if a.store != nil {
		_ = a.store.Close()
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

func buildRegistry(tasks []config.TaskConfig) (*registry.Registry, error) {
	entries := make([]registry.ScheduledTask, 0, len(tasks))
	for _, t := range tasks {
		rule, err := registry.ParseRule(t.Schedule)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", t.ID, err)
		}
		maxDur, err := config.ParseDurationField(fmt.Sprintf("tasks[%s].max_duration", t.ID), t.MaxDuration)
		if err != nil {
			return nil, err
		}
		entries = append(entries, registry.ScheduledTask{
			ID:          t.ID,
			Name:        t.Name,
			Endpoint:    t.Endpoint,
			Method:      t.Method,
			Schedule:    rule,
			MaxDuration: maxDur,
			Body:        t.Body,
		})
	}
	return registry.New(entries)
}

func openStorage(sc *config.StorageConfig, log logx.Logger) (storage.Store, error) {
	if sc == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", sc.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if store != nil {
		log.Info("storage opened", logx.String("driver", sc.Driver))
	}
	return store, nil
}

func toLogxConfig(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    lc.Alerts.Enabled,
			MinLevel:   lc.Alerts.MinLevel,
			RatePerSec: lc.Alerts.RatePerSec,
		},
	}
}

// storeAuditor records authorization rejections in the persistent audit
// trail.
type storeAuditor struct {
	store storage.Store
	log   logx.Logger
}

func (s *storeAuditor) AuthRejected(ctx context.Context, origin, userAgent, check string) {
	err := s.store.AppendAudit(ctx, storage.AuditEntry{
		At:        time.Now(),
		Origin:    origin,
		UserAgent: userAgent,
		Event:     "rejected",
		Check:     check,
	})
	if err != nil {
		s.log.Warn("audit append failed", logx.Err(err))
	}
}
