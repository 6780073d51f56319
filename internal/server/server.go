// Package server hosts the orchestrator's HTTP entry point.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	logx "costwatch/pkg/logx"
)

// Config controls the HTTP listener.
//
// Security:
//   - Prefer binding to localhost and fronting with an ingress.
//   - Binding to a non-loopback address requires AllowNonLoopback, since
//     the entry point is then reachable by anything on the network.
type Config struct {
	Addr             string
	AllowNonLoopback bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

const defaultAddr = "127.0.0.1:8087"

// Service owns the listener lifecycle. Start and Stop are idempotent and
// safe to call concurrently; Stop waits for in-flight requests via
// graceful shutdown.
type Service struct {
	mu  sync.Mutex
	log logx.Logger
	cfg Config
	h   http.Handler

	ln       net.Listener
	srv      *http.Server
	stopDone chan struct{}
}

func New(cfg Config, h http.Handler, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, h: h, log: log}
}

// Addr returns the bound listen address, or "" when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Service) Start(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.srv != nil {
			s.mu.Unlock()
			return nil
		}
		// A stop may still be draining; wait so we never double-listen.
		if s.stopDone != nil {
			done := s.stopDone
			s.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		cur := s.cfg
		s.mu.Unlock()

		addr := strings.TrimSpace(cur.Addr)
		if addr == "" {
			addr = defaultAddr
		}
		if !cur.AllowNonLoopback && !isLoopbackAddr(addr) {
			return errors.New("refusing non-loopback listen addr without allow_non_loopback")
		}

		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Handler:      s.h,
			ReadTimeout:  cur.ReadTimeout,
			WriteTimeout: cur.WriteTimeout,
			IdleTimeout:  cur.IdleTimeout,
		}

		s.mu.Lock()
		s.ln = ln
		s.srv = srv
		s.mu.Unlock()

		go func() {
			err := srv.Serve(ln)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("server stopped with error", logx.Err(err))
			}
		}()

		s.log.Info("server started", logx.String("addr", ln.Addr().String()))
		return nil
	}
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.srv == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	srv := s.srv
	ln := s.ln
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	// Close the listener first so Shutdown cannot accept new work.
	if ln != nil {
		_ = ln.Close()
	}

	go func() {
		defer close(done)
		shutdownCtx := ctx
		if shutdownCtx == nil {
			shutdownCtx = context.Background()
		}
		_ = srv.Shutdown(shutdownCtx)
		_ = srv.Close()
		s.mu.Lock()
		s.stopDone = nil
		s.mu.Unlock()
		s.log.Info("server stopped")
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
