package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	logx "costwatch/pkg/logx"
)

func TestServiceStartStop(t *testing.T) {
	t.Parallel()
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	s := New(Config{Addr: "127.0.0.1:0"}, h, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := s.Addr()
	if addr == "" {
		t.Fatal("no listen addr")
	}
	// Start is idempotent while running.
	if err := s.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatal("addr should clear after stop")
	}
	s.Stop(ctx)

	if _, err := http.Get("http://" + addr + "/"); err == nil {
		t.Fatal("listener still accepting after stop")
	}
}

func TestServiceRefusesNonLoopback(t *testing.T) {
	t.Parallel()
	s := New(Config{Addr: "0.0.0.0:0"}, http.NewServeMux(), logx.Nop())
	ctx := context.Background()
	if err := s.Start(ctx); err == nil {
		s.Stop(ctx)
		t.Fatal("expected refusal for non-loopback addr")
	}
}
