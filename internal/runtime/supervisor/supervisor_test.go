package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "costwatch/pkg/logx"
)

func TestGoLatchesFirstError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))
	s.Go("boom", func(ctx context.Context) error { return errors.New("boom") })
	s.Go("fine", func(ctx context.Context) error { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.Wait(ctx)
	if err == nil || err.Error() != "boom: boom" {
		t.Fatalf("Wait = %v", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))
	s.Go("panics", func(ctx context.Context) error { panic("kaboom") })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("expected latched panic error")
	}
	select {
	case <-s.Context().Done():
	default:
		t.Fatal("cancel-on-error should cancel the context")
	}
}

func TestGoRestartRetriesUntilClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))
	var runs int32
	s.GoRestart("flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) < 3 {
			return errors.New("transient")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait = %v", err)
	}
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestStopCancelsRunningGoroutines(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()))
	started := make(chan struct{})
	s.Go("blocker", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	if s.Active() != 0 {
		t.Fatalf("active = %d", s.Active())
	}
}
