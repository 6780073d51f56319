package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"costwatch/internal/registry"
	"costwatch/internal/signing"
	logx "costwatch/pkg/logx"
)

const testSecret = "orchestrator-secret"

func testEngine(t *testing.T, baseURL string) *Engine {
	t.Helper()
	return New(Config{BaseURL: baseURL, Secret: testSecret}, logx.Nop())
}

func task(id, endpoint, method string, max time.Duration) registry.ScheduledTask {
	return registry.ScheduledTask{
		ID: id, Name: id, Endpoint: endpoint, Method: method,
		Schedule: registry.Hourly(), MaxDuration: max,
	}
}

func TestRunSuccessWithSummary(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"processed": 42, "succeeded": 40, "failed": 2,
			"errors":   []string{"acct 7: stale token", "acct 9: quota", "x", "y"},
			"internal": "should not leak",
		})
	}))
	defer srv.Close()

	e := testEngine(t, srv.URL)
	results := e.Run(context.Background(), []registry.ScheduledTask{task("sync", "/internal/tasks/sync", "POST", time.Minute)})
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	res := results[0]
	if !res.Success || res.Error != "" {
		t.Fatalf("result = %+v", res)
	}
	if res.Summary == nil {
		t.Fatal("expected summary")
	}
	if res.Summary.Processed != 42 || res.Summary.Succeeded != 40 || res.Summary.Failed != 2 {
		t.Fatalf("summary = %+v", res.Summary)
	}
	if len(res.Summary.SampleErrors) != 3 {
		t.Fatalf("sample errors = %v, want 3 entries", res.Summary.SampleErrors)
	}
}

// Outbound requests must carry the bearer, timestamp, and a signature that
// verifies for the task's own method and path.
func TestRunSignsRequests(t *testing.T) {
	t.Parallel()
	var got struct {
		auth, ts, sig, path, method string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.auth = r.Header.Get("Authorization")
		got.ts = r.Header.Get("X-Timestamp")
		got.sig = r.Header.Get("X-Signature")
		got.path = r.URL.Path
		got.method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := testEngine(t, srv.URL)
	e.Run(context.Background(), []registry.ScheduledTask{task("t", "/internal/tasks/t", "GET", 0)})

	if got.auth != "Bearer "+testSecret {
		t.Fatalf("Authorization = %q", got.auth)
	}
	if got.ts == "" || got.sig == "" {
		t.Fatalf("missing headers: ts=%q sig=%q", got.ts, got.sig)
	}
	if err := signing.Verify(got.method, got.path, got.ts, "", got.sig, []byte(testSecret), time.Now()); err != nil {
		t.Fatalf("outbound signature does not verify: %v", err)
	}
}

// One task's failure is isolated: the next task still runs and the failed
// task's error comes from the response's error field.
func TestRunFailureIsolation(t *testing.T) {
	t.Parallel()
	mux := http.NewServeMux()
	mux.HandleFunc("/internal/tasks/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "db down"})
	})
	mux.HandleFunc("/internal/tasks/fine", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := testEngine(t, srv.URL)
	results := e.Run(context.Background(), []registry.ScheduledTask{
		task("broken", "/internal/tasks/broken", "POST", time.Minute),
		task("fine", "/internal/tasks/fine", "POST", time.Minute),
	})
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Success || results[0].Error != "db down" {
		t.Fatalf("broken = %+v", results[0])
	}
	if !results[1].Success {
		t.Fatalf("fine = %+v", results[1])
	}
}

func TestRunTimeout(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	e := testEngine(t, srv.URL)
	results := e.Run(context.Background(), []registry.ScheduledTask{task("slow", "/internal/tasks/slow", "GET", 50*time.Millisecond)})
	if results[0].Success {
		t.Fatal("expected failure")
	}
	if results[0].Error != "timeout" {
		t.Fatalf("error = %q, want %q", results[0].Error, "timeout")
	}
	if results[0].Duration <= 0 {
		t.Fatalf("duration = %v", results[0].Duration)
	}
}

func TestRunTransportError(t *testing.T) {
	t.Parallel()
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e := testEngine(t, srv.URL)
	results := e.Run(context.Background(), []registry.ScheduledTask{task("t", "/internal/tasks/t", "GET", time.Second)})
	if results[0].Success || results[0].Error == "" {
		t.Fatalf("result = %+v", results[0])
	}
}

func TestRunContextCancelStopsWalk(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := testEngine(t, srv.URL)
	results := e.Run(ctx, []registry.ScheduledTask{task("t", "/internal/tasks/t", "GET", 0)})
	if len(results) != 0 {
		t.Fatalf("got %d results after cancel, want 0", len(results))
	}
}

func TestHistoryRing(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := New(Config{BaseURL: srv.URL, Secret: testSecret, HistorySize: 3}, logx.Nop())
	for i := 0; i < 5; i++ {
		e.Run(context.Background(), []registry.ScheduledTask{task("t", "/internal/tasks/t", "GET", 0)})
	}
	if got := len(e.History()); got != 3 {
		t.Fatalf("history len = %d, want 3", got)
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error field", 500, `{"error":"db down"}`, "db down"},
		{"message field", 503, `{"message":"maintenance"}`, "maintenance"},
		{"plain body", 502, "bad gateway", "HTTP 502"},
		{"empty body", 404, "", "HTTP 404"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := errorMessage(tt.status, []byte(tt.body)); got != tt.want {
				t.Fatalf("errorMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractSummary(t *testing.T) {
	t.Parallel()
	if s := extractSummary([]byte(`{"unrelated":"x"}`)); s != nil {
		t.Fatalf("summary = %+v, want nil", s)
	}
	if s := extractSummary([]byte("not json")); s != nil {
		t.Fatalf("summary = %+v, want nil", s)
	}
	s := extractSummary([]byte(`{"skipped":3,"errors":[1,"two"]}`))
	if s == nil || s.Skipped != 3 {
		t.Fatalf("summary = %+v", s)
	}
	if len(s.SampleErrors) != 2 || s.SampleErrors[0] != "1" || s.SampleErrors[1] != "two" {
		t.Fatalf("sample errors = %v", s.SampleErrors)
	}
}
