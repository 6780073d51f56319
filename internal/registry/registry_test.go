package registry

import (
	"testing"
	"time"
)

func testTasks(t *testing.T) []ScheduledTask {
	t.Helper()
	return []ScheduledTask{
		{ID: "sync-billing", Name: "Sync billing data", Endpoint: "/internal/tasks/sync-billing", Method: "POST", Schedule: Hourly(), MaxDuration: 5 * time.Minute},
		{ID: "daily-report", Name: "Daily cost report", Endpoint: "/internal/tasks/daily-report", Method: "POST", Schedule: DailyAt(2, 0), MaxDuration: 10 * time.Minute},
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		tasks []ScheduledTask
	}{
		{
			name: "duplicate id",
			tasks: []ScheduledTask{
				{ID: "a", Endpoint: "/x", Method: "GET", Schedule: Hourly()},
				{ID: "a", Endpoint: "/y", Method: "GET", Schedule: Hourly()},
			},
		},
		{
			name:  "missing id",
			tasks: []ScheduledTask{{Endpoint: "/x", Method: "GET", Schedule: Hourly()}},
		},
		{
			name:  "relative endpoint",
			tasks: []ScheduledTask{{ID: "a", Endpoint: "x", Method: "GET", Schedule: Hourly()}},
		},
		{
			name:  "bad method",
			tasks: []ScheduledTask{{ID: "a", Endpoint: "/x", Method: "FETCH", Schedule: Hourly()}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.tasks); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestNewNormalizes(t *testing.T) {
	t.Parallel()
	r, err := New([]ScheduledTask{{ID: " a ", Endpoint: "/x", Method: "post", Schedule: Hourly()}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := r.Tasks()[0]
	if got.ID != "a" || got.Method != "POST" || got.Name != "a" {
		t.Fatalf("normalized task = %+v", got)
	}
}

// An hourly task A and a daily-at-02:00 task B: at 02:00 both are due in
// registry order; at 03:00 only A is due.
func TestDueResolution(t *testing.T) {
	t.Parallel()
	r, err := New(testTasks(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	at2 := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)
	due := r.Due(at2)
	if len(due) != 2 || due[0].ID != "sync-billing" || due[1].ID != "daily-report" {
		t.Fatalf("Due(02:00) = %v", ids(due))
	}

	at3 := time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC)
	due = r.Due(at3)
	if len(due) != 1 || due[0].ID != "sync-billing" {
		t.Fatalf("Due(03:00) = %v", ids(due))
	}

	if due := r.Due(time.Date(2026, 3, 14, 3, 30, 0, 0, time.UTC)); len(due) != 0 {
		t.Fatalf("Due(03:30) = %v, want empty", ids(due))
	}
}

func TestDueDeterministic(t *testing.T) {
	t.Parallel()
	r, err := New(testTasks(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	now := time.Date(2026, 3, 14, 2, 0, 0, 0, time.UTC)
	a := ids(r.Due(now))
	for i := 0; i < 10; i++ {
		b := ids(r.Due(now))
		if len(a) != len(b) {
			t.Fatalf("non-deterministic resolution: %v vs %v", a, b)
		}
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("non-deterministic order: %v vs %v", a, b)
			}
		}
	}
}

func ids(tasks []ScheduledTask) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
