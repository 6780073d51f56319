// Package registry holds the static catalog of schedulable tasks and the
// due-task resolver.
//
// The registry is built once from configuration at process start and is
// immutable afterwards; malformed entries are fatal at startup, never at
// run time. Registry order is execution order.
package registry

import (
	"fmt"
	"strings"
	"time"
)

// ScheduledTask is one registry entry.
type ScheduledTask struct {
	ID          string
	Name        string
	Endpoint    string // path on the internal service, e.g. "/internal/tasks/sync-billing"
	Method      string // upper-case HTTP verb
	Schedule    Rule
	MaxDuration time.Duration // 0 means no per-task deadline
	Body        string        // optional exact JSON payload ("" for none)
}

var allowedMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {},
}

// Registry is a fixed, ordered task catalog.
type Registry struct {
	tasks []ScheduledTask
}

// New validates the entries and builds the registry. Duplicate IDs, bad
// methods, and missing endpoints are configuration errors.
func New(tasks []ScheduledTask) (*Registry, error) {
	seen := make(map[string]struct{}, len(tasks))
	out := make([]ScheduledTask, 0, len(tasks))
	for i, t := range tasks {
		t.ID = strings.TrimSpace(t.ID)
		if t.ID == "" {
			return nil, fmt.Errorf("task[%d]: id is required", i)
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("task %q: duplicate id", t.ID)
		}
		seen[t.ID] = struct{}{}

		if strings.TrimSpace(t.Name) == "" {
			t.Name = t.ID
		}
		t.Endpoint = strings.TrimSpace(t.Endpoint)
		if !strings.HasPrefix(t.Endpoint, "/") {
			return nil, fmt.Errorf("task %q: endpoint must be an absolute path", t.ID)
		}
		t.Method = strings.ToUpper(strings.TrimSpace(t.Method))
		if _, ok := allowedMethods[t.Method]; !ok {
			return nil, fmt.Errorf("task %q: unsupported method %q", t.ID, t.Method)
		}
		if t.MaxDuration < 0 {
			return nil, fmt.Errorf("task %q: negative max duration", t.ID)
		}
		out = append(out, t)
	}
	return &Registry{tasks: out}, nil
}

// Tasks returns the catalog in registry order.
func (r *Registry) Tasks() []ScheduledTask {
	out := make([]ScheduledTask, len(r.tasks))
	copy(out, r.tasks)
	return out
}

func (r *Registry) Len() int { return len(r.tasks) }

// Due resolves which tasks must run at the given time. It is a pure
// function of (registry, now): same inputs, same ordered result. The
// resolver keeps no ran-already state; firing the trigger more often than
// a rule's granularity re-returns the task (at-least-once model).
func (r *Registry) Due(now time.Time) []ScheduledTask {
	var due []ScheduledTask
	for _, t := range r.tasks {
		if t.Schedule.Due(now) {
			due = append(due, t)
		}
	}
	return due
}
