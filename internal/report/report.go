// Package report aggregates one orchestrator run into the response body
// returned to the external trigger.
package report

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"costwatch/internal/engine"
)

// RunReport summarizes one invocation of the orchestrator; it is the 200
// response body. The counters always satisfy
// TasksExecuted == TasksSuccessful + TasksFailed == len(Results).
// Durations are milliseconds on the wire.
type RunReport struct {
	Success         bool                `json:"success"`
	Message         string              `json:"message"`
	RunID           string              `json:"runId"`
	Timestamp       time.Time           `json:"timestamp"`
	TasksEvaluated  int                 `json:"tasksEvaluated"`
	TasksExecuted   int                 `json:"tasksExecuted"`
	TasksSuccessful int                 `json:"tasksSuccessful"`
	TasksFailed     int                 `json:"tasksFailed"`
	TotalDurationMS int64               `json:"duration"`
	Results         []engine.TaskResult `json:"results"`
}

// NewRunID mints the identifier threaded through logs, the audit trail,
// and the run report.
func NewRunID() string { return uuid.NewString() }

// Build folds task results into a report. start is when the run began;
// evaluated is how many tasks were due at resolution time, so executed
// normally equals evaluated unless the run was cut short. A run with no
// due tasks produces a report with zero counters and an empty (non-nil)
// result list.
func Build(runID string, start time.Time, evaluated int, results []engine.TaskResult, now time.Time) RunReport {
	rep := RunReport{
		Success:         true,
		RunID:           runID,
		Timestamp:       start.UTC(),
		TasksEvaluated:  evaluated,
		TasksExecuted:   len(results),
		TotalDurationMS: now.Sub(start).Milliseconds(),
		Results:         results,
	}
	if rep.Results == nil {
		rep.Results = []engine.TaskResult{}
	}
	for _, r := range results {
		if r.Success {
			rep.TasksSuccessful++
		} else {
			rep.TasksFailed++
		}
	}
	if rep.TasksExecuted == 0 {
		rep.Message = "no tasks due"
	} else {
		rep.Message = fmt.Sprintf("executed %d tasks: %d succeeded, %d failed",
			rep.TasksExecuted, rep.TasksSuccessful, rep.TasksFailed)
	}
	return rep
}
