package engine

import (
	"time"
)

// Config controls the execution engine.
type Config struct {
	// BaseURL of the internal service hosting the task endpoints.
	BaseURL string
	// Secret signs outbound requests and fills the bearer header.
	Secret string
	// ClientTimeout is the ambient transport timeout applied when a task
	// declares no MaxDuration. 0 keeps the client default.
	ClientTimeout time.Duration
	// HistorySize bounds the in-memory result ring (default 200).
	HistorySize int
}

// TaskResult is the structured outcome of one task execution. It is
// consumed by the run aggregator and kept briefly in the history ring;
// it is never persisted. DurationMS mirrors Duration for the response
// body, where durations are milliseconds.
type TaskResult struct {
	TaskID     string        `json:"taskId"`
	TaskName   string        `json:"taskName"`
	Success    bool          `json:"success"`
	Started    time.Time     `json:"startedAt"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Summary    *Summary      `json:"summary,omitempty"`
}

// Summary is the allow-listed subset of a downstream response. Anything
// outside these fields is discarded so run reports stay small and don't
// leak unrelated internal detail through logs.
type Summary struct {
	Processed    int      `json:"processed,omitempty"`
	Succeeded    int      `json:"succeeded,omitempty"`
	Failed       int      `json:"failed,omitempty"`
	Skipped      int      `json:"skipped,omitempty"`
	SampleErrors []string `json:"sampleErrors,omitempty"`
}
