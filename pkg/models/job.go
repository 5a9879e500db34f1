package models

import "time"

// JobKind is the kind of target-queue job (spec.md §4.5).
type JobKind string

const (
	JobQuery JobKind = "query"
	JobURL   JobKind = "url"
	JobDOI   JobKind = "doi"
	// JobVerifyNLI is enqueued after every target completion (spec.md §4.5
	// "After every completion, enqueue a VERIFY_NLI job for the parent task").
	JobVerifyNLI JobKind = "verify_nli"
)

// JobState is the lifecycle state of a queued target (spec.md §6 jobs table).
type JobState string

const (
	JobQueued       JobState = "queued"
	JobRunning      JobState = "running"
	JobCompleted    JobState = "completed"
	JobFailed       JobState = "failed"
	JobCancelled    JobState = "cancelled"
	JobAwaitingAuth JobState = "awaiting_auth"
)

// Job is one row of the `jobs` table (spec.md §6).
type Job struct {
	ID         string
	TaskID     string
	Kind       JobKind
	State      JobState
	Priority   SearchPriority
	Input      map[string]any
	Output     map[string]any
	Error      string
	QueuedAt   time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// maxErrorMessageLen bounds persisted failure messages (spec.md §4.5:
// "failed with an error message truncated to 1000 chars").
const maxErrorMessageLen = 1000

// TruncateError truncates an error message to the persisted limit.
func TruncateError(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	return msg[:maxErrorMessageLen]
}
