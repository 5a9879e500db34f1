// Package queue implements the Target-Queue Worker Pool (spec.md §4.5):
// decoupling per-target execution from the agent-facing API.
package queue

import (
	"errors"
	"time"
)

// Sentinel errors for worker polling.
var (
	// ErrNoJobsAvailable means the queue was empty on this poll.
	ErrNoJobsAvailable = errors.New("queue: no jobs available")
)

// WorkerStatus reports a worker's current activity for diagnostics.
type WorkerStatus string

const (
	WorkerIdle    WorkerStatus = "idle"
	WorkerWorking WorkerStatus = "working"
)

// WorkerHealth is one worker's health snapshot.
type WorkerHealth struct {
	ID            string
	Status        WorkerStatus
	CurrentJobID  string
	JobsProcessed int
	LastActivity  time.Time
}

// PoolHealth aggregates every worker's health for the pool.
type PoolHealth struct {
	TotalWorkers  int
	ActiveWorkers int
	WorkerStats   []WorkerHealth
}
