// Package models contains the plain data records shared across the
// exploration control core: tasks, searches, pages, fragments, claims,
// evidence-graph edges, and the in-memory bandit/backoff records.
//
// These are dataclass-style records with no persistence logic. Search
// carries its own satisfaction, novelty-window and harvest-rate
// arithmetic (RecomputeSatisfaction, RecordFragment, CheckNoveltyStop),
// which ExplorationState calls under its lock; every other mutating
// operation lives on the owning component (ExplorationState,
// UCBAllocator, ...).
package models

import "time"

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskCreated          TaskStatus = "created"
	TaskExploring        TaskStatus = "exploring"
	TaskAwaitingDecision TaskStatus = "awaiting_decision"
	TaskPaused           TaskStatus = "paused"
	TaskFailed           TaskStatus = "failed"

	// TaskCancelled is finalize's terminal status when the stop reason is
	// exactly "user_cancelled" (spec.md §9 open question decision; see
	// state.State.Finalize).
	TaskCancelled TaskStatus = "cancelled"
)

// Task is the root entity owned by exactly one ExplorationState instance
// for the duration of a session.
type Task struct {
	ID         string
	Hypothesis string
	Status     TaskStatus
	CreatedAt  time.Time
}

// AcceptsNewTargets reports whether the task will still admit enqueued
// targets. Only `failed` rejects; `paused` is terminal-for-session but
// resumable per spec.md §3.
func (t *Task) AcceptsNewTargets() bool {
	return t.Status != TaskFailed
}
