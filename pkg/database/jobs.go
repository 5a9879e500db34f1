package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/openclaim/excore/pkg/models"
)

// JobStore implements the target-queue persistence primitives worker
// pool dispatch relies on (spec.md §4.5): dispatch ordering, the
// conditional-UPDATE claim protocol, and conditional result transitions.
type JobStore struct {
	pool *Pool
}

// NewJobStore wraps a Pool as a JobStore.
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Enqueue inserts a new queued job.
func (s *JobStore) Enqueue(ctx context.Context, job models.Job) error {
	inputJSON, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("database: encoding job input: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, task_id, kind, state, priority, queued_at, input_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, job.ID, job.TaskID, string(job.Kind), string(models.JobQueued), string(job.Priority), job.QueuedAt, inputJSON)
	if err != nil {
		return fmt.Errorf("database: enqueuing job: %w", err)
	}
	return nil
}

// priorityRankSQL orders high < medium < low for dispatch (spec.md §4.5
// "priority ASC, queued_at ASC"); plain alphabetical order would put
// "high" before "low" before "medium", which is wrong.
const priorityRankSQL = `CASE priority WHEN 'high' THEN 0 WHEN 'medium' THEN 1 ELSE 2 END`

// ClaimNext implements the conditional-UPDATE claim protocol: select the
// oldest highest-priority queued job, then attempt
// `SET state='running' WHERE id=? AND state='queued'`, treating
// rowcount != 1 as "lost the race, try again" (spec.md §4.5).
func (s *JobStore) ClaimNext(ctx context.Context, workerID string) (*models.Job, error) {
	for {
		row := s.pool.QueryRow(ctx, `
			SELECT id FROM jobs
			WHERE state = 'queued'
			ORDER BY `+priorityRankSQL+` ASC, queued_at ASC
			LIMIT 1
		`)
		var id string
		if err := row.Scan(&id); err != nil {
			if err == pgx.ErrNoRows {
				return nil, nil
			}
			return nil, fmt.Errorf("database: selecting next job: %w", err)
		}

		now := time.Now()
		tag, err := s.pool.Exec(ctx,
			`UPDATE jobs SET state = 'running', started_at = $1, worker_id = $2 WHERE id = $3 AND state = 'queued'`,
			now, workerID, id,
		)
		if err != nil {
			return nil, fmt.Errorf("database: claiming job: %w", err)
		}
		if tag.RowsAffected() != 1 {
			continue // lost the race; another worker claimed it first
		}

		return s.Get(ctx, id)
	}
}

// Get loads a job row by id.
func (s *JobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, task_id, kind, state, priority, queued_at, started_at, finished_at, input_json, output_json, error_message
		FROM jobs WHERE id = $1
	`, id)

	var j models.Job
	var kind, state, priority string
	var inputJSON, outputJSON []byte
	if err := row.Scan(&j.ID, &j.TaskID, &kind, &state, &priority, &j.QueuedAt, &j.StartedAt, &j.FinishedAt, &inputJSON, &outputJSON, &j.Error); err != nil {
		return nil, fmt.Errorf("database: loading job: %w", err)
	}
	j.Kind = models.JobKind(kind)
	j.State = models.JobState(state)
	j.Priority = models.SearchPriority(priority)
	_ = json.Unmarshal(inputJSON, &j.Input)
	_ = json.Unmarshal(outputJSON, &j.Output)
	return &j, nil
}

// Complete applies the conditional completion transition: only a
// currently-running job transitions to completed, avoiding overwriting
// a concurrent cancellation (spec.md §4.5). Returns false if the job had
// already moved off `running` (treat as cancelled; don't log completion).
func (s *JobStore) Complete(ctx context.Context, id string, output map[string]any) (bool, error) {
	outputJSON, err := json.Marshal(output)
	if err != nil {
		return false, fmt.Errorf("database: encoding job output: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = 'completed', finished_at = $1, output_json = $2 WHERE id = $3 AND state = 'running'`,
		time.Now(), outputJSON, id,
	)
	if err != nil {
		return false, fmt.Errorf("database: completing job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Fail transitions a job to failed with a truncated error message.
func (s *JobStore) Fail(ctx context.Context, id string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = 'failed', finished_at = $1, error_message = $2 WHERE id = $3 AND state = 'running'`,
		time.Now(), models.TruncateError(errMsg), id,
	)
	if err != nil {
		return fmt.Errorf("database: failing job: %w", err)
	}
	return nil
}

// Cancel transitions a job to cancelled (on CancelledError, spec.md §4.5).
func (s *JobStore) Cancel(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = 'cancelled', finished_at = $1 WHERE id = $2 AND state IN ('queued', 'running')`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("database: cancelling job: %w", err)
	}
	return nil
}

// CountRunningForTask counts jobs currently running for a task, used by
// cancel_jobs_for_task / wait_for_task_jobs_to_complete (spec.md §4.5).
func (s *JobStore) CountRunningForTask(ctx context.Context, taskID string) (int, error) {
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE task_id = $1 AND state = 'running'`, taskID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("database: counting running jobs: %w", err)
	}
	return n, nil
}

// ReclaimOrphans requeues jobs stuck `running` past threshold — a worker
// crashed mid-job without reaching Complete/Fail/Cancel (SPEC_FULL.md §12
// "Orphan/stuck-target recovery", grounded on the teacher's
// detect-and-recover sweep). Unlike the teacher's terminal `timed_out`,
// a reclaimed job goes back to `queued`: the target-queue protocol is
// built to retry, not to give up. Returns the number reclaimed.
func (s *JobStore) ReclaimOrphans(ctx context.Context, threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold)
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET state = 'queued', started_at = NULL
		 WHERE state = 'running' AND started_at IS NOT NULL AND started_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("database: reclaiming orphaned jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountQueued reports queue depth, used by the worker's empty-broadcast check.
func (s *JobStore) CountQueued(ctx context.Context) (int, error) {
	row := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE state = 'queued'`)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("database: counting queued jobs: %w", err)
	}
	return n, nil
}
