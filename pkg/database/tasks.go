package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/openclaim/excore/pkg/models"
	"github.com/openclaim/excore/pkg/state"
)

// ErrTaskNotFound is returned when a task id has no matching row.
var ErrTaskNotFound = errors.New("database: task not found")

// TaskStore implements state.Store against Postgres (spec.md §4.1
// "Persistence"): save_state writes only the status column, load_state
// reconstructs tallies with an aggregate join instead of trusting
// in-memory counters.
type TaskStore struct {
	pool *Pool
}

// NewTaskStore wraps a Pool as a state.Store.
func NewTaskStore(pool *Pool) *TaskStore {
	return &TaskStore{pool: pool}
}

var _ state.Store = (*TaskStore)(nil)

// CreateTask inserts a new task row.
func (s *TaskStore) CreateTask(ctx context.Context, task *models.Task) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, hypothesis, status, created_at) VALUES ($1, $2, $3, $4)`,
		task.ID, task.Hypothesis, string(task.Status), task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("database: inserting task: %w", err)
	}
	return nil
}

// GetTask loads a task row by id.
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, hypothesis, status, created_at FROM tasks WHERE id = $1`, taskID)

	var t models.Task
	var status string
	if err := row.Scan(&t.ID, &t.Hypothesis, &status, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("database: loading task: %w", err)
	}
	t.Status = models.TaskStatus(status)
	return &t, nil
}

// SaveTaskStatus writes only the status column (state.Store).
func (s *TaskStore) SaveTaskStatus(ctx context.Context, taskID string, status models.TaskStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET status = $1 WHERE id = $2`, string(status), taskID)
	if err != nil {
		return fmt.Errorf("database: saving task status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// LoadCounts reconstructs the tallies ExplorationState.load_state needs
// via one aggregate query joining queries->serp_items->pages->fragments,
// plus a claim count (state.Store).
func (s *TaskStore) LoadCounts(ctx context.Context, taskID string) (state.LoadedCounts, error) {
	var counts state.LoadedCounts

	row := s.pool.QueryRow(ctx, `
		SELECT
			COALESCE((SELECT COUNT(*) FROM pages p
				JOIN fragments f ON f.page_id = p.id
				JOIN serp_items si ON si.url = p.url
				JOIN queries q ON q.id = si.query_id
				WHERE q.task_id = $1), 0) AS total_pages,
			COALESCE((SELECT COUNT(*) FROM fragments f
				JOIN pages p ON p.id = f.page_id
				JOIN serp_items si ON si.url = p.url
				JOIN queries q ON q.id = si.query_id
				WHERE q.task_id = $1), 0) AS total_fragments,
			COALESCE((SELECT COUNT(*) FROM claims WHERE task_id = $1), 0) AS total_claims
	`, taskID)

	if err := row.Scan(&counts.TotalPages, &counts.TotalFragments, &counts.TotalClaims); err != nil {
		return state.LoadedCounts{}, fmt.Errorf("database: loading counts: %w", err)
	}
	return counts, nil
}
