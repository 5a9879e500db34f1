package api

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/openclaim/excore/pkg/bandit"
	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/database"
	"github.com/openclaim/excore/pkg/state"
)

// exploreConstant is UCB1's default C = sqrt(2) (spec.md §4.2).
var exploreConstant = math.Sqrt(2)

// NewStateFactory builds a state.Factory that reconstructs an
// ExplorationState for a task already persisted, wiring a fresh
// per-task UCBAllocator against the task's page budget (spec.md §4.1
// "load_state reconstructs tallies by counting rows", §4.2). Both the
// API server's own state.Cache lookups and the target-queue worker
// pool's (pkg/queue) share this constructor so a task loads identically
// regardless of which surface first touches it.
func NewStateFactory(tasks *database.TaskStore, limits config.TaskLimitsConfig) state.Factory {
	return func(ctx context.Context, taskID string) (*state.State, error) {
		return loadTaskState(ctx, tasks, taskID, limits)
	}
}

func loadTaskState(ctx context.Context, tasks *database.TaskStore, taskID string, limits config.TaskLimitsConfig) (*state.State, error) {
	task, err := tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("api: loading task %s: %w", taskID, err)
	}

	allocCfg := bandit.DefaultConfig(limits.BudgetPagesPerTask)
	allocCfg.ExplorationConstant = exploreConstant
	allocator := bandit.New(allocCfg)

	cfg := state.Config{
		PagesLimit:  limits.BudgetPagesPerTask,
		TimeLimit:   time.Duration(limits.PipelineTimeoutSeconds) * time.Second,
		IdleTimeout: time.Duration(limits.CursorIdleTimeoutSeconds) * time.Second,
		Allocator:   allocator,
	}

	st := state.New(task, cfg, tasks)
	if err := st.LoadState(ctx); err != nil {
		return nil, fmt.Errorf("api: loading state for task %s: %w", taskID, err)
	}

	return st, nil
}
