package queue

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/database"
	"github.com/openclaim/excore/pkg/pipeline"
	"github.com/openclaim/excore/pkg/state"
)

// cancelPropagationWait bounds how long cancel_jobs_for_task waits for
// cancelled workers to observe ctx.Done() (spec.md §4.5 "up to 5 s").
const cancelPropagationWait = 5 * time.Second

type runningJob struct {
	taskID string
	cancel context.CancelFunc
}

// Pool is the target-queue worker pool (spec.md §4.5).
type Pool struct {
	jobs         *database.JobStore
	states       *state.Cache
	stateFactory state.Factory
	dispatcher   *Dispatcher
	cfg          config.SearchQueueConfig

	workers  []*Worker
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	mu      sync.Mutex
	running map[string]*runningJob // job id -> cancel handle

	emptyMu sync.Mutex
	emptyCh chan struct{}
}

// New constructs a worker pool. stateFactory builds a fresh
// ExplorationState for a task id not yet in the cache (spec.md §5).
func New(jobs *database.JobStore, states *state.Cache, stateFactory state.Factory, p *pipeline.Pipeline, cfg config.SearchQueueConfig) *Pool {
	return &Pool{
		jobs:         jobs,
		states:       states,
		stateFactory: stateFactory,
		dispatcher:   NewDispatcher(p),
		cfg:          cfg,
		running:      make(map[string]*runningJob),
		emptyCh:      make(chan struct{}),
	}
}

// Start spawns `concurrency.search_queue.num_workers` worker goroutines
// (spec.md §4.5 "Lifecycle"). Safe to call once; later calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		return
	}
	p.started = true

	n := p.cfg.NumWorkers
	if n <= 0 {
		n = 1
	}
	slog.Info("starting target queue worker pool", "num_workers", n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("worker-%d", i)
		w := newWorker(id, p, p.dispatcher)
		p.workers = append(p.workers, w)
		w.start(ctx)
	}

	go p.runOrphanDetection(ctx)
}

// Stop cancels every worker and waits for them to drain (spec.md §4.5
// "stop() cancels each and awaits").
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.stop()
	}
}

// Health reports per-worker status.
func (p *Pool) Health() PoolHealth {
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.health()
		stats[i] = h
		if h.Status == WorkerWorking {
			active++
		}
	}
	return PoolHealth{TotalWorkers: len(p.workers), ActiveWorkers: active, WorkerStats: stats}
}

func (p *Pool) registerJob(jobID, taskID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[jobID] = &runningJob{taskID: taskID, cancel: cancel}
}

func (p *Pool) unregisterJob(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, jobID)
}

// broadcastEmpty wakes any batch-notification consumer waiting on an
// empty queue (spec.md §4.5 "workers broadcast an empty notification").
func (p *Pool) broadcastEmpty() {
	p.emptyMu.Lock()
	defer p.emptyMu.Unlock()
	close(p.emptyCh)
	p.emptyCh = make(chan struct{})
}

// WaitForEmpty blocks until the next empty-queue broadcast or timeout.
func (p *Pool) WaitForEmpty(timeout time.Duration) {
	p.emptyMu.Lock()
	ch := p.emptyCh
	p.emptyMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
	case <-timer.C:
	}
}

// CancelJobsForTask immediately cancels every registered running job for
// a task (spec.md §4.5 `cancel_jobs_for_task`): cancels each handle,
// yields once, then waits up to 5s for propagation. Returns the count
// cancelled.
func (p *Pool) CancelJobsForTask(ctx context.Context, taskID string) int {
	p.mu.Lock()
	var cancelled []string
	for jobID, rj := range p.running {
		if rj.taskID == taskID {
			rj.cancel()
			cancelled = append(cancelled, jobID)
		}
	}
	p.mu.Unlock()

	if len(cancelled) == 0 {
		return 0
	}

	runtime.Gosched()

	deadline := time.Now().Add(cancelPropagationWait)
	for time.Now().Before(deadline) {
		if n, err := p.jobs.CountRunningForTask(ctx, taskID); err == nil && n == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	return len(cancelled)
}

// WaitForTaskJobsToComplete waits up to timeout for a task's running jobs
// to finish naturally, without cancelling them (spec.md §4.5
// `wait_for_task_jobs_to_complete`). Timeout is logged; callers proceed
// with finalization either way.
func (p *Pool) WaitForTaskJobsToComplete(ctx context.Context, taskID string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := p.jobs.CountRunningForTask(ctx, taskID)
		if err != nil || n == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(100 * time.Millisecond):
		}
	}
	slog.Warn("timed out waiting for task jobs to complete", "task_id", taskID, "timeout", timeout)
}
