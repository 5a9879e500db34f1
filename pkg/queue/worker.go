package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openclaim/excore/pkg/models"
)

// pollInterval is the idle-queue sleep (spec.md §4.5 "default 1 s").
const pollInterval = time.Second

// errorBackoff is the sleep after a worker-loop exception (spec.md §4.5
// "on worker-loop exceptions, sleep 5 s before retrying").
const errorBackoff = 5 * time.Second

// Worker polls the job queue and dispatches claimed jobs.
type Worker struct {
	id         string
	pool       *Pool
	dispatcher *Dispatcher

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu            sync.RWMutex
	status        WorkerStatus
	currentJobID  string
	jobsProcessed int
	lastActivity  time.Time
}

func newWorker(id string, pool *Pool, dispatcher *Dispatcher) *Worker {
	return &Worker{
		id:           id,
		pool:         pool,
		dispatcher:   dispatcher,
		stopCh:       make(chan struct{}),
		status:       WorkerIdle,
		lastActivity: time.Now(),
	}
}

func (w *Worker) start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

func (w *Worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:            w.id,
		Status:        w.status,
		CurrentJobID:  w.currentJobID,
		JobsProcessed: w.jobsProcessed,
		LastActivity:  w.lastActivity,
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()
	log := slog.With("worker_id", w.id)
	log.Info("queue worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("queue worker stopping")
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := w.pollAndProcess(ctx); err != nil {
			if errors.Is(err, ErrNoJobsAvailable) {
				w.pool.broadcastEmpty()
				w.sleep(pollInterval)
				continue
			}
			log.Error("queue worker error", "error", err)
			w.sleep(errorBackoff)
		}
	}
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollAndProcess claims and runs the next job, never exiting the
// worker loop on a processing error (spec.md §4.5: "the worker itself
// loops, does not exit").
func (w *Worker) pollAndProcess(ctx context.Context) error {
	job, err := w.pool.jobs.ClaimNext(ctx, w.id)
	if err != nil {
		return fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return ErrNoJobsAvailable
	}

	log := slog.With("worker_id", w.id, "job_id", job.ID, "task_id", job.TaskID, "kind", job.Kind)
	log.Info("job claimed")

	w.setStatus(WorkerWorking, job.ID)
	defer w.setStatus(WorkerIdle, "")

	jobCtx, cancel := context.WithCancel(ctx)
	w.pool.registerJob(job.ID, job.TaskID, cancel)
	defer w.pool.unregisterJob(job.ID)

	st, err := w.pool.states.GetOrCreate(jobCtx, job.TaskID, w.pool.stateFactory)
	if err != nil {
		_ = w.pool.jobs.Fail(ctx, job.ID, err.Error())
		return fmt.Errorf("loading task state: %w", err)
	}

	output, runErr := w.dispatcher.Dispatch(jobCtx, st, job, w.id)

	switch {
	case runErr == nil:
		completed, cerr := w.pool.jobs.Complete(ctx, job.ID, output)
		if cerr != nil {
			log.Error("failed to record job completion", "error", cerr)
			return cerr
		}
		if !completed {
			// rowcount 0: a concurrent cancellation won the race.
			log.Info("job completion superseded by cancellation")
			break
		}
		log.Info("job completed")
		w.enqueueVerifyNLI(ctx, job.TaskID)
	case errors.Is(jobCtx.Err(), context.Canceled):
		if cerr := w.pool.jobs.Cancel(ctx, job.ID); cerr != nil {
			log.Error("failed to record job cancellation", "error", cerr)
		}
		log.Info("job cancelled")
	default:
		if ferr := w.pool.jobs.Fail(ctx, job.ID, runErr.Error()); ferr != nil {
			log.Error("failed to record job failure", "error", ferr)
		}
		log.Warn("job failed", "error", runErr)
	}

	w.mu.Lock()
	w.jobsProcessed++
	w.mu.Unlock()
	return nil
}

// enqueueVerifyNLI enqueues the post-completion verification job; enqueue
// failure must not fail the target (spec.md §4.5).
func (w *Worker) enqueueVerifyNLI(ctx context.Context, taskID string) {
	job := models.Job{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		Kind:     models.JobVerifyNLI,
		State:    models.JobQueued,
		Priority: models.PriorityLow,
		Input:    map[string]any{"task_id": taskID},
		QueuedAt: time.Now(),
	}
	if err := w.pool.jobs.Enqueue(ctx, job); err != nil {
		slog.Warn("failed to enqueue verify_nli job", "task_id", taskID, "error", err)
	}
}

func (w *Worker) setStatus(status WorkerStatus, jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentJobID = jobID
	w.lastActivity = time.Now()
}
