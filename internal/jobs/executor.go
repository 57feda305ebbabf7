package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"
)

const (
	defaultWorkers  = 16
	defaultCapacity = 1024
	archiveTimeout  = 5 * time.Second
)

// Recorder receives job lifecycle events, typically for metrics.
type Recorder interface {
	JobSubmitted()
	JobRejected(reason string)
	JobCompleted(status models.JobStatus, elapsed time.Duration)
}

// Archiver stores terminal jobs outside the process. Failures are logged and
// never affect the job's state.
type Archiver interface {
	ArchiveJob(ctx context.Context, job models.Job) error
}

type nopRecorder struct{}

func (nopRecorder) JobSubmitted()                                {}
func (nopRecorder) JobRejected(string)                           {}
func (nopRecorder) JobCompleted(models.JobStatus, time.Duration) {}

// Executor runs submitted jobs on a fixed pool of workers fed by a bounded
// queue. Every admitted job reaches a terminal state exactly once.
type Executor struct {
	store     Store
	predictor models.Predictor
	clock     clock.Clock
	logger    *slog.Logger
	recorder  Recorder
	archiver  Archiver
	workers   int
	capacity  int
	maxAge    time.Duration

	// slots bounds outstanding (queued + running) jobs and is acquired
	// before the job is created, so a full executor creates nothing.
	slots *semaphore.Weighted
	queue chan string

	mu        sync.Mutex
	closed    bool
	abort     chan struct{}
	abortOnce sync.Once
	wg        sync.WaitGroup
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

func WithClock(c clock.Clock) ExecutorOption {
	return func(e *Executor) { e.clock = c }
}

func WithLogger(l *slog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

func WithRecorder(r Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

func WithArchiver(a Archiver) ExecutorOption {
	return func(e *Executor) { e.archiver = a }
}

// WithWorkers sets how many jobs may compute concurrently.
func WithWorkers(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithCapacity sets the maximum number of outstanding jobs.
func WithCapacity(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.capacity = n
		}
	}
}

// WithMaxAge fails jobs that are not finished this long after submission.
func WithMaxAge(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.maxAge = d }
}

// NewExecutor creates an Executor and starts its workers.
func NewExecutor(store Store, predictor models.Predictor, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:     store,
		predictor: predictor,
		clock:     clock.RealClock{},
		logger:    slog.Default(),
		recorder:  nopRecorder{},
		workers:   defaultWorkers,
		capacity:  defaultCapacity,
		abort:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "executor")
	e.slots = semaphore.NewWeighted(int64(e.capacity))
	e.queue = make(chan string, e.capacity)

	e.wg.Add(e.workers)
	for i := 0; i < e.workers; i++ {
		go e.worker()
	}
	return e
}

// Submit creates a queued job for input and schedules it. It returns as soon
// as the job is queued, without waiting for the prediction.
func (e *Executor) Submit(ctx context.Context, input features.Matrix) (string, error) {
	if e.isClosed() {
		e.recorder.JobRejected("shutting_down")
		return "", ErrShuttingDown
	}
	if !e.slots.TryAcquire(1) {
		e.recorder.JobRejected("queue_full")
		return "", ErrQueueFull
	}

	id, err := e.store.Create(ctx, input)
	if err != nil {
		e.slots.Release(1)
		return "", fmt.Errorf("creating job: %w", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.slots.Release(1)
		// The job exists but no worker will take it.
		_, _ = e.store.Complete(context.Background(), id, Outcome{Err: ErrShuttingDown})
		e.recorder.JobRejected("shutting_down")
		return "", ErrShuttingDown
	}
	// Never blocks: slots caps outstanding jobs at cap(queue).
	e.queue <- id
	e.mu.Unlock()

	e.recorder.JobSubmitted()
	e.logger.Debug("job queued", "job_id", id, "rows", input.Rows())
	return id, nil
}

// Shutdown stops accepting jobs and waits for queued and running jobs to
// finish. If ctx expires first, the remaining jobs are failed with
// ErrShuttingDown and ctx's error is returned.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.queue)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.abortOnce.Do(func() { close(e.abort) })
		<-done
		return ctx.Err()
	}
}

func (e *Executor) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for id := range e.queue {
		e.process(id)
	}
}

// process runs one job and records its single terminal transition.
func (e *Executor) process(id string) {
	defer e.slots.Release(1)

	outcome := e.execute(id)

	job, err := e.store.Complete(context.Background(), id, outcome)
	switch {
	case errors.Is(err, ErrAlreadyCompleted):
		// Expired by the janitor, which already recorded and archived it.
		e.logger.Debug("job completed elsewhere", "job_id", id)
		return
	case err != nil:
		e.logger.Error("completing job", "job_id", id, "error", err)
		return
	}

	elapsed := job.CompletedAt.Sub(job.SubmittedAt)
	e.recorder.JobCompleted(job.Status, elapsed)
	if job.Status == models.JobStatusFailed {
		e.logger.Warn("job failed", "job_id", id, "error", job.Error, "elapsed_ms", elapsed.Milliseconds())
	} else {
		e.logger.Info("job succeeded", "job_id", id, "count", job.Result.Count, "elapsed_ms", elapsed.Milliseconds())
	}

	archive(e.archiver, e.logger, job)
}

// archive hands a terminal job to a, logging instead of returning failures.
func archive(a Archiver, logger *slog.Logger, job models.Job) {
	if a == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := a.ArchiveJob(ctx, job); err != nil {
		logger.Warn("archiving job", "job_id", job.ID, "error", err)
	}
}

func (e *Executor) execute(id string) Outcome {
	select {
	case <-e.abort:
		return Outcome{Err: ErrShuttingDown}
	default:
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := e.store.Get(ctx, id)
	if err != nil {
		return Outcome{Err: fmt.Errorf("loading job: %w", err)}
	}
	if err := e.store.MarkRunning(ctx, id); err != nil {
		return Outcome{Err: err}
	}

	var deadline <-chan time.Time
	if e.maxAge > 0 {
		remaining := e.maxAge - e.clock.Since(job.SubmittedAt)
		if remaining <= 0 {
			return Outcome{Err: ErrJobTimedOut}
		}
		t := e.clock.NewTimer(remaining)
		defer t.Stop()
		deadline = t.C()
	}

	results := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("panic in predictor", "job_id", id, "error", r)
				results <- Outcome{Err: fmt.Errorf("%w: %v", ErrPredictorPanic, r)}
			}
		}()
		preds, version, err := models.PredictWithVersion(ctx, e.predictor, job.Input)
		if err != nil {
			results <- Outcome{Err: fmt.Errorf("prediction failed: %w", err)}
			return
		}
		results <- Outcome{Predictions: preds, ModelVersion: version}
	}()

	select {
	case out := <-results:
		return out
	case <-deadline:
		return Outcome{Err: ErrJobTimedOut}
	case <-e.abort:
		return Outcome{Err: ErrShuttingDown}
	}
}
