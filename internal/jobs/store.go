// Package jobs owns the async prediction job lifecycle: the concurrent job
// store, the executor that completes jobs in the background and the janitor
// that expires and evicts old records.
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
)

var (
	ErrNotFound         = errors.New("job not found")
	ErrAlreadyCompleted = errors.New("job already completed")
	ErrIDExhausted      = errors.New("could not allocate a unique job id")
	ErrQueueFull        = errors.New("job queue is full")
	ErrShuttingDown     = errors.New("executor is shutting down")
	ErrJobTimedOut      = errors.New("job exceeded its maximum age")
	ErrPredictionCount  = errors.New("prediction count does not match input rows")
	ErrPredictorPanic   = errors.New("predictor panicked")
)

// Store is the single source of truth for job state. Implementations must be
// safe for concurrent use and must publish every state change atomically.
type Store interface {
	// Create inserts a queued job holding a private copy of input and returns its handle.
	Create(ctx context.Context, input features.Matrix) (string, error)
	// Get returns a snapshot of the job or ErrNotFound.
	Get(ctx context.Context, id string) (models.Job, error)
	// MarkRunning moves a queued job to running.
	MarkRunning(ctx context.Context, id string) error
	// Complete moves a non-terminal job to succeeded or failed exactly once.
	// A second call returns ErrAlreadyCompleted and changes nothing.
	Complete(ctx context.Context, id string, outcome Outcome) (models.Job, error)
	// Sweep fails stale jobs and evicts old terminal jobs according to policy.
	Sweep(now time.Time, policy SweepPolicy) SweepStats
	// Len returns the number of jobs currently held.
	Len() int
}

// Outcome is what an execution produced. A non-nil Err fails the job.
type Outcome struct {
	Predictions  []float64
	ModelVersion string
	Err          error
}

// SweepPolicy controls Store.Sweep. Zero durations disable the matching rule.
type SweepPolicy struct {
	// MaxAge fails queued or running jobs submitted longer ago than this.
	MaxAge time.Duration
	// Retention evicts terminal jobs completed longer ago than this.
	Retention time.Duration
}

type SweepStats struct {
	Expired int
	Evicted int
	// ExpiredJobs holds the terminal snapshots of the jobs failed by this sweep.
	ExpiredJobs []models.Job
}
