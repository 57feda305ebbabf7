package jobs

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"
)

// Janitor periodically sweeps a Store: it fails jobs older than the max age
// that never finished and evicts terminal jobs past their retention.
type Janitor struct {
	store    Store
	policy   SweepPolicy
	interval time.Duration
	clock    clock.WithTicker
	logger   *slog.Logger
	recorder Recorder
	archiver Archiver
}

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithSweepRecorder reports jobs failed for max age as completed.
func WithSweepRecorder(r Recorder) JanitorOption {
	return func(j *Janitor) { j.recorder = r }
}

// WithSweepArchiver archives jobs failed for max age.
func WithSweepArchiver(a Archiver) JanitorOption {
	return func(j *Janitor) { j.archiver = a }
}

// NewJanitor returns a Janitor, or nil when policy disables both rules.
func NewJanitor(store Store, policy SweepPolicy, interval time.Duration, clk clock.WithTicker, opts ...JanitorOption) *Janitor {
	if policy.MaxAge <= 0 && policy.Retention <= 0 {
		return nil
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	j := &Janitor{
		store:    store,
		policy:   policy,
		interval: interval,
		clock:    clk,
		logger:   slog.Default().With("component", "janitor"),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps every interval until ctx is cancelled. It returns nil on cancellation.
func (j *Janitor) Run(ctx context.Context) error {
	j.logger.InfoContext(ctx, "starting janitor",
		"interval", j.interval,
		"max_age", j.policy.MaxAge,
		"retention", j.policy.Retention,
	)

	ticker := j.clock.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			j.SweepOnce()
		}
	}
}

// SweepOnce runs a single sweep at the current clock time.
func (j *Janitor) SweepOnce() SweepStats {
	stats := j.store.Sweep(j.clock.Now(), j.policy)
	for _, job := range stats.ExpiredJobs {
		j.recorder.JobCompleted(job.Status, job.CompletedAt.Sub(job.SubmittedAt))
		j.logger.Warn("job expired", "job_id", job.ID, "max_age", j.policy.MaxAge)
		archive(j.archiver, j.logger, job)
	}
	if stats.Expired > 0 || stats.Evicted > 0 {
		j.logger.Info("sweep finished", "expired", stats.Expired, "evicted", stats.Evicted, "remaining", j.store.Len())
	}
	return stats
}
