package jobs_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kiranshivaraju/predictgate/internal/jobid"
	"github.com/kiranshivaraju/predictgate/internal/jobs"
	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testclock "k8s.io/utils/clock/testing"
)

var sample = features.Matrix{{1, 2, 3}, {4, 5, 6}}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	fc := testclock.NewFakeClock(time.Date(2024, 2, 17, 0, 0, 0, 0, time.UTC))
	s := jobs.NewMemoryStore(jobs.WithStoreClock(fc))
	ctx := context.Background()

	id, err := s.Create(ctx, sample)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	job, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, models.JobStatusQueued, job.Status)
	assert.Equal(t, 2, job.Rows)
	assert.Equal(t, sample, job.Input)
	assert.Nil(t, job.Result)
	assert.Empty(t, job.Error)
	assert.Equal(t, fc.Now(), job.SubmittedAt)
	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_CreateCopiesInput(t *testing.T) {
	s := jobs.NewMemoryStore()
	input := features.Matrix{{1, 2}, {3, 4}}

	id, err := s.Create(context.Background(), input)
	require.NoError(t, err)

	input[0][0] = 99
	job, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, float64(1), job.Input[0][0])
}

func TestMemoryStore_CreateCancelledContext(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Create(ctx, sample)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := jobs.NewMemoryStore()
	_, err := s.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestMemoryStore_GetReturnsSnapshot(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, sample)
	_, err := s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{1, 2}, ModelVersion: "v"})
	require.NoError(t, err)

	first, _ := s.Get(ctx, id)
	first.Result.Predictions[0] = 100
	first.Status = models.JobStatusQueued

	second, _ := s.Get(ctx, id)
	assert.Equal(t, models.JobStatusSucceeded, second.Status)
	assert.Equal(t, []float64{1, 2}, second.Result.Predictions)
}

func TestMemoryStore_CompleteSuccess(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, sample)

	job, err := s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{42, 42}, ModelVersion: "demo-1.0"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, []float64{42, 42}, job.Result.Predictions)
	assert.Equal(t, "demo-1.0", job.Result.ModelVersion)
	assert.Equal(t, 2, job.Result.Count)
	assert.Empty(t, job.Error)
	assert.NotNil(t, job.CompletedAt)
}

func TestMemoryStore_CompleteFailure(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, sample)

	job, err := s.Complete(ctx, id, jobs.Outcome{Err: errors.New("backend exploded")})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, "backend exploded", job.Error)
	assert.Nil(t, job.Result)
}

func TestMemoryStore_CompleteCountMismatchFails(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, sample)

	job, err := s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{1}, ModelVersion: "v"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, jobs.ErrPredictionCount.Error())
}

func TestMemoryStore_CompleteEmptyMatrix(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, features.Matrix{})

	job, err := s.Complete(ctx, id, jobs.Outcome{Predictions: nil, ModelVersion: "v"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, 0, job.Result.Count)
	assert.NotNil(t, job.Result.Predictions)
	assert.Empty(t, job.Result.Predictions)
}

func TestMemoryStore_CompleteTwiceRejected(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, sample)

	_, err := s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{1, 1}, ModelVersion: "v1"})
	require.NoError(t, err)

	_, err = s.Complete(ctx, id, jobs.Outcome{Err: errors.New("late failure")})
	assert.ErrorIs(t, err, jobs.ErrAlreadyCompleted)

	job, _ := s.Get(ctx, id)
	assert.Equal(t, models.JobStatusSucceeded, job.Status)
	assert.Equal(t, "v1", job.Result.ModelVersion)
	assert.Empty(t, job.Error)
}

func TestMemoryStore_CompleteNotFound(t *testing.T) {
	s := jobs.NewMemoryStore()
	_, err := s.Complete(context.Background(), "missing", jobs.Outcome{})
	assert.ErrorIs(t, err, jobs.ErrNotFound)
}

func TestMemoryStore_MarkRunning(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, sample)

	require.NoError(t, s.MarkRunning(ctx, id))
	job, _ := s.Get(ctx, id)
	assert.Equal(t, models.JobStatusRunning, job.Status)
	assert.NotNil(t, job.StartedAt)

	// Idempotent while running.
	require.NoError(t, s.MarkRunning(ctx, id))

	_, err := s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{0, 0}})
	require.NoError(t, err)
	assert.ErrorIs(t, s.MarkRunning(ctx, id), jobs.ErrAlreadyCompleted)
	assert.ErrorIs(t, s.MarkRunning(ctx, "missing"), jobs.ErrNotFound)
}

func TestMemoryStore_RerollsOnCollision(t *testing.T) {
	s := jobs.NewMemoryStore(jobs.WithIDGenerator(&jobid.Fixed{IDs: []string{"a", "a", "b"}}))
	ctx := context.Background()

	first, err := s.Create(ctx, sample)
	require.NoError(t, err)
	second, err := s.Create(ctx, sample)
	require.NoError(t, err)

	assert.Equal(t, "a", first)
	assert.Equal(t, "b", second)
}

func TestMemoryStore_IDExhausted(t *testing.T) {
	s := jobs.NewMemoryStore(jobs.WithIDGenerator(&jobid.Fixed{IDs: []string{"same"}}))
	ctx := context.Background()

	_, err := s.Create(ctx, sample)
	require.NoError(t, err)

	_, err = s.Create(ctx, sample)
	assert.ErrorIs(t, err, jobs.ErrIDExhausted)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_ConcurrentCreateUnique(t *testing.T) {
	const workers, perWorker = 50, 200
	s := jobs.NewMemoryStore()
	ctx := context.Background()

	ids := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := s.Create(ctx, sample)
				if err == nil {
					ids <- id
				}
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, workers*perWorker, s.Len())
}

func TestMemoryStore_ConcurrentCompleteExactlyOnce(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()
	id, _ := s.Create(ctx, sample)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := float64(i)
			_, err := s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{v, v}, ModelVersion: "v"})
			if err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, jobs.ErrAlreadyCompleted)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestMemoryStore_ReadersNeverSeePartialCompletion(t *testing.T) {
	s := jobs.NewMemoryStore()
	ctx := context.Background()

	const n = 200
	ids := make([]string, n)
	for i := range ids {
		ids[i], _ = s.Create(ctx, sample)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, id := range ids {
					job, err := s.Get(ctx, id)
					if !assert.NoError(t, err) {
						return
					}
					switch job.Status {
					case models.JobStatusSucceeded:
						if !assert.NotNil(t, job.Result) || !assert.Equal(t, 2, job.Result.Count) {
							return
						}
					case models.JobStatusQueued, models.JobStatusRunning:
						if !assert.Nil(t, job.Result) {
							return
						}
					}
				}
			}
		}()
	}

	for _, id := range ids {
		_, err := s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{1, 2}, ModelVersion: "v"})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
}

func TestMemoryStore_SweepExpiresStaleJobs(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	s := jobs.NewMemoryStore(jobs.WithStoreClock(fc))
	ctx := context.Background()

	stale, _ := s.Create(ctx, sample)
	fc.Step(time.Minute)
	fresh, _ := s.Create(ctx, sample)

	stats := s.Sweep(fc.Now(), jobs.SweepPolicy{MaxAge: time.Minute})
	assert.Equal(t, 1, stats.Expired)
	assert.Zero(t, stats.Evicted)
	require.Len(t, stats.ExpiredJobs, 1)
	assert.Equal(t, stale, stats.ExpiredJobs[0].ID)
	assert.Equal(t, models.JobStatusFailed, stats.ExpiredJobs[0].Status)
	require.NotNil(t, stats.ExpiredJobs[0].CompletedAt)

	job, _ := s.Get(ctx, stale)
	assert.Equal(t, models.JobStatusFailed, job.Status)
	assert.Equal(t, jobs.ErrJobTimedOut.Error(), job.Error)

	job, _ = s.Get(ctx, fresh)
	assert.Equal(t, models.JobStatusQueued, job.Status)

	_, err := s.Complete(ctx, stale, jobs.Outcome{Predictions: []float64{1, 1}})
	assert.ErrorIs(t, err, jobs.ErrAlreadyCompleted)
}

func TestMemoryStore_SweepEvictsOldTerminalJobs(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	gen := &jobid.Fixed{IDs: []string{"old", "pending", "old", "new"}}
	s := jobs.NewMemoryStore(jobs.WithStoreClock(fc), jobs.WithIDGenerator(gen))
	ctx := context.Background()

	old, _ := s.Create(ctx, sample)
	pending, _ := s.Create(ctx, sample)
	_, err := s.Complete(ctx, old, jobs.Outcome{Predictions: []float64{1, 1}})
	require.NoError(t, err)

	fc.Step(2 * time.Hour)
	stats := s.Sweep(fc.Now(), jobs.SweepPolicy{Retention: time.Hour})
	assert.Equal(t, jobs.SweepStats{Evicted: 1}, stats)
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, old)
	assert.ErrorIs(t, err, jobs.ErrNotFound)
	_, err = s.Get(ctx, pending)
	assert.NoError(t, err, "non-terminal jobs are never evicted")

	// An evicted handle is never issued again.
	id, err := s.Create(ctx, sample)
	require.NoError(t, err)
	assert.Equal(t, "new", id)
}

func TestMemoryStore_SweepDisabled(t *testing.T) {
	s := jobs.NewMemoryStore()
	id, _ := s.Create(context.Background(), sample)

	stats := s.Sweep(time.Now().Add(24*time.Hour), jobs.SweepPolicy{})
	assert.Zero(t, stats)

	job, _ := s.Get(context.Background(), id)
	assert.Equal(t, models.JobStatusQueued, job.Status)
}

func TestMemoryStore_TombstonesAreBounded(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	s := jobs.NewMemoryStore(jobs.WithStoreClock(fc), jobs.WithTombstoneLimit(4))
	ctx := context.Background()

	for i := 0; i < 5000; i++ {
		id, err := s.Create(ctx, sample)
		require.NoError(t, err)
		_, err = s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{1, 1}})
		require.NoError(t, err)
	}

	fc.Step(2 * time.Minute)
	stats := s.Sweep(fc.Now(), jobs.SweepPolicy{Retention: time.Minute})
	assert.Equal(t, 5000, stats.Evicted)
	assert.Zero(t, s.Len())
	assert.LessOrEqual(t, s.Tombstones(), 4*32)
}

func TestMemoryStore_TombstonesDisabled(t *testing.T) {
	fc := testclock.NewFakeClock(time.Now())
	gen := &jobid.Fixed{IDs: []string{"a", "a"}}
	s := jobs.NewMemoryStore(jobs.WithStoreClock(fc), jobs.WithIDGenerator(gen), jobs.WithTombstoneLimit(0))
	ctx := context.Background()

	id, _ := s.Create(ctx, sample)
	_, err := s.Complete(ctx, id, jobs.Outcome{Predictions: []float64{1, 1}})
	require.NoError(t, err)

	fc.Step(time.Hour)
	s.Sweep(fc.Now(), jobs.SweepPolicy{Retention: time.Minute})
	assert.Zero(t, s.Tombstones())

	again, err := s.Create(ctx, sample)
	require.NoError(t, err)
	assert.Equal(t, "a", again)
}
