package jobs

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kiranshivaraju/predictgate/internal/jobid"
	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
	"k8s.io/utils/clock"
)

const (
	shardCount    = 32
	maxIDAttempts = 8

	// defaultTombstones is the per-shard number of evicted handles remembered.
	defaultTombstones = 2048
)

// shard guards a slice of the keyspace. Records stored in jobs are never
// mutated after being published; every transition swaps in a new record.
type shard struct {
	mu      sync.RWMutex
	jobs    map[string]*models.Job
	evicted tombstones
}

// tombstones remembers the most recently evicted handles in a fixed-size
// ring. Older handles fall back to the randomness of the ID space.
type tombstones struct {
	ids  map[string]struct{}
	ring []string
	next int
}

func newTombstones(limit int) tombstones {
	return tombstones{
		ids:  make(map[string]struct{}, limit),
		ring: make([]string, 0, limit),
	}
}

func (t *tombstones) add(id string) {
	limit := cap(t.ring)
	if limit == 0 {
		return
	}
	if len(t.ring) < limit {
		t.ring = append(t.ring, id)
	} else {
		delete(t.ids, t.ring[t.next])
		t.ring[t.next] = id
		t.next = (t.next + 1) % limit
	}
	t.ids[id] = struct{}{}
}

func (t *tombstones) has(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// MemoryStore is an in-process Store partitioned into independently locked
// shards, so operations on unrelated jobs do not contend on one lock.
type MemoryStore struct {
	shards [shardCount]shard
	ids    jobid.Generator
	clock  clock.PassiveClock
	size   atomic.Int64

	tombstoneLimit int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithIDGenerator replaces the default UUID handle generator.
func WithIDGenerator(g jobid.Generator) MemoryOption {
	return func(s *MemoryStore) { s.ids = g }
}

// WithStoreClock sets the clock used for job timestamps.
func WithStoreClock(c clock.PassiveClock) MemoryOption {
	return func(s *MemoryStore) { s.clock = c }
}

// WithTombstoneLimit sets how many evicted handles each shard remembers so
// they are refused if generated again. Zero disables tombstones.
func WithTombstoneLimit(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n >= 0 {
			s.tombstoneLimit = n
		}
	}
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		ids:            jobid.UUIDGenerator{},
		clock:          clock.RealClock{},
		tombstoneLimit: defaultTombstones,
	}
	for _, opt := range opts {
		opt(s)
	}
	for i := range s.shards {
		s.shards[i].jobs = make(map[string]*models.Job)
		s.shards[i].evicted = newTombstones(s.tombstoneLimit)
	}
	return s
}

func (s *MemoryStore) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.shards[h.Sum32()%shardCount]
}

func (s *MemoryStore) Create(ctx context.Context, input features.Matrix) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	job := &models.Job{
		Status:      models.JobStatusQueued,
		Input:       input.Clone(),
		Rows:        input.Rows(),
		SubmittedAt: s.clock.Now().UTC(),
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.ids.NewID()
		sh := s.shardFor(id)

		sh.mu.Lock()
		_, live := sh.jobs[id]
		if live || sh.evicted.has(id) {
			sh.mu.Unlock()
			continue
		}
		job.ID = id
		sh.jobs[id] = job
		sh.mu.Unlock()

		s.size.Add(1)
		return id, nil
	}
	return "", ErrIDExhausted
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.Job, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	job, ok := sh.jobs[id]
	sh.mu.RUnlock()
	if !ok {
		return models.Job{}, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) MarkRunning(_ context.Context, id string) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	job, ok := sh.jobs[id]
	if !ok {
		return ErrNotFound
	}
	switch {
	case job.Status.IsTerminal():
		return ErrAlreadyCompleted
	case job.Status == models.JobStatusRunning:
		return nil
	}

	next := *job
	now := s.clock.Now().UTC()
	next.Status = models.JobStatusRunning
	next.StartedAt = &now
	sh.jobs[id] = &next
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, id string, outcome Outcome) (models.Job, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	job, ok := sh.jobs[id]
	if !ok {
		return models.Job{}, ErrNotFound
	}
	if job.Status.IsTerminal() {
		return models.Job{}, ErrAlreadyCompleted
	}

	if outcome.Err == nil && len(outcome.Predictions) != job.Rows {
		outcome.Err = fmt.Errorf("%w: got %d for %d rows",
			ErrPredictionCount, len(outcome.Predictions), job.Rows)
	}

	next := *job
	now := s.clock.Now().UTC()
	next.CompletedAt = &now
	if outcome.Err != nil {
		next.Status = models.JobStatusFailed
		next.Error = outcome.Err.Error()
	} else {
		next.Status = models.JobStatusSucceeded
		next.Result = models.NewPredictionResult(
			append([]float64{}, outcome.Predictions...), outcome.ModelVersion)
	}
	sh.jobs[id] = &next
	return next.Clone(), nil
}

func (s *MemoryStore) Sweep(now time.Time, policy SweepPolicy) SweepStats {
	var stats SweepStats
	if policy.MaxAge <= 0 && policy.Retention <= 0 {
		return stats
	}

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for id, job := range sh.jobs {
			switch {
			case !job.Status.IsTerminal():
				if policy.MaxAge > 0 && now.Sub(job.SubmittedAt) >= policy.MaxAge {
					next := *job
					done := now.UTC()
					next.Status = models.JobStatusFailed
					next.Error = ErrJobTimedOut.Error()
					next.CompletedAt = &done
					sh.jobs[id] = &next
					stats.Expired++
					stats.ExpiredJobs = append(stats.ExpiredJobs, next.Clone())
				}
			case policy.Retention > 0 && job.CompletedAt != nil:
				if now.Sub(*job.CompletedAt) >= policy.Retention {
					delete(sh.jobs, id)
					sh.evicted.add(id)
					stats.Evicted++
				}
			}
		}
		sh.mu.Unlock()
	}

	s.size.Add(-int64(stats.Evicted))
	return stats
}

func (s *MemoryStore) Len() int {
	return int(s.size.Load())
}

// Tombstones returns the number of evicted handles currently remembered.
func (s *MemoryStore) Tombstones() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.evicted.ids)
		sh.mu.RUnlock()
	}
	return n
}

var _ Store = (*MemoryStore)(nil)
