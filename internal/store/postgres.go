package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/predictgate/pkg/models"
)

// PostgresStore archives finished prediction jobs using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ArchiveJob writes a terminal job. Archiving the same job twice keeps the
// first row.
func (s *PostgresStore) ArchiveJob(ctx context.Context, job models.Job) error {
	if !job.Status.IsTerminal() {
		return ErrNotTerminal
	}

	var predictions []float64
	var modelVersion *string
	if job.Result != nil {
		predictions = job.Result.Predictions
		modelVersion = &job.Result.ModelVersion
	}
	var errMsg *string
	if job.Error != "" {
		errMsg = &job.Error
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO prediction_jobs (id, status, rows, predictions, model_version, error_message, submitted_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		job.ID, string(job.Status), job.Rows, predictions, modelVersion, errMsg,
		job.SubmittedAt, job.StartedAt, job.CompletedAt)
	if err != nil {
		return fmt.Errorf("archive job: %w", err)
	}
	return nil
}

// GetArchivedJob loads an archived job. The input matrix is not archived, so
// Input is always nil.
func (s *PostgresStore) GetArchivedJob(ctx context.Context, id string) (models.Job, error) {
	var (
		j            models.Job
		status       string
		predictions  []float64
		modelVersion *string
		errMsg       *string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, rows, predictions, model_version, error_message, submitted_at, started_at, completed_at
		 FROM prediction_jobs WHERE id = $1`, id,
	).Scan(&j.ID, &status, &j.Rows, &predictions, &modelVersion, &errMsg,
		&j.SubmittedAt, &j.StartedAt, &j.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get archived job: %w", err)
	}

	j.Status = models.JobStatus(status)
	if j.Status == models.JobStatusSucceeded {
		version := ""
		if modelVersion != nil {
			version = *modelVersion
		}
		j.Result = models.NewPredictionResult(predictions, version)
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	return j, nil
}

// CountArchivedJobs returns how many jobs have been archived.
func (s *PostgresStore) CountArchivedJobs(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM prediction_jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count archived jobs: %w", err)
	}
	return n, nil
}
