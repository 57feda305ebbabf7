package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/predictgate/internal/config"
	"github.com/kiranshivaraju/predictgate/internal/store"
	"github.com/kiranshivaraju/predictgate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("predictgate_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr))

	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             connStr,
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		AppName:         "predictgate-archive-test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool, connStr
}

func finishedJob(id string, status models.JobStatus) models.Job {
	submitted := time.Date(2024, 2, 17, 12, 0, 0, 0, time.UTC)
	started := submitted.Add(time.Second)
	completed := submitted.Add(3 * time.Second)
	job := models.Job{
		ID:          id,
		Status:      status,
		Rows:        2,
		SubmittedAt: submitted,
		StartedAt:   &started,
		CompletedAt: &completed,
	}
	if status == models.JobStatusSucceeded {
		job.Result = models.NewPredictionResult([]float64{42, 42}, "demo-1.0")
	} else {
		job.Error = "prediction failed: boom"
	}
	return job
}

func TestConnect_InvalidURL(t *testing.T) {
	_, err := store.Connect(context.Background(), config.DatabaseConfig{URL: "://bad"})
	assert.ErrorContains(t, err, "parse database URL")
}

func TestRunMigrations_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	_, connStr := setupTestDB(t)

	assert.NoError(t, store.RunMigrations(connStr))
}

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	assert.NoError(t, s.Ping(context.Background()))
}

func TestConnect_SessionSettings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)

	var appName, timeout string
	err := pool.QueryRow(context.Background(),
		"SELECT current_setting('application_name'), current_setting('statement_timeout')").Scan(&appName, &timeout)
	require.NoError(t, err)
	assert.Equal(t, "predictgate-archive-test", appName)
	assert.Equal(t, "5s", timeout)
}

func TestArchiveJob_Succeeded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	job := finishedJob("abc123", models.JobStatusSucceeded)
	require.NoError(t, s.ArchiveJob(ctx, job))

	got, err := s.GetArchivedJob(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, got.Status)
	assert.Equal(t, 2, got.Rows)
	require.NotNil(t, got.Result)
	assert.Equal(t, []float64{42, 42}, got.Result.Predictions)
	assert.Equal(t, "demo-1.0", got.Result.ModelVersion)
	assert.Equal(t, 2, got.Result.Count)
	assert.Empty(t, got.Error)
	assert.True(t, job.SubmittedAt.Equal(got.SubmittedAt))
	require.NotNil(t, got.CompletedAt)
	assert.True(t, job.CompletedAt.Equal(*got.CompletedAt))
}

func TestArchiveJob_Failed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.ArchiveJob(ctx, finishedJob("failed1", models.JobStatusFailed)))

	got, err := s.GetArchivedJob(ctx, "failed1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, got.Status)
	assert.Nil(t, got.Result)
	assert.Equal(t, "prediction failed: boom", got.Error)
}

func TestArchiveJob_Duplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	require.NoError(t, s.ArchiveJob(ctx, finishedJob("dup", models.JobStatusSucceeded)))
	require.NoError(t, s.ArchiveJob(ctx, finishedJob("dup", models.JobStatusFailed)))

	got, err := s.GetArchivedJob(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSucceeded, got.Status)

	n, err := s.CountArchivedJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestArchiveJob_RejectsUnfinished(t *testing.T) {
	s := store.NewPostgresStore(nil)

	err := s.ArchiveJob(context.Background(), models.Job{ID: "q", Status: models.JobStatusQueued})
	assert.ErrorIs(t, err, store.ErrNotTerminal)
}

func TestGetArchivedJob_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, _ := setupTestDB(t)
	s := store.NewPostgresStore(pool)

	_, err := s.GetArchivedJob(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
