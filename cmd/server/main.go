// Package main is the entrypoint for the predictgate API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/kiranshivaraju/predictgate/internal/api"
	"github.com/kiranshivaraju/predictgate/internal/api/handler"
	mw "github.com/kiranshivaraju/predictgate/internal/api/middleware"
	"github.com/kiranshivaraju/predictgate/internal/cache"
	"github.com/kiranshivaraju/predictgate/internal/compute"
	"github.com/kiranshivaraju/predictgate/internal/config"
	"github.com/kiranshivaraju/predictgate/internal/jobs"
	"github.com/kiranshivaraju/predictgate/internal/metrics"
	"github.com/kiranshivaraju/predictgate/internal/store"
	"github.com/kiranshivaraju/predictgate/pkg/features"
	"github.com/kiranshivaraju/predictgate/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))
	slog.Info("config loaded", "predictor", cfg.Predictor.Backend, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Optional job archive
	var archive *store.PostgresStore
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")
		archive = store.NewPostgresStore(pool)
	}

	// 3. Optional Redis for rate limiting
	var redisCache cache.Cache
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("create redis cache: %w", err)
		}
		defer rc.Close()

		if err := rc.Ping(ctx); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		redisCache = rc
	}

	// 4. Predictors
	syncP, asyncP, err := compute.NewPredictors(cfg.Predictor, clock.RealClock{})
	if err != nil {
		return fmt.Errorf("create predictors: %w", err)
	}
	slog.Info("predictors initialized", "sync", syncP.Name(), "async", asyncP.Name(), "model_version", asyncP.ModelVersion())

	a := newApp(cfg, appDeps{
		clock:   clock.RealClock{},
		cache:   redisCache,
		archive: archive,
		sync:    syncP,
		async:   asyncP,
	})

	// 5. Start HTTP server and janitor
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Predictor.InferenceTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if a.janitor != nil {
		g.Go(func() error { return a.janitor.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections...")
		return a.shutdown(srv)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

type appDeps struct {
	clock   clock.WithTicker
	cache   cache.Cache
	archive *store.PostgresStore
	sync    models.Predictor
	async   models.Predictor
}

type app struct {
	router   http.Handler
	store    *jobs.MemoryStore
	executor *jobs.Executor
	janitor  *jobs.Janitor
	metrics  *metrics.Metrics
}

// newApp wires the job store, executor, janitor and HTTP handlers.
func newApp(cfg *config.Config, d appDeps) *app {
	m := metrics.New()

	jobStore := jobs.NewMemoryStore(jobs.WithStoreClock(d.clock))
	m.TrackJobs(jobStore.Len)

	execOpts := []jobs.ExecutorOption{
		jobs.WithClock(d.clock),
		jobs.WithRecorder(m),
		jobs.WithWorkers(cfg.Jobs.Workers),
		jobs.WithCapacity(cfg.Jobs.QueueCapacity),
		jobs.WithMaxAge(cfg.Jobs.MaxAge),
	}
	checks := []handler.HealthCheck{{Name: "cache"}, {Name: "database"}}
	if pinger, ok := d.async.(handler.Pinger); ok {
		checks = append(checks, handler.HealthCheck{Name: "predictor", Pinger: pinger})
	}
	if d.archive != nil {
		execOpts = append(execOpts, jobs.WithArchiver(d.archive))
		checks[1].Pinger = d.archive
	}
	exec := jobs.NewExecutor(jobStore, d.async, execOpts...)

	var rateLimit *mw.RateLimit
	if d.cache != nil {
		rateLimit = mw.NewRateLimit(d.cache, cfg.Redis.RateLimitPerMinute, m.RateLimited)
		checks[0].Pinger = d.cache
	}

	policy := jobs.SweepPolicy{MaxAge: cfg.Jobs.MaxAge, Retention: cfg.Jobs.Retention}
	janitorOpts := []jobs.JanitorOption{jobs.WithSweepRecorder(m)}
	if d.archive != nil {
		janitorOpts = append(janitorOpts, jobs.WithSweepArchiver(d.archive))
	}
	janitor := jobs.NewJanitor(jobStore, policy, cfg.Jobs.SweepInterval, d.clock, janitorOpts...)

	v := features.Validator{MaxRows: cfg.Predictor.MaxRows}
	router := api.NewRouter(api.Dependencies{
		RateLimit:           rateLimit,
		HealthHandler:       handler.NewHealthHandler(checks...),
		MetricsHandler:      m.Handler(),
		PredictHandler:      handler.NewPredictHandler(d.sync, v, cfg.Predictor.InferenceTimeout, m),
		PredictAsyncHandler: handler.NewPredictAsyncHandler(exec, v, cfg.Server.PublicBaseURL),
		GetJobHandler:       handler.NewGetJobHandler(jobStore),
	})

	return &app{
		router:   router,
		store:    jobStore,
		executor: exec,
		janitor:  janitor,
		metrics:  m,
	}
}

// shutdown stops the HTTP server first so no new jobs arrive, then drains the
// executor. Both share one deadline.
func (a *app) shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := a.executor.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("executor shutdown: %w", err))
	}
	return errors.Join(errs...)
}
