package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the predictgate server.
type Config struct {
	Server    ServerConfig
	Predictor PredictorConfig
	Jobs      JobsConfig
	Redis     RedisConfig
	Database  DatabaseConfig
}

type ServerConfig struct {
	Port          int    `env:"PREDICT_PORT" envDefault:"8080"`
	Env           string `env:"PREDICT_ENV" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
}

type PredictorConfig struct {
	Backend          string        `env:"PREDICTOR" envDefault:"demo"`
	ModelVersion     string        `env:"MODEL_VERSION" envDefault:"demo-1.0"`
	SyncValue        float64       `env:"DEMO_SYNC_VALUE" envDefault:"0"`
	AsyncValue       float64       `env:"DEMO_ASYNC_VALUE" envDefault:"42"`
	AsyncDelay       time.Duration `env:"DEMO_ASYNC_DELAY" envDefault:"3s"`
	InferenceTimeout time.Duration `env:"INFERENCE_TIMEOUT" envDefault:"30s"`
	MaxRows          int           `env:"MAX_ROWS" envDefault:"10000"`

	// Remote backend only.
	RemoteURL   string `env:"PREDICTOR_URL"`
	RemoteToken string `env:"PREDICTOR_TOKEN"`
}

type JobsConfig struct {
	Workers       int           `env:"JOB_WORKERS" envDefault:"16"`
	QueueCapacity int           `env:"JOB_QUEUE_CAPACITY" envDefault:"1024"`
	MaxAge        time.Duration `env:"JOB_MAX_AGE" envDefault:"0s"`
	Retention     time.Duration `env:"JOB_RETENTION" envDefault:"0s"`
	SweepInterval time.Duration `env:"JOB_SWEEP_INTERVAL" envDefault:"1m"`
}

// RedisConfig enables per-client rate limiting when URL is set.
type RedisConfig struct {
	URL                string `env:"REDIS_URL"`
	RateLimitPerMinute int    `env:"RATE_LIMIT_PER_MINUTE" envDefault:"600"`
}

// DatabaseConfig enables the job archive when URL is set.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"2"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"5m"`
	AppName         string        `env:"DATABASE_APPLICATION_NAME" envDefault:"predictgate-archive"`
}

var validBackends = map[string]bool{
	"demo":     true,
	"constant": true,
	"remote":   true,
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Load reads configuration from the environment (and a .env file if one
// exists) and returns a validated Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	return logLevels[strings.ToLower(c.Server.LogLevel)]
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PREDICT_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if _, ok := logLevels[strings.ToLower(c.Server.LogLevel)]; !ok {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error; got %q", c.Server.LogLevel)
	}
	if u := c.Server.PublicBaseURL; u != "" && !hasHTTPScheme(u) {
		return fmt.Errorf("PUBLIC_BASE_URL must start with http:// or https://, got %q", u)
	}

	if !validBackends[c.Predictor.Backend] {
		return fmt.Errorf("PREDICTOR must be one of demo, constant, remote; got %q", c.Predictor.Backend)
	}
	if c.Predictor.Backend == "remote" && !hasHTTPScheme(c.Predictor.RemoteURL) {
		return fmt.Errorf("PREDICTOR_URL must be an http(s) URL when PREDICTOR=remote")
	}
	if c.Predictor.ModelVersion == "" {
		return fmt.Errorf("MODEL_VERSION is required")
	}
	if c.Predictor.AsyncDelay < 0 {
		return fmt.Errorf("DEMO_ASYNC_DELAY must not be negative")
	}
	if c.Predictor.InferenceTimeout <= 0 {
		return fmt.Errorf("INFERENCE_TIMEOUT must be positive")
	}
	if c.Predictor.MaxRows < 0 {
		return fmt.Errorf("MAX_ROWS must not be negative")
	}

	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive, got %d", c.Jobs.Workers)
	}
	if c.Jobs.QueueCapacity <= 0 {
		return fmt.Errorf("JOB_QUEUE_CAPACITY must be positive, got %d", c.Jobs.QueueCapacity)
	}
	if c.Jobs.MaxAge < 0 || c.Jobs.Retention < 0 {
		return fmt.Errorf("JOB_MAX_AGE and JOB_RETENTION must not be negative")
	}
	if (c.Jobs.MaxAge > 0 || c.Jobs.Retention > 0) && c.Jobs.SweepInterval <= 0 {
		return fmt.Errorf("JOB_SWEEP_INTERVAL must be positive when JOB_MAX_AGE or JOB_RETENTION is set")
	}

	if c.Redis.URL != "" && c.Redis.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive when REDIS_URL is set")
	}

	if u := c.Database.URL; u != "" && !strings.HasPrefix(u, "postgres://") && !strings.HasPrefix(u, "postgresql://") {
		return fmt.Errorf("DATABASE_URL must start with postgres:// or postgresql://")
	}

	return nil
}

func hasHTTPScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}
