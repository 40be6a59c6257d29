package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig         `envPrefix:"APP_"`
	Database    DatabaseConfig    `envPrefix:"DB_"`
	Redis       RedisConfig       `envPrefix:"REDIS_"`
	JWT         JWTConfig         `envPrefix:"JWT_"`
	Period      PeriodConfig      `envPrefix:"PERIOD_"`
	Queue       QueueConfig       `envPrefix:"QUEUE_"`
	StatusCache StatusCacheConfig `envPrefix:"STATUS_CACHE_"`
	Cron        CronConfig        `envPrefix:"CRON_"`
	RateLimit   RateLimitConfig   `envPrefix:"RATE_LIMIT_"`
}

type DatabaseConfig struct {
	Host        string `env:"HOST" envDefault:"localhost"`
	Port        int    `env:"PORT" envDefault:"5432"`
	User        string `env:"USER" envDefault:"postgres"`
	Password    string `env:"PASSWORD"`
	Name        string `env:"NAME" envDefault:"cmlabs-hris"`
	SSLMode     string `env:"SSL_MODE" envDefault:"disable"`
	MaxConns    int32  `env:"MAX_CONNS" envDefault:"25"`
	MinConns    int32  `env:"MIN_CONNS" envDefault:"5"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"false"`
}

// RedisConfig is optional. Without a URL the shared cache lives in process memory,
// which is only correct for a single instance.
type RedisConfig struct {
	URL    string `env:"URL"`
	Prefix string `env:"PREFIX" envDefault:"attendance"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret string        `env:"SECRET_KEY"`
	Skew   time.Duration `env:"ACCEPTABLE_SKEW" envDefault:"30s"`
}

// AppConfig holds application configuration
type AppConfig struct {
	Port            int           `env:"PORT" envDefault:"8080"`
	Env             string        `env:"ENV" envDefault:"development"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	Timezone        string        `env:"TIMEZONE" envDefault:"Asia/Jakarta"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// PeriodConfig holds the business thresholds of the period engine.
type PeriodConfig struct {
	EarlyCheckIn         time.Duration `env:"EARLY_CHECK_IN" envDefault:"30m"`
	OvertimeEarlyCheckIn time.Duration `env:"OVERTIME_EARLY_CHECK_IN" envDefault:"15m"`
	LateCheckIn          time.Duration `env:"LATE_CHECK_IN" envDefault:"15m"`
	LateCheckOut         time.Duration `env:"LATE_CHECK_OUT" envDefault:"15m"`
	VeryLateCheckOut     time.Duration `env:"VERY_LATE_CHECK_OUT" envDefault:"60m"`
	TransitionLookahead  time.Duration `env:"TRANSITION_LOOKAHEAD" envDefault:"5m"`
	TransitionGrace      time.Duration `env:"TRANSITION_GRACE" envDefault:"15m"`
	RelevanceLookback    time.Duration `env:"RELEVANCE_LOOKBACK" envDefault:"30m"`
	StateCacheTTL        time.Duration `env:"STATE_CACHE_TTL" envDefault:"30s"`
	CacheGranularity     time.Duration `env:"CACHE_GRANULARITY" envDefault:"1m"`
}

type QueueConfig struct {
	Capacity          int           `env:"CAPACITY" envDefault:"100"`
	HardTimeout       time.Duration `env:"HARD_TIMEOUT" envDefault:"30s"`
	OperationTimeout  time.Duration `env:"OPERATION_TIMEOUT" envDefault:"20s"`
	Retention         time.Duration `env:"RETENTION" envDefault:"1h"`
	StalledThreshold  time.Duration `env:"STALLED_THRESHOLD" envDefault:"15s"`
	AutoCompleteBatch int           `env:"AUTO_COMPLETE_BATCH" envDefault:"500"`
}

type StatusCacheConfig struct {
	FreshTTL time.Duration `env:"FRESH_TTL" envDefault:"15s"`
	StaleTTL time.Duration `env:"STALE_TTL" envDefault:"2m"`
	LockTTL  time.Duration `env:"LOCK_TTL" envDefault:"5s"`
	LockWait time.Duration `env:"LOCK_WAIT" envDefault:"2s"`
}

type CronConfig struct {
	AutoCompleteInterval time.Duration `env:"AUTO_COMPLETE_INTERVAL" envDefault:"5m"`
	SweepInterval        time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

// RateLimitConfig bounds check-in and check-out requests per employee.
type RateLimitConfig struct {
	PerSecond float64 `env:"PER_SECOND" envDefault:"1"`
	Burst     int     `env:"BURST" envDefault:"5"`
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{}
	if err := env.Parse(config); err != nil {
		aggErr := env.AggregateError{}
		if errors.As(err, &aggErr) && len(aggErr.Errors) > 0 {
			return nil, fmt.Errorf("invalid environment: %w", aggErr.Errors[0])
		}
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE is invalid: %w", err)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive")
	}
	if c.Queue.OperationTimeout > c.Queue.HardTimeout {
		return fmt.Errorf("QUEUE_OPERATION_TIMEOUT must not exceed QUEUE_HARD_TIMEOUT")
	}
	if c.StatusCache.FreshTTL > c.StatusCache.StaleTTL {
		return fmt.Errorf("STATUS_CACHE_FRESH_TTL must not exceed STATUS_CACHE_STALE_TTL")
	}
	if c.Period.CacheGranularity <= 0 {
		return fmt.Errorf("PERIOD_CACHE_GRANULARITY must be positive")
	}
	return nil
}

// Location returns the civil time zone the engine works in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.Database.User),
		url.QueryEscape(c.Database.Password),
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
