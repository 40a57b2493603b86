package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/dzoniops/condo-booking/calsync"
)

type Config struct {
	DBDriver    string `envconfig:"DB_DRIVER" default:"postgres"`
	DatabaseDSN string `envconfig:"DATABASE_DSN" required:"true"`

	GRPCPort    string `envconfig:"PORT" default:"9090"`
	HTTPPort    string `envconfig:"HTTP_PORT" default:"8080"`
	MetricsPort string `envconfig:"METRICS_PORT" default:"9100"`

	RedisURL        string        `envconfig:"REDIS_URL"`
	SnapshotTTL     time.Duration `envconfig:"SNAPSHOT_TTL" default:"24h"`
	RabbitURL       string        `envconfig:"RABBIT_URL"`
	BookingExchange string        `envconfig:"BOOKING_EXCHANGE" default:"booking.exchange"`

	Timezone string `envconfig:"TIMEZONE" default:"Asia/Manila"`

	SyncCron        string        `envconfig:"SYNC_CRON" default:"@hourly"`
	SyncWorkers     int           `envconfig:"SYNC_WORKERS" default:"4"`
	SyncTimeout     time.Duration `envconfig:"SYNC_TIMEOUT" default:"10m"`
	FeedTimeout     time.Duration `envconfig:"FEED_TIMEOUT" default:"15s"`
	FeedCacheDir    string        `envconfig:"FEED_CACHE_DIR" default:"./var/ics-cache"`
	FeedMaxBytes    int64         `envconfig:"FEED_MAX_BYTES" default:"5242880"`
	FeedHorizonDays int           `envconfig:"FEED_HORIZON_DAYS" default:"365"`

	AdminUser     string `envconfig:"ADMIN_USER" default:"admin"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD"`

	LogLevel       string  `envconfig:"LOG_LEVEL" default:"info"`
	TraceSampling  float64 `envconfig:"TRACE_SAMPLING" default:"0.1"`
	PropertiesFile string  `envconfig:"PROPERTIES_FILE"`
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver)
	}
	if c.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE: %w", err)
	}
	if err := calsync.ValidateSchedule(c.SyncCron); err != nil {
		return fmt.Errorf("SYNC_CRON: %w", err)
	}
	if c.SyncWorkers < 1 {
		return fmt.Errorf("SYNC_WORKERS must be at least 1, got %d", c.SyncWorkers)
	}
	if c.FeedTimeout <= 0 {
		return errors.New("FEED_TIMEOUT must be positive")
	}
	if c.FeedHorizonDays < 1 {
		return fmt.Errorf("FEED_HORIZON_DAYS must be at least 1, got %d", c.FeedHorizonDays)
	}
	if c.TraceSampling < 0 || c.TraceSampling > 1 {
		return fmt.Errorf("TRACE_SAMPLING must be within [0, 1], got %v", c.TraceSampling)
	}
	return nil
}

// Location returns the configured business time zone. Validate has
// already checked it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AdminEnabled reports whether admin routes should be served.
func (c *Config) AdminEnabled() bool {
	return c.AdminUser != "" && c.AdminPassword != ""
}
