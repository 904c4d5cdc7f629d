package app

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"60s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	BackendURL     string        `envconfig:"BACKEND_URL" default:"http://localhost:3000"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"0s"`

	// PGDSN is optional; an empty value disables the reception journal.
	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPoolSize int           `envconfig:"REDIS_POOL_SIZE" default:"10"`
	SessionCookie string        `envconfig:"SESSION_COOKIE" default:"economato_session"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"12h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	StockScanCron     string `envconfig:"STOCK_SCAN_CRON" default:"0 7 * * *"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	if cfg.BackendURL == "" {
		return nil, errors.New("backend url must be provided")
	}
	return &cfg, nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// JournalEnabled reports whether a Postgres DSN was configured.
func (c *Config) JournalEnabled() bool {
	return c != nil && c.PGDSN != ""
}
