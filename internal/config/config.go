// Package config defines the global configuration structure for the
// cronwatch ingestion engine. Configuration is loaded once at process
// initialization and is immutable thereafter, following 12-Factor
// principles: values come from the OS environment, optionally seeded from a
// local dotenv file. Any missing required value or invalid format fails the
// process immediately on startup.
package config

import (
	"time"

	"cronwatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used in configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only
// the config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"cronwatch"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	CheckIn       CheckInConfig
	Analytics     AnalyticsConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// Public base URL used to build Link/Location headers (no trailing slash).
	APIExternalURL string `envconfig:"API_EXTERNAL_URL" validate:"required,url"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// RedisConfig holds the rate limiter backend connection settings.
type RedisConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" validate:"required"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// SignalQueueURL is the SQS queue receiving bootstrap signals. Empty
	// disables the queue emitter (signals fall back to the analytics
	// endpoint or logging).
	SignalQueueURL string `envconfig:"SQS_SIGNALS"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// CheckInConfig tunes the ingestion path, the overdue sweeper, and the
// retention archiver.
type CheckInConfig struct {
	// Admission control: RateLimit check-ins per RateLimitWindow per monitor.
	RateLimit       int           `envconfig:"CHECKIN_RATE_LIMIT" default:"5"`
	RateLimitWindow time.Duration `envconfig:"CHECKIN_RATE_WINDOW" default:"60s"`

	DefaultEnvironment string `envconfig:"CHECKIN_DEFAULT_ENVIRONMENT" default:"production"`

	// Sweeper: monitors missing next_checkin by more than their margin
	// (DefaultMarginMinutes when unset per-monitor) get a MISSED check-in.
	DefaultMarginMinutes int `envconfig:"SWEEP_DEFAULT_MARGIN_MINUTES" default:"1"`
	SweepBatchSize       int `envconfig:"SWEEP_BATCH_SIZE" default:"500"`
	SweepConcurrency     int `envconfig:"SWEEP_CONCURRENCY" default:"8"`

	// Archiver: check-ins older than RetentionDays are compressed and
	// drained in ArchiveBatchSize batches.
	RetentionDays    int `envconfig:"CHECKIN_RETENTION_DAYS" default:"90"`
	ArchiveBatchSize int `envconfig:"ARCHIVE_BATCH_SIZE" default:"1000"`
}

// AnalyticsConfig holds the HTTP analytics sink for bootstrap signals.
// Empty endpoint disables the HTTP emitter.
type AnalyticsConfig struct {
	Endpoint  string        `envconfig:"ANALYTICS_ENDPOINT" validate:"omitempty,url"`
	Timeout   time.Duration `envconfig:"ANALYTICS_TIMEOUT" default:"5s"`
	UserAgent string        `envconfig:"ANALYTICS_USER_AGENT" default:"Cronwatch-Signals/1.0"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Cronwatch"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}
