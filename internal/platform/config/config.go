// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the complete service configuration.
type Config struct {
	Server      Server      `envPrefix:"CELEBRATE_"`
	Database    Database    `envPrefix:"CELEBRATE_DB_"`
	Redis       RedisConfig `envPrefix:"CELEBRATE_REDIS_"`
	Kafka       Kafka       `envPrefix:"CELEBRATE_KAFKA_"`
	Payment     Payment     `envPrefix:"CELEBRATE_PAYMENT_"`
	Legislation Legislation `envPrefix:"CELEBRATE_LEGISLATION_"`
	Limits      Limits      `envPrefix:"CELEBRATE_LIMITS_"`
	Escrow      Escrow      `envPrefix:"CELEBRATE_ESCROW_"`
	Worker      Worker      `envPrefix:"CELEBRATE_WORKER_"`
	Tracing     Tracing     `envPrefix:"CELEBRATE_OTEL_"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	Environment     string        `env:"ENV" envDefault:"dev"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	AdminToken      string        `env:"ADMIN_TOKEN"`
	JWTSigningKey   string        `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"celebrate"`
	JWTAudience     string        `env:"JWT_AUDIENCE" envDefault:"celebrate-api"`
	WebhookSecret   string        `env:"WEBHOOK_SECRET"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Per client IP on donor routes. Zero disables throttling.
	RatePerSecond float64 `env:"RATE_PER_SECOND" envDefault:"10"`
	RateBurst     int     `env:"RATE_BURST" envDefault:"20"`
}

// Database configures the Postgres connection. An empty URL selects in-memory stores.
type Database struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	Migrate         bool          `env:"MIGRATE" envDefault:"true"`
}

// RedisConfig configures the Redis client. An empty URL disables Redis.
type RedisConfig struct {
	URL          string        `env:"URL"`
	PoolSize     int           `env:"POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka configures the outbox relay. No brokers disables the relay.
type Kafka struct {
	Brokers       []string      `env:"BROKERS" envSeparator:","`
	Topic         string        `env:"TOPIC" envDefault:"celebration.events"`
	RelayInterval time.Duration `env:"RELAY_INTERVAL" envDefault:"2s"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"100"`
	CreateTopic   bool          `env:"CREATE_TOPIC" envDefault:"true"`
	Partitions    int32         `env:"TOPIC_PARTITIONS" envDefault:"-1"`
	Replicas      int16         `env:"TOPIC_REPLICAS" envDefault:"-1"`
}

// Payment configures the payment gateway client. An empty base URL selects the fake gateway.
type Payment struct {
	BaseURL          string        `env:"BASE_URL"`
	APIKey           string        `env:"API_KEY"`
	Timeout          time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RatePerSecond    float64       `env:"RATE_PER_SECOND" envDefault:"20"`
	Burst            int           `env:"BURST" envDefault:"40"`
	MaxRetries       uint          `env:"MAX_RETRIES" envDefault:"3"`
	BreakerThreshold int           `env:"BREAKER_THRESHOLD" envDefault:"5"`
	BreakerCooldown  time.Duration `env:"BREAKER_COOLDOWN" envDefault:"30s"`
}

// Legislation configures the legislative status source. An empty base URL selects the static source.
type Legislation struct {
	BaseURL   string        `env:"BASE_URL"`
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"5s"`
	CacheSize int           `env:"CACHE_SIZE" envDefault:"1024"`
	CacheTTL  time.Duration `env:"CACHE_TTL" envDefault:"1m"`
}

// Limits holds tier limits in cents.
type Limits struct {
	GuestPerDonation     int64  `env:"GUEST_PER_DONATION" envDefault:"5000"`
	GuestAnnualCap       int64  `env:"GUEST_ANNUAL_CAP" envDefault:"5000"`
	CompliantPerDonation int64  `env:"COMPLIANT_PER_DONATION" envDefault:"350000"`
	CompliantPerElection int64  `env:"COMPLIANT_PER_ELECTION" envDefault:"350000"`
	TipCeiling           int64  `env:"TIP_CEILING" envDefault:"100000"`
	TimeZone             string `env:"TIME_ZONE" envDefault:"America/New_York"`
}

// Escrow configures the pledge window and primary calendar.
type Escrow struct {
	Window time.Duration `env:"WINDOW" envDefault:"8760h"`
	// PrimaryCalendarPath is a YAML calendar file. Empty uses the built-in
	// calendar; "none" disables primary buckets.
	PrimaryCalendarPath string `env:"PRIMARY_CALENDAR"`
}

// Worker configures background jobs and trigger concurrency.
type Worker struct {
	TriggerConcurrency int           `env:"TRIGGER_CONCURRENCY" envDefault:"8"`
	StaleRetries       int           `env:"STALE_RETRIES" envDefault:"3"`
	LockTTL            time.Duration `env:"LOCK_TTL" envDefault:"30s"`
	WatchInterval      time.Duration `env:"WATCH_INTERVAL" envDefault:"1m"`
	RetryInterval      time.Duration `env:"RETRY_INTERVAL" envDefault:"15s"`
	RetryInitialDelay  time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"1m"`
	RetryMaxDelay      time.Duration `env:"RETRY_MAX_DELAY" envDefault:"4h"`
	RetryMaxAttempts   int           `env:"RETRY_MAX_ATTEMPTS" envDefault:"12"`
	ExpireInterval     time.Duration `env:"EXPIRE_INTERVAL" envDefault:"10m"`
	WebhookDedupeTTL   time.Duration `env:"WEBHOOK_DEDUPE_TTL" envDefault:"720h"`
	// Enabled runs the watcher, retry and expiry jobs inside the server.
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// Tracing configures OTLP span export. No endpoint keeps tracing off.
type Tracing struct {
	Endpoint    string  `env:"ENDPOINT"`
	Enabled     bool    `env:"ENABLED" envDefault:"true"`
	SampleRatio float64 `env:"SAMPLE_RATIO" envDefault:"1"`
}

// minLockTTL keeps lock renewal (every ttl/3) well clear of Redis round trips.
const minLockTTL = 3 * time.Second

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Limits.GuestPerDonation <= 0 || c.Limits.GuestAnnualCap <= 0 {
		return fmt.Errorf("guest limits must be positive")
	}
	if c.Limits.CompliantPerDonation <= 0 || c.Limits.CompliantPerElection <= 0 {
		return fmt.Errorf("compliant limits must be positive")
	}
	if c.Limits.TipCeiling <= 0 {
		return fmt.Errorf("tip ceiling must be positive")
	}
	if _, err := time.LoadLocation(c.Limits.TimeZone); err != nil {
		return fmt.Errorf("invalid limits time zone %q: %w", c.Limits.TimeZone, err)
	}
	if c.Worker.TriggerConcurrency < 1 {
		return fmt.Errorf("trigger concurrency must be at least 1")
	}
	if c.Worker.LockTTL < minLockTTL {
		return fmt.Errorf("lock ttl must be at least %s", minLockTTL)
	}
	if c.Worker.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("trace sample ratio must be within [0, 1]")
	}
	if c.Environment() == "prod" {
		if c.Server.AdminToken == "" {
			return fmt.Errorf("CELEBRATE_ADMIN_TOKEN is required in prod")
		}
		if c.Server.WebhookSecret == "" {
			return fmt.Errorf("CELEBRATE_WEBHOOK_SECRET is required in prod")
		}
	}
	return nil
}

// Environment returns the deployment environment name.
func (c Config) Environment() string {
	return c.Server.Environment
}
