// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// JWTAccessSecret is the HS256 secret for access tokens. Required by the server.
	JWTAccessSecret string `mapstructure:"JWT_ACCESS_SECRET"`
	// JWTRefreshSecret is the HS256 secret for refresh tokens; empty means the access secret is reused.
	JWTRefreshSecret string `mapstructure:"JWT_REFRESH_SECRET"`
	JWTIssuer        string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "7d" or "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`
	// SessionIdleDays is the inactivity threshold of the deep cleanup sweep.
	SessionIdleDays  int `mapstructure:"SESSION_IDLE_DAYS"`
	CleanupBatchSize int `mapstructure:"CLEANUP_BATCH_SIZE"`
	// SweepInterval and DeepSweepInterval schedule the frequent and deep cleanup (e.g. "24h", "7d").
	SweepInterval     string `mapstructure:"CLEANUP_INTERVAL"`
	DeepSweepInterval string `mapstructure:"DEEP_CLEANUP_INTERVAL"`
	// CleanupInProcess runs the cleanup scheduler inside the gRPC server. Set false when cmd/worker runs it.
	CleanupInProcess bool `mapstructure:"CLEANUP_IN_PROCESS"`

	// Redis user-status cache (optional). Disabled when RedisAddr is empty.
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	RedisPassword  string `mapstructure:"REDIS_PASSWORD"`
	RedisDB        int    `mapstructure:"REDIS_DB"`
	StatusCacheTTL string `mapstructure:"USER_STATUS_CACHE_TTL"`

	// Telemetry (optional). When Kafka brokers are set, session events are also produced to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the worker's event relay.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// Worker-only: Loki URL the relay pushes events to (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`

	// OTLP export; providers are no-ops when the endpoint is empty.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", "authcore")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "7d")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("MAX_SESSIONS_PER_USER", 5)
	v.SetDefault("SESSION_IDLE_DAYS", 30)
	v.SetDefault("CLEANUP_BATCH_SIZE", 1000)
	v.SetDefault("CLEANUP_INTERVAL", "24h")
	v.SetDefault("DEEP_CLEANUP_INTERVAL", "168h")
	v.SetDefault("CLEANUP_IN_PROCESS", true)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("USER_STATUS_CACHE_TTL", "60s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "authcore-session-events")
	v.SetDefault("KAFKA_GROUP_ID", "authcore-event-relay")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "authcore")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.MaxSessionsPerUser < 1 {
		return nil, errors.New("config: MAX_SESSIONS_PER_USER must be at least 1")
	}
	if cfg.SessionIdleDays < 1 {
		return nil, errors.New("config: SESSION_IDLE_DAYS must be at least 1")
	}
	if cfg.CleanupBatchSize < 1 {
		return nil, errors.New("config: CLEANUP_BATCH_SIZE must be at least 1")
	}

	for _, d := range []struct{ key, value string }{
		{"JWT_ACCESS_TTL", cfg.JWTAccessTTL},
		{"JWT_REFRESH_TTL", cfg.JWTRefreshTTL},
		{"CLEANUP_INTERVAL", cfg.SweepInterval},
		{"DEEP_CLEANUP_INTERVAL", cfg.DeepSweepInterval},
		{"USER_STATUS_CACHE_TTL", cfg.StatusCacheTTL},
	} {
		if _, err := ParseDuration(d.value); err != nil {
			return nil, fmt.Errorf("config: %s: %w", d.key, err)
		}
	}

	return &cfg, nil
}

// RequireAuth reports an error when the token secrets needed to serve requests are missing.
func (c *Config) RequireAuth() error {
	if c.JWTAccessSecret == "" {
		return errors.New("config: JWT_ACCESS_SECRET must be set")
	}
	return nil
}

// RefreshSecret returns JWTRefreshSecret, or the access secret when it is unset.
func (c *Config) RefreshSecret() string {
	if c.JWTRefreshSecret == "" {
		return c.JWTAccessSecret
	}
	return c.JWTRefreshSecret
}

// RefreshSecretShared reports whether refresh tokens are signed with the access secret.
func (c *Config) RefreshSecretShared() bool {
	return c.JWTRefreshSecret == "" || c.JWTRefreshSecret == c.JWTAccessSecret
}

// AccessTTL parses JWTAccessTTL. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL. Returns 7 days if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 7*24*time.Hour)
}

func (c *Config) CleanupInterval() time.Duration {
	return durationOr(c.SweepInterval, 24*time.Hour)
}

func (c *Config) DeepCleanupInterval() time.Duration {
	return durationOr(c.DeepSweepInterval, 7*24*time.Hour)
}

func (c *Config) UserStatusCacheTTL() time.Duration {
	return durationOr(c.StatusCacheTTL, time.Minute)
}

// SessionMaxIdle is SessionIdleDays as a duration.
func (c *Config) SessionMaxIdle() time.Duration {
	return time.Duration(c.SessionIdleDays) * 24 * time.Hour
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the event stream is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseDuration accepts Go durations plus a whole-day form such as "7d". The result must be positive.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var (
		d   time.Duration
		err error
	)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, perr := strconv.Atoi(days)
		if perr != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		d = time.Duration(n) * 24 * time.Hour
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	d, err := ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
