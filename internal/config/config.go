package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	Auth      AuthConfig      `yaml:"auth"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Retention RetentionConfig `yaml:"retention"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port    int    `yaml:"port"`
	Host    string `yaml:"host"`
	BaseURL string `yaml:"base_url"` // public URL used in confirmation links
}

// GetHost returns the server host, with container detection.
func (c ServerConfig) GetHost() string {
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	URL                   string `yaml:"url"`
	MaxOpenConns          int    `yaml:"max_open_conns"`
	MaxIdleConns          int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMins   int    `yaml:"conn_max_lifetime_mins"`
	AcquireTimeoutSeconds int    `yaml:"acquire_timeout_seconds"`
}

// AcquireTimeout returns the budget for short control-plane queries
// (dependency probes, token lookups) as a duration.
func (c DatabaseConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutSeconds) * time.Second
}

// RedisConfig holds the session-store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProviderConfig holds email-provider settings. Kind selects the adapter:
// "http" for the JSON transactional API, "ses" for AWS SES.
type ProviderConfig struct {
	Kind           string `yaml:"kind"`
	BaseURL        string `yaml:"base_url"`
	AuthToken      string `yaml:"auth_token"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	SESRegion      string `yaml:"ses_region"`
	SESAccessKey   string `yaml:"ses_access_key"`
	SESSecretKey   string `yaml:"ses_secret_key"`
}

// Timeout returns the configured request timeout as a duration.
func (c ProviderConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// AuthConfig holds admin session settings.
type AuthConfig struct {
	CookieName      string `yaml:"cookie_name"`
	SessionTTLHours int    `yaml:"session_ttl_hours"`
}

// SessionTTL returns the session lifetime as a duration.
func (c AuthConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// DeliveryConfig holds the delivery-worker tunables.
type DeliveryConfig struct {
	ConcurrentTasks        int `yaml:"concurrent_tasks"`
	MaxRetryAttempts       int `yaml:"max_retry_attempts"`
	RetryBackoffMinutes    int `yaml:"retry_backoff_minutes"`
	EmptyQueueSleepSeconds int `yaml:"empty_queue_sleep_seconds"`
	ErrorSleepSeconds      int `yaml:"error_sleep_seconds"`
}

// EmptyQueueSleep returns the idle sleep as a duration.
func (c DeliveryConfig) EmptyQueueSleep() time.Duration {
	return time.Duration(c.EmptyQueueSleepSeconds) * time.Second
}

// ErrorSleep returns the error backoff as a duration.
func (c DeliveryConfig) ErrorSleep() time.Duration {
	return time.Duration(c.ErrorSleepSeconds) * time.Second
}

// RetryBackoff returns the base retry backoff as a duration.
func (c DeliveryConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMinutes) * time.Minute
}

// RetentionConfig holds the idempotency sweep tunables.
type RetentionConfig struct {
	Days               int `yaml:"days"`
	SweepIntervalHours int `yaml:"sweep_interval_hours"`
}

// Age returns the retention period as a duration.
func (c RetentionConfig) Age() time.Duration {
	return time.Duration(c.Days) * 24 * time.Hour
}

// SweepInterval returns the sweep cadence as a duration.
func (c RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalHours) * time.Hour
}

// Load reads and parses the configuration file, then applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = "http://localhost:8080"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMins == 0 {
		cfg.Database.ConnMaxLifetimeMins = 5
	}
	if cfg.Database.AcquireTimeoutSeconds == 0 {
		cfg.Database.AcquireTimeoutSeconds = 2
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Provider.Kind == "" {
		cfg.Provider.Kind = "http"
	}
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = 10
	}
	if cfg.Provider.SESRegion == "" {
		cfg.Provider.SESRegion = "us-east-1"
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "newsletter_session"
	}
	if cfg.Auth.SessionTTLHours == 0 {
		cfg.Auth.SessionTTLHours = 24
	}
	if cfg.Delivery.ConcurrentTasks == 0 {
		cfg.Delivery.ConcurrentTasks = 10
	}
	if cfg.Delivery.MaxRetryAttempts == 0 {
		cfg.Delivery.MaxRetryAttempts = 5
	}
	if cfg.Delivery.RetryBackoffMinutes == 0 {
		cfg.Delivery.RetryBackoffMinutes = 5
	}
	if cfg.Delivery.EmptyQueueSleepSeconds == 0 {
		cfg.Delivery.EmptyQueueSleepSeconds = 10
	}
	if cfg.Delivery.ErrorSleepSeconds == 0 {
		cfg.Delivery.ErrorSleepSeconds = 1
	}
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 30
	}
	if cfg.Retention.SweepIntervalHours == 0 {
		cfg.Retention.SweepIntervalHours = 24
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// A .env file is loaded first (if present) so secrets can live in .env
// locally and in real env vars on ECS.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Redis.Password = pw
	}
	if v := os.Getenv("PROVIDER_KIND"); v != "" {
		cfg.Provider.Kind = v
	}
	if v := os.Getenv("PROVIDER_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("PROVIDER_AUTH_TOKEN"); v != "" {
		cfg.Provider.AuthToken = v
	}
	if v := os.Getenv("PROVIDER_FROM_EMAIL"); v != "" {
		cfg.Provider.FromEmail = v
	}
	if v := os.Getenv("AWS_SES_ACCESS_KEY"); v != "" {
		cfg.Provider.SESAccessKey = v
	}
	if v := os.Getenv("AWS_SES_SECRET_KEY"); v != "" {
		cfg.Provider.SESSecretKey = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Provider.SESRegion = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	return cfg, nil
}
