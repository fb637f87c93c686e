package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the service
type Config struct {
	App        AppConfig        `yaml:"app"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Mautic     MauticConfig     `yaml:"mautic"`
	Sync       SyncConfig       `yaml:"sync"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// AppConfig identifies the running environment.
type AppConfig struct {
	Name string `yaml:"name"`
	Env  string `yaml:"env"` // development, production, test
}

// IsTest reports whether the process runs under the test environment.
func (c AppConfig) IsTest() bool {
	return strings.EqualFold(c.Env, "test")
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port                   int      `yaml:"port"`
	Host                   string   `yaml:"host"`
	ReadTimeoutSeconds     int      `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds    int      `yaml:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int      `yaml:"shutdown_timeout_seconds"`
	CORSOrigins            []string `yaml:"cors_origins"`
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
	AutoMigrate     bool   `yaml:"auto_migrate"`
}

// RedisConfig holds the optional Redis used for tenant sync locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// EncryptionConfig holds the credential passphrase.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// MauticConfig controls outbound calls to tenant instances.
type MauticConfig struct {
	TimeoutSeconds    int           `yaml:"timeout_seconds"`
	Retries           int           `yaml:"retries"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Breaker           BreakerConfig `yaml:"breaker"`
}

// Timeout returns the per-request HTTP timeout.
func (c MauticConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BreakerConfig tunes the per-tenant circuit breaker.
type BreakerConfig struct {
	Enabled             bool `yaml:"enabled"`
	ConsecutiveFailures int  `yaml:"consecutive_failures"`
	OpenSeconds         int  `yaml:"open_seconds"`
}

// OpenTimeout is how long a tripped breaker stays open.
func (c BreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(c.OpenSeconds) * time.Second
}

// SyncConfig controls batch sync behaviour.
type SyncConfig struct {
	TenantConcurrency int  `yaml:"tenant_concurrency"`
	LockEnabled       bool `yaml:"lock_enabled"`
	LockTTLMinutes    int  `yaml:"lock_ttl_minutes"`
}

// LockTTL returns the tenant lock lifetime.
func (c SyncConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// SchedulerConfig controls the automatic sync trigger.
type SchedulerConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DailyAt         string `yaml:"daily_at"` // HH:MM, process-local time
	IntervalMinutes int    `yaml:"interval_minutes"`
}

// Interval returns the fixed-interval period, zero when daily mode is used.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// DailyTime parses DailyAt into hour and minute.
func (c SchedulerConfig) DailyTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.DailyAt)
	if err != nil {
		return 0, 0, fmt.Errorf("config: scheduler.daily_at %q: %w", c.DailyAt, err)
	}
	return t.Hour(), t.Minute(), nil
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Type string `yaml:"type"` // postgres or memory
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII bool   `yaml:"redact_pii"`
}

// DefaultPath returns CONFIG_PATH when set, else config/config.yaml when
// that file exists, else "" so that Load falls back to defaults.
func DefaultPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

const defaultConfigFile = "config/config.yaml"

// Load reads configuration from a YAML file and applies defaults.
// An empty path skips the file and returns defaults only.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	} else {
		cfg.Scheduler.Enabled = true
		cfg.Log.RedactPII = true
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "mautic-sync"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 30
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 120
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = 30
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5
	}
	if cfg.Mautic.TimeoutSeconds == 0 {
		cfg.Mautic.TimeoutSeconds = 30
	}
	if cfg.Mautic.Retries < 0 {
		cfg.Mautic.Retries = 0
	}
	if cfg.Mautic.Breaker.ConsecutiveFailures == 0 {
		cfg.Mautic.Breaker.ConsecutiveFailures = 5
	}
	if cfg.Mautic.Breaker.OpenSeconds == 0 {
		cfg.Mautic.Breaker.OpenSeconds = 60
	}
	if cfg.Sync.TenantConcurrency < 1 {
		cfg.Sync.TenantConcurrency = 1
	}
	if cfg.Sync.LockTTLMinutes == 0 {
		cfg.Sync.LockTTLMinutes = 30
	}
	if cfg.Scheduler.DailyAt == "" {
		cfg.Scheduler.DailyAt = "02:00"
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "postgres"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// LoadFromEnv loads configuration and overrides it from the environment.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		cfg.Encryption.Key = v
	}
	if v := os.Getenv("SYNC_SCHEDULER_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Scheduler.Enabled = enabled
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

// Validate checks settings the process cannot start without.
func (c *Config) Validate() error {
	if c.Encryption.Key == "" {
		return fmt.Errorf("config: encryption key is required (ENCRYPTION_KEY)")
	}
	switch c.Storage.Type {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("config: database url is required for postgres storage (DATABASE_URL)")
		}
	case "memory":
	default:
		return fmt.Errorf("config: unknown storage type %q", c.Storage.Type)
	}
	if c.Scheduler.IntervalMinutes == 0 {
		if _, _, err := c.Scheduler.DailyTime(); err != nil {
			return err
		}
	}
	return nil
}
