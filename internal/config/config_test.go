package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
app:
  env: production
server:
  port: 9090
  host: "127.0.0.1"
database:
  url: "postgres://localhost/mautic"
mautic:
  timeout_seconds: 45
  retries: 2
  requests_per_second: 5
  breaker:
    enabled: true
sync:
  tenant_concurrency: 4
  lock_enabled: true
scheduler:
  enabled: true
  daily_at: "03:30"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Env)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr())
	assert.Equal(t, 45*time.Second, cfg.Mautic.Timeout())
	assert.Equal(t, 2, cfg.Mautic.Retries)
	assert.Equal(t, 5.0, cfg.Mautic.RequestsPerSecond)
	assert.True(t, cfg.Mautic.Breaker.Enabled)
	assert.Equal(t, 5, cfg.Mautic.Breaker.ConsecutiveFailures)
	assert.Equal(t, 4, cfg.Sync.TenantConcurrency)

	h, m, err := cfg.Scheduler.DailyTime()
	require.NoError(t, err)
	assert.Equal(t, 3, h)
	assert.Equal(t, 30, m)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Mautic.Timeout())
	assert.Equal(t, 0, cfg.Mautic.Retries)
	assert.Equal(t, 1, cfg.Sync.TenantConcurrency)
	assert.Equal(t, 30*time.Minute, cfg.Sync.LockTTL())
	assert.Equal(t, "02:00", cfg.Scheduler.DailyAt)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, time.Duration(0), cfg.Scheduler.Interval())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.True(t, cfg.Log.RedactPII)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	path := writeConfig(t, `
scheduler:
  enabled: true
`)
	t.Setenv("APP_ENV", "test")
	t.Setenv("SERVER_PORT", "7000")
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("REDIS_URL", "redis://env:6379/0")
	t.Setenv("ENCRYPTION_KEY", "from-env")
	t.Setenv("SYNC_SCHEDULER_ENABLED", "false")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.True(t, cfg.App.IsTest())
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "redis://env:6379/0", cfg.Redis.URL)
	assert.Equal(t, "from-env", cfg.Encryption.Key)
	assert.False(t, cfg.Scheduler.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid postgres", func(c *Config) {}, false},
		{"missing key", func(c *Config) { c.Encryption.Key = "" }, true},
		{"missing db url", func(c *Config) { c.Database.URL = "" }, true},
		{"memory needs no db", func(c *Config) { c.Database.URL = ""; c.Storage.Type = "memory" }, false},
		{"unknown storage", func(c *Config) { c.Storage.Type = "mongo" }, true},
		{"bad daily time", func(c *Config) { c.Scheduler.DailyAt = "25:99" }, true},
		{"interval ignores daily time", func(c *Config) { c.Scheduler.DailyAt = "x"; c.Scheduler.IntervalMinutes = 60 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			cfg.Encryption.Key = "k"
			cfg.Database.URL = "postgres://x"
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", "/etc/mautic-sync/config.yaml")
	assert.Equal(t, "/etc/mautic-sync/config.yaml", DefaultPath())

	t.Setenv("CONFIG_PATH", "")
	dir := t.TempDir()
	origWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origWD) })
	assert.Equal(t, "", DefaultPath())

	require.NoError(t, os.MkdirAll("config", 0o755))
	require.NoError(t, os.WriteFile("config/config.yaml", []byte("app: {}\n"), 0o644))
	assert.Equal(t, "config/config.yaml", DefaultPath())
}
