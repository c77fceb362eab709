package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Synthesis.SectionConcurrency)
	assert.True(t, cfg.Auth.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synthesizer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
redis:
  addr: redis.internal:6379
generator:
  base_url: http://gen.internal:8000
  rate_limit: 2.5
logging:
  level: debug
  format: console
profiles:
  path: /etc/synthesizer/profiles.yaml
`), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "redis.internal:6379", cfg.Redis.Addr)
	assert.Equal(t, "http://gen.internal:8000", cfg.Generator.BaseURL)
	assert.Equal(t, 2.5, cfg.Generator.RateLimit)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "/etc/synthesizer/profiles.yaml", cfg.Profiles.Path)
	// Unset keys keep their defaults.
	assert.Equal(t, 9090, cfg.Server.MetricsPort)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("SYNTH_SERVER_PORT", "7777")
	t.Setenv("SYNTH_REDIS_ADDR", "override:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, "override:6379", cfg.Redis.Addr)
}

func TestInvalidYAMLFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: valid"), 0o644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}
