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
	configPath := writeConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

gateway:
  base_url: "https://evo.example.com"
  api_key: "test-api-key"
  timeout_seconds: 45

warmup:
  timezone: "America/Sao_Paulo"
  dispatch_interval_seconds: 120
  auto_plan: true
  daily_limits:
    1: 3
    6: 250

storage:
  type: "redis"
`)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	assert.Equal(t, "https://evo.example.com", cfg.Gateway.BaseURL)
	assert.Equal(t, "test-api-key", cfg.Gateway.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Gateway.Timeout())

	assert.Equal(t, 2*time.Minute, cfg.Warmup.DispatchInterval())
	assert.True(t, cfg.Warmup.AutoPlan)
	assert.Equal(t, 3, cfg.Warmup.DailyLimits[1])
	assert.Equal(t, 15, cfg.Warmup.DailyLimits[2], "missing stages fall back to catalog caps")
	assert.Equal(t, 250, cfg.Warmup.DailyLimits[6])

	loc, err := cfg.Warmup.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Sao_Paulo", loc.String())

	assert.Equal(t, "redis", cfg.Storage.Type)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 0\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 30, cfg.Gateway.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Gateway.MaxRetries)
	assert.Equal(t, 60, cfg.Warmup.DispatchIntervalSeconds)
	assert.Equal(t, 7, cfg.Warmup.CleanupDays)
	assert.Equal(t, map[int]int{1: 5, 2: 15, 3: 30, 4: 50, 5: 100, 6: 200}, cfg.Warmup.DailyLimits)
	assert.Equal(t, "none", cfg.Storage.Type)

	loc, err := cfg.Warmup.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadFromEnv(t *testing.T) {
	configPath := writeConfig(t, `
gateway:
  api_key: "file-key"
  base_url: "https://file-url.com"
`)

	t.Setenv("EVOLUTION_API_KEY", "env-key")
	t.Setenv("EVOLUTION_API_URL", "https://env-url.com")
	t.Setenv("MAX_DAILY_MESSAGES_STAGE_2", "12")

	cfg, err := LoadFromEnv(configPath)
	require.NoError(t, err)

	// Environment variables should override file values
	assert.Equal(t, "env-key", cfg.Gateway.APIKey)
	assert.Equal(t, "https://env-url.com", cfg.Gateway.BaseURL)
	assert.Equal(t, 12, cfg.Warmup.DailyLimits[2])
}

func TestLoadFromEnvRejectsBadLimit(t *testing.T) {
	t.Setenv("MAX_DAILY_MESSAGES_STAGE_3", "lots")
	_, err := LoadFromEnv(writeConfig(t, "{}\n"))
	assert.Error(t, err)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestInvalidTimezone(t *testing.T) {
	cfg := WarmupConfig{Timezone: "Mars/Olympus"}
	_, err := cfg.Location()
	assert.Error(t, err)
}
