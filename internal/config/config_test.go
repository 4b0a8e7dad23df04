package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Queue.Host)
	assert.Equal(t, 6379, cfg.Queue.Port)
	assert.Equal(t, "api", cfg.Provider.Primary)
	assert.Equal(t, 16, cfg.Worker.SendConcurrency)
	assert.Equal(t, 6, cfg.Retry.MaxAttempts)
	assert.Equal(t, []int{5, 15, 60, 300, 900, 3600}, cfg.Retry.BaseDelaysSec)
	assert.Equal(t, 0.05, cfg.SLO.ErrorRateThreshold)
	assert.Equal(t, 120, cfg.SLO.QueueAgeP95SecondsMax)
}

func TestLoad_ParsesYAMLFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
queue:
  host: redis.internal
  port: 6380
provider:
  primary: smtp
  api:
    region: eu-west-1
worker:
  send_concurrency: 32
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal", cfg.Queue.Host)
	assert.Equal(t, 6380, cfg.Queue.Port)
	assert.Equal(t, "smtp", cfg.Provider.Primary)
	assert.Equal(t, "eu-west-1", cfg.Provider.API.Region)
	assert.Equal(t, 32, cfg.Worker.SendConcurrency)
}

func TestLoadFromEnv_OverridesFileValues(t *testing.T) {
	t.Setenv("QUEUE_HOST", "redis-override")
	t.Setenv("EMAIL_PROVIDER", "smtp")
	t.Setenv("EMAIL_PROVIDER_FALLBACK", "true")
	t.Setenv("WORKER_SEND_CONCURRENCY", "8")
	t.Setenv("SLO_ERROR_RATE_THRESHOLD", "0.1")
	t.Setenv("CHAOS_SES_429", "1")

	cfg, err := LoadFromEnv("")
	require.NoError(t, err)

	assert.Equal(t, "redis-override", cfg.Queue.Host)
	assert.Equal(t, "smtp", cfg.Provider.Primary)
	assert.True(t, cfg.Provider.Fallback)
	assert.Equal(t, 8, cfg.Worker.SendConcurrency)
	assert.Equal(t, 0.1, cfg.SLO.ErrorRateThreshold)
	assert.True(t, cfg.Chaos.SES429)
}

func TestQueueConfig_Addr(t *testing.T) {
	c := QueueConfig{Host: "redis.internal", Port: 6380}
	assert.Equal(t, "redis.internal:6380", c.Addr())
}
