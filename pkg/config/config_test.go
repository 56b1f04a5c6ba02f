package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, DefaultBind, cfg.Server.Bind)
	assert.Equal(t, DefaultTaskTimeout, cfg.Task.DefaultTimeout)
	assert.Equal(t, DefaultWebhookTimeout, cfg.Webhook.Timeout)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scrapeless:
  api_key: sk_test
  gateway_url: https://gateway.test
task:
  default_timeout: 90s
server:
  bind: 0.0.0.0:9000
log:
  level: debug
`), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "sk_test", cfg.Scrapeless.APIKey)
	assert.Equal(t, "https://gateway.test", cfg.Scrapeless.GatewayURL)
	assert.Equal(t, 90*time.Second, cfg.Task.DefaultTimeout)
	assert.Equal(t, "0.0.0.0:9000", cfg.Server.Bind)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DefaultWebhookTimeout, cfg.Webhook.Timeout, "unset sections keep their defaults")
	require.NoError(t, cfg.Validate())
}

func TestLoadFromPathMissingFile(t *testing.T) {
	_, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SCRAPELESS_API_KEY", "sk_env")
	t.Setenv("LLMSCRAPER_BIND", "127.0.0.1:7000")
	t.Setenv("LLMSCRAPER_DEFAULT_TIMEOUT", "45s")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	assert.Equal(t, "sk_env", cfg.Scrapeless.APIKey)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Bind)
	assert.Equal(t, 45*time.Second, cfg.Task.DefaultTimeout)
}

func TestValidateRequiresAPIKey(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key")
}
