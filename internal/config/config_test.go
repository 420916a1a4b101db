package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
broker:
  app_key: file-key
  rest_endpoint: https://example.test
dry_run: true
logging:
  level: debug
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Broker.AppKey)
	assert.Equal(t, "https://example.test", cfg.Broker.RESTEndpoint)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 9090, cfg.Server.Port)

	// Unset keys fall back to defaults.
	assert.Equal(t, "config/risk_config.json", cfg.RiskConfigPath)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 60, cfg.ScanIntervalS)
}

func TestLoad_EnvOverridesCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker:\n  app_key: file-key\n"), 0o644))

	t.Setenv("LONGPORT_APP_KEY", "env-key")
	t.Setenv("LONGPORT_ACCESS_TOKEN", "env-token")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Broker.AppKey)
	assert.Equal(t, "env-token", cfg.Broker.AccessToken)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
