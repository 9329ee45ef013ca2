package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreltrading/engine-core/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_AppliesDefaultsForOmittedKeys(t *testing.T) {
	path := writeConfig(t, `
scripting:
  publish_endpoint: ":7001"
  subscribe_endpoint: ":7000"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mock", cfg.EngineSettings.Mode)
	assert.Equal(t, "logs/engine.log", cfg.EngineSettings.LogFilePath)
	assert.Equal(t, "info", cfg.EngineSettings.LogLevel)
	assert.Equal(t, "json", cfg.EngineSettings.LogFormat)
	assert.Equal(t, ":9090", cfg.EngineSettings.MetricsAddr)
	assert.Equal(t, 100.0, cfg.RiskManagement.MaxOrderSize)
	assert.Equal(t, 10000.0, cfg.RiskManagement.MaxPositionValueUSD)
	assert.Empty(t, cfg.MarketDataSubscriptions)
}

func TestLoad_HonorsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
engine_settings:
  mode: live
  log_file_path: /var/log/engine.log
  log_level: debug
  log_format: console
  metrics_addr: ":9999"
risk_management:
  max_order_size: 500
  max_position_value_usd: 250000.0
market_data_subscriptions:
  - AAPL
  - MSFT
scripting:
  publish_endpoint: ":7001"
  subscribe_endpoint: ":7000"
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "live", cfg.EngineSettings.Mode)
	assert.Equal(t, "/var/log/engine.log", cfg.EngineSettings.LogFilePath)
	assert.Equal(t, "debug", cfg.EngineSettings.LogLevel)
	assert.Equal(t, "console", cfg.EngineSettings.LogFormat)
	assert.Equal(t, ":9999", cfg.EngineSettings.MetricsAddr)
	assert.Equal(t, 500.0, cfg.RiskManagement.MaxOrderSize)
	assert.Equal(t, 250000.0, cfg.RiskManagement.MaxPositionValueUSD)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.MarketDataSubscriptions)
	assert.Equal(t, ":7001", cfg.Scripting.PublishEndpoint)
	assert.Equal(t, ":7000", cfg.Scripting.SubscribeEndpoint)
}

func TestLoad_MissingFileIsConfigError(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoad_MissingRequiredEndpointIsConfigError(t *testing.T) {
	path := writeConfig(t, `
scripting:
  publish_endpoint: ":7001"
`)

	_, err := config.Load(path)
	assert.ErrorContains(t, err, "subscribe_endpoint")
}
