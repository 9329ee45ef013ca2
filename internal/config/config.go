// Package config loads the engine's configuration via viper, applying
// spec.md §6's defaults and allowing environment overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds everything the engine's entry point needs to wire up.
type Config struct {
	EngineSettings EngineSettings `mapstructure:"engine_settings"`
	RiskManagement RiskManagement `mapstructure:"risk_management"`
	Scripting      Scripting      `mapstructure:"scripting"`

	MarketDataSubscriptions []string `mapstructure:"market_data_subscriptions"`
}

// EngineSettings controls the operating mode and ambient logging/metrics
// surface (the latter an EXPANDED, non-wire-protocol addition).
type EngineSettings struct {
	Mode        string `mapstructure:"mode"` // "mock" or "live"
	LogFilePath string `mapstructure:"log_file_path"`
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// RiskManagement holds the two static admission caps internal/risk enforces.
type RiskManagement struct {
	MaxOrderSize        float64 `mapstructure:"max_order_size"`
	MaxPositionValueUSD float64 `mapstructure:"max_position_value_usd"`
}

// Scripting holds the Scripting Interface's two bind addresses.
type Scripting struct {
	PublishEndpoint   string `mapstructure:"publish_endpoint"`
	SubscribeEndpoint string `mapstructure:"subscribe_endpoint"`
}

// Load reads configuration from configPath, applying spec.md §6's defaults
// first and allowing ENGINE_-prefixed environment variables to override.
// A missing or malformed file, or a missing required scripting endpoint,
// is a fatal ConfigMissing/ConfigMalformed error (spec.md §7).
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config missing or unreadable: %w", err)
	}

	v.SetEnvPrefix("ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config malformed: %w", err)
	}

	if cfg.Scripting.PublishEndpoint == "" {
		return nil, fmt.Errorf("config malformed: scripting.publish_endpoint is required")
	}
	if cfg.Scripting.SubscribeEndpoint == "" {
		return nil, fmt.Errorf("config malformed: scripting.subscribe_endpoint is required")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine_settings.mode", "mock")
	v.SetDefault("engine_settings.log_file_path", "logs/engine.log")
	v.SetDefault("engine_settings.log_level", "info")
	v.SetDefault("engine_settings.log_format", "json")
	v.SetDefault("engine_settings.metrics_addr", ":9090")

	v.SetDefault("risk_management.max_order_size", 100)
	v.SetDefault("risk_management.max_position_value_usd", 10000.0)

	v.SetDefault("market_data_subscriptions", []string{})
}
