// Package config loads the scraper configuration from YAML with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values exported for documentation and validation
const (
	DefaultBind           = "127.0.0.1:8089"
	DefaultTaskTimeout    = 3 * time.Minute
	DefaultWebhookTimeout = 30 * time.Second
	DefaultLogLevel       = "info"
)

// Config is the complete scraper configuration.
type Config struct {
	Scrapeless ScrapelessConfig `yaml:"scrapeless"`
	Task       TaskConfig       `yaml:"task"`
	Server     ServerConfig     `yaml:"server"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Log        LogConfig        `yaml:"log"`
}

// ScrapelessConfig points at the browser provisioning gateway.
type ScrapelessConfig struct {
	// APIKey authenticates against the gateway. Required.
	APIKey string `yaml:"api_key"`

	// GatewayURL overrides the default gateway endpoint.
	GatewayURL string `yaml:"gateway_url"`

	// SessionTTL overrides the provisioned session lifetime in seconds.
	SessionTTL int `yaml:"session_ttl"`
}

// TaskConfig carries task execution defaults.
type TaskConfig struct {
	// DefaultTimeout applies to tasks that carry no budget of their own.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// ClockOffsetDays pins the in-page clock backdate. Zero picks a
	// random offset per task.
	ClockOffsetDays int `yaml:"clock_offset_days"`
}

// ServerConfig configures the task API listener.
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// WebhookConfig configures outbound record delivery.
type WebhookConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LogConfig configures telemetry output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Task: TaskConfig{
			DefaultTimeout: DefaultTaskTimeout,
		},
		Server: ServerConfig{
			Bind: DefaultBind,
		},
		Webhook: WebhookConfig{
			Timeout: DefaultWebhookTimeout,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load loads configuration from the default locations with proper
// precedence: defaults, then ~/.llmscraper/config.yaml, then
// ./llmscraper.yaml, then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	if home != "" {
		userPath := filepath.Join(home, ".llmscraper", "config.yaml")
		if err := loadAndMerge(cfg, userPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading user config: %w", err)
		}
	}

	if err := loadAndMerge(cfg, "llmscraper.yaml"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("loading project config: %w", err)
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadAndMerge(cfg, path); err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate checks the fields every task needs.
func (c *Config) Validate() error {
	if c.Scrapeless.APIKey == "" {
		return fmt.Errorf("scrapeless api key is required (set scrapeless.api_key or SCRAPELESS_API_KEY)")
	}
	if c.Task.DefaultTimeout <= 0 {
		return fmt.Errorf("task default_timeout must be positive")
	}
	return nil
}

func loadAndMerge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCRAPELESS_API_KEY"); v != "" {
		cfg.Scrapeless.APIKey = v
	}
	if v := os.Getenv("SCRAPELESS_GATEWAY_URL"); v != "" {
		cfg.Scrapeless.GatewayURL = v
	}
	if v := os.Getenv("LLMSCRAPER_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("LLMSCRAPER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LLMSCRAPER_DEFAULT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Task.DefaultTimeout = d
		}
	}
}
