package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds connection settings for the HR backend.
type ServerConfig struct {
	// BaseURL is the root URL of the HR REST backend.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TokenKey is the keyring entry name holding the API token.
	TokenKey string `mapstructure:"token_key" yaml:"token_key"`

	// TimeoutSec is the per-request HTTP timeout.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`

	// RequestsPerSec caps outbound request rate to the backend.
	RequestsPerSec float64 `mapstructure:"requests_per_sec" yaml:"requests_per_sec"`
}

// FeedConfig holds polling and pagination settings for the feed.
type FeedConfig struct {
	// PageSize is the limit used for scheduler-driven list fetches.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`

	// ListIntervalSec is the list feed cadence.
	ListIntervalSec int `mapstructure:"list_interval_sec" yaml:"list_interval_sec"`

	// CountIntervalSec is the unread-count feed cadence.
	CountIntervalSec int `mapstructure:"count_interval_sec" yaml:"count_interval_sec"`

	// FreshnessSec is how recent the last list fetch must be for a
	// demand-triggered refresh to be skipped.
	FreshnessSec int `mapstructure:"freshness_sec" yaml:"freshness_sec"`
}

// StoreConfig holds settings for the local notification mirror.
type StoreConfig struct {
	// Path is the SQLite database file path.
	Path string `mapstructure:"path" yaml:"path"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Development bool `mapstructure:"development" yaml:"development"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Feed    FeedConfig    `mapstructure:"feed" yaml:"feed"`
	Store   StoreConfig   `mapstructure:"store" yaml:"store"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/hrnotify/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "hrnotify", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			TokenKey:       "hrnotify-api-token",
			TimeoutSec:     30,
			RequestsPerSec: 5,
		},
		Feed: FeedConfig{
			PageSize:         10,
			ListIntervalSec:  120,
			CountIntervalSec: 15,
			FreshnessSec:     30,
		},
		Store: StoreConfig{
			Path: filepath.Join(filepath.Dir(DefaultConfigPath()), "feed.db"),
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.token_key", "hrnotify-api-token")
	v.SetDefault("server.timeout_sec", 30)
	v.SetDefault("server.requests_per_sec", 5.0)
	v.SetDefault("feed.page_size", 10)
	v.SetDefault("feed.list_interval_sec", 120)
	v.SetDefault("feed.count_interval_sec", 15)
	v.SetDefault("feed.freshness_sec", 30)
	v.SetDefault("store.path", filepath.Join(filepath.Dir(path), "feed.db"))
	v.SetDefault("logging.development", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("feed", cfg.Feed)
	v.Set("store", cfg.Store)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
