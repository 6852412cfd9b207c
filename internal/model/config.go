package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config carries the runtime settings handed to the engine and to
// every driver at construction. Drivers never read ambient state.
type Config struct {
	// StatePath is the location of the sync state database.
	StatePath string `mapstructure:"state_path" yaml:"state_path"`

	// Workers is the size of the job worker pool; 0 runs jobs inline.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// RetryAttempts is the per-job retry budget.
	RetryAttempts int `mapstructure:"retry_attempts" yaml:"retry_attempts"`

	// HTTPTimeoutSec bounds a single HTTP round trip (DAV, EWS).
	HTTPTimeoutSec int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`

	// BatchSize is the number of items grouped into one ItemSet.
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`

	// Playback configures HTTP fixture capture/replay for tests.
	Playback PlaybackConfig `mapstructure:"playback" yaml:"playback"`
}

// PlaybackConfig selects deterministic HTTP record/playback for
// protocols built on HTTP. Used only by the test harness.
type PlaybackConfig struct {
	// Mode is "", "record" or "playback".
	Mode string `mapstructure:"mode" yaml:"mode"`

	// Location is the fixture directory.
	Location string `mapstructure:"location" yaml:"location"`
}

// DefaultConfigPath returns the default configuration file location,
// ~/.config/gwmigrate/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "gwmigrate", "config.yaml")
}

// DefaultStatePath returns the default sync state database location.
func DefaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "gwmigrate.db")
	}
	return filepath.Join(home, ".local", "share", "gwmigrate", "state.db")
}

func defaultConfig() *Config {
	return &Config{
		StatePath:      DefaultStatePath(),
		Workers:        4,
		RetryAttempts:  3,
		HTTPTimeoutSec: 60,
		BatchSize:      25,
	}
}

// LoadConfig reads configuration from the given YAML file path using
// Viper. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("state_path", DefaultStatePath())
	v.SetDefault("workers", 4)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("http_timeout_sec", 60)
	v.SetDefault("batch_size", 25)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}
