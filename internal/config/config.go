// Package config loads and validates extractor configuration via Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Store    StoreConfig    `mapstructure:"store"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Ops      OpsConfig      `mapstructure:"ops"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// StoreConfig controls where extracted rows are persisted. Path is either
// a SQLite file path or a postgres:// DSN.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// PipelineConfig governs worker fan-out and snapshot discovery.
type PipelineConfig struct {
	// Workers bounds parallel fan-out. Zero means one worker per CPU.
	Workers int `mapstructure:"workers"`
	// Extension marks files under the input root as page snapshots.
	Extension string `mapstructure:"extension"`
}

// OpsConfig controls the optional health/metrics listener.
type OpsConfig struct {
	// Listen is an address such as ":9190". Empty disables the listener.
	Listen string `mapstructure:"listen"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FORUMHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.path", "forum_data.db")
	v.SetDefault("pipeline.workers", 0)
	v.SetDefault("pipeline.extension", ".html")
	v.SetDefault("ops.listen", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline.workers must be >= 0")
	}
	if !strings.HasPrefix(c.Pipeline.Extension, ".") {
		return fmt.Errorf("pipeline.extension must start with a dot, got %q", c.Pipeline.Extension)
	}
	return nil
}
