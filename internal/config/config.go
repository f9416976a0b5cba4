// SPDX-FileCopyrightText: 2025 夕月霞
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads grbld's configuration from built-in defaults, a config
// file, and GRBLD_* environment variables, in that order of increasing
// precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is grbld's static configuration: which serial port to open, how to
// flow-control it, and where to expose the HTTP API and on-disk state.
type Config struct {
	Port         string        `mapstructure:"port"`
	Baud         int           `mapstructure:"baud"`
	Addr         string        `mapstructure:"addr"`
	LogDir       string        `mapstructure:"log_dir"`
	InitFile     string        `mapstructure:"init_file"`
	Verbose      bool          `mapstructure:"verbose"`
	DryRun       bool          `mapstructure:"dry_run"`
	StreamMode   string        `mapstructure:"stream_mode"` // "character-counting" or "incremental"
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// Default returns grbld's built-in defaults, matching the original flag
// defaults (-baud 115200 -addr :9000). Port is left empty, so serve picks
// one from the available serial ports unless a port is configured.
func Default() Config {
	return Config{
		Baud:         115200,
		Addr:         ":9000",
		LogDir:       "logs",
		InitFile:     "init.txt",
		StreamMode:   "character-counting",
		PollInterval: 200 * time.Millisecond,
	}
}

// Load reads configuration from configPath (if non-empty) or the default
// search locations, over the built-in defaults, with GRBLD_* environment
// overrides on top. A missing config file is not an error: defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix("GRBLD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	def := Default()
	v.SetDefault("port", def.Port)
	v.SetDefault("baud", def.Baud)
	v.SetDefault("addr", def.Addr)
	v.SetDefault("log_dir", def.LogDir)
	v.SetDefault("init_file", def.InitFile)
	v.SetDefault("verbose", def.Verbose)
	v.SetDefault("dry_run", def.DryRun)
	v.SetDefault("stream_mode", def.StreamMode)
	v.SetDefault("poll_interval", def.PollInterval)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.StreamMode != "character-counting" && cfg.StreamMode != "incremental" {
		return nil, fmt.Errorf("stream_mode must be 'character-counting' or 'incremental', got %q", cfg.StreamMode)
	}
	return &cfg, nil
}

func defaultConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "grbld")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "grbld")
}
