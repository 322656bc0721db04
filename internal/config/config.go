// Copyright (c) 2026, the voxgate contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dvpro/voxgate/internal/domain"
)

const envPrefix = "VOXGATE__"

type AppConfig struct {
	Config *domain.Config
	viper  *viper.Viper

	configPath string
	dataDir    string
}

// New loads the configuration from configPath, which may be a
// directory, a direct path to a .toml file, or empty for the
// OS-specific default location. A default config file is written when
// none exists.
func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:  viper.New(),
		Config: &domain.Config{},
	}

	c.defaults()

	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}
	c.configPath = path

	if err := c.load(); err != nil {
		return nil, err
	}

	c.loadFromEnv()
	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "0.0.0.0")
	c.viper.SetDefault("port", 8000)
	c.viper.SetDefault("baseUrl", "")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("sessionTtlDays", 7)
	c.viper.SetDefault("rateLimitPerMinute", 60)
}

func resolveConfigPath(configPath string) (string, error) {
	if configPath == "" {
		return filepath.Join(GetDefaultConfigDir(), "config.toml"), nil
	}
	if strings.HasSuffix(strings.ToLower(configPath), ".toml") {
		return configPath, nil
	}
	if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
		return configPath, nil
	}
	return filepath.Join(configPath, "config.toml"), nil
}

func (c *AppConfig) load() error {
	if _, err := os.Stat(c.configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(c.configPath); err != nil {
			return fmt.Errorf("failed to write default config: %w", err)
		}
		log.Info().Str("path", c.configPath).Msg("Created default configuration file")
	}

	c.viper.SetConfigFile(c.configPath)
	if err := c.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}

// loadFromEnv applies VOXGATE__ environment overrides. Environment
// takes precedence over the config file.
func (c *AppConfig) loadFromEnv() {
	if v := os.Getenv(envPrefix + "HOST"); v != "" {
		c.Config.Host = v
	}
	if v := os.Getenv(envPrefix + "PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Config.Port = port
		}
	}
	if v := os.Getenv(envPrefix + "BASE_URL"); v != "" {
		c.Config.BaseURL = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Config.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "LOG_PATH"); v != "" {
		c.Config.LogPath = v
	}
	if v := os.Getenv(envPrefix + "DATA_DIR"); v != "" {
		c.Config.DataDir = v
	}
}

// watchConfig reloads the log level when the config file changes on
// disk, so verbosity can be adjusted without a restart.
func (c *AppConfig) watchConfig() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Debug().Str("file", e.Name).Msg("Config file changed")

		var updated domain.Config
		if err := c.viper.Unmarshal(&updated); err != nil {
			log.Error().Err(err).Msg("Failed to reload config")
			return
		}

		if updated.LogLevel != c.Config.LogLevel {
			c.Config.LogLevel = updated.LogLevel
			c.applyLogLevel()
			log.Info().Str("logLevel", c.Config.LogLevel).Msg("Log level updated")
		}
	})
	c.viper.WatchConfig()
}

// SetDataDir overrides the data directory, typically from a CLI flag.
func (c *AppConfig) SetDataDir(dir string) {
	c.dataDir = dir
}

// GetDatabasePath returns the SQLite database location: the data dir
// when configured, otherwise next to the config file.
func (c *AppConfig) GetDatabasePath() string {
	dir := c.dataDir
	if dir == "" {
		dir = c.Config.DataDir
	}
	if dir == "" {
		dir = filepath.Dir(c.configPath)
	}
	return filepath.Join(dir, "voxgate.db")
}

// ApplyLogConfig configures the global zerolog logger from the
// loaded settings.
func (c *AppConfig) ApplyLogConfig() {
	c.applyLogLevel()

	if c.Config.LogPath != "" {
		f, err := os.OpenFile(c.Config.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Error().Err(err).Str("path", c.Config.LogPath).Msg("Failed to open log file, using stderr")
			return
		}
		log.Logger = log.Output(f)
	}
}

func (c *AppConfig) applyLogLevel() {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Config.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// GetDefaultConfigDir returns the OS-specific configuration directory.
func GetDefaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "voxgate")
	}
	return "."
}
