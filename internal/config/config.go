package config

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	History  HistoryConfig  `mapstructure:"history"`
	Settings SettingsConfig `mapstructure:"settings"`
	Reveal   RevealConfig   `mapstructure:"reveal"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServiceConfig points at the remote answering service
type ServiceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// HistoryConfig holds the session history database location
type HistoryConfig struct {
	Path string `mapstructure:"path"`
}

// SettingsConfig holds the UI settings database location
type SettingsConfig struct {
	Path string `mapstructure:"path"`
}

// RevealConfig controls the incremental answer disclosure
type RevealConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig holds the logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads config.yaml from the working directory, or the file named by the
// CONFIG_PATH environment variable when set. A missing default config file is
// fine; the client runs on defaults alone.
func Load() (*Config, error) {
	v := viper.New()
	v.SetDefault("service.base_url", "http://localhost:5000")
	v.SetDefault("service.timeout", "30s")
	v.SetDefault("history.path", "whoknows-history.db")
	v.SetDefault("settings.path", "whoknows-settings.db")
	v.SetDefault("reveal.interval", "20ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
