package main

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config keys. All overridable via GAMESHELF_* environment variables.
const (
	cfgKeyServerURL    = "server_url"
	cfgKeyDBPath       = "db_path"
	cfgKeySyncInterval = "sync_interval"
	cfgKeyLogFile      = "log_file"
	cfgKeyLogLevel     = "log_level"
)

type agentConfig struct {
	ServerURL    string
	DBPath       string
	SyncInterval time.Duration
	LogFile      string
	LogLevel     string
}

// loadConfig reads the optional config file plus environment overrides.
// A missing config file is not an error; defaults apply.
func loadConfig(configFile string) (*agentConfig, error) {
	v := viper.New()
	v.SetDefault(cfgKeyServerURL, "")
	v.SetDefault(cfgKeyDBPath, "gameshelf.db")
	v.SetDefault(cfgKeySyncInterval, "60s")
	v.SetDefault(cfgKeyLogFile, "")
	v.SetDefault(cfgKeyLogLevel, "info")

	v.SetEnvPrefix("GAMESHELF")
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gameshelf")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	interval, err := time.ParseDuration(v.GetString(cfgKeySyncInterval))
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", cfgKeySyncInterval, err)
	}

	return &agentConfig{
		ServerURL:    v.GetString(cfgKeyServerURL),
		DBPath:       v.GetString(cfgKeyDBPath),
		SyncInterval: interval,
		LogFile:      v.GetString(cfgKeyLogFile),
		LogLevel:     v.GetString(cfgKeyLogLevel),
	}, nil
}
