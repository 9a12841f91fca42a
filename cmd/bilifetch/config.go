package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

type appConfig struct {
	OutputDir   string `mapstructure:"output_dir"`
	DataDir     string `mapstructure:"data_dir"`
	Concurrency int64  `mapstructure:"concurrency"`
	MuxerPath   string `mapstructure:"muxer_path"`
}

// loadConfig reads the optional config file from the user config dir, with
// flag-friendly defaults when the file is absent.
func loadConfig() (*appConfig, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	dataDir := filepath.Join(configDir, appName)

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dataDir)
	v.SetEnvPrefix("BILIFETCH")
	v.AutomaticEnv()
	v.SetDefault("output_dir", ".")
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("concurrency", 3)
	v.SetDefault("muxer_path", "ffmpeg")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	config := &appConfig{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := os.MkdirAll(config.DataDir, 0750); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *appConfig) credentialsPath() string {
	return filepath.Join(c.DataDir, "credentials.db")
}

func (c *appConfig) historyPath() string {
	return filepath.Join(c.DataDir, "history.db")
}
