// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`

	Database struct {
		Path string `json:"path"`
	} `json:"database"`

	Sync struct {
		SaveDelayMs     int `json:"save_delay_ms"`     // autosave debounce
		WatchDebounceMs int `json:"watch_debounce_ms"` // fs event settle window
	} `json:"sync"`

	Environment string `json:"environment"` // dev, prod
	LogLevel    string `json:"log_level"`   // debug, info, warn, error
}

func getConfigPath() string {
	env := os.Getenv("MDSYNC_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	return &config, nil
}

// Default exposes the built-in configuration used when no config file is
// present (the CLI never requires one).
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

func applyDefaults(c *Config) {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 7419
	}
	if c.Database.Path == "" {
		c.Database.Path = ".mdsync"
	}
	if c.Sync.SaveDelayMs == 0 {
		c.Sync.SaveDelayMs = 2000
	}
	if c.Sync.WatchDebounceMs == 0 {
		c.Sync.WatchDebounceMs = 75
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}
