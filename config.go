package main

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML configuration file. Flags and environment
// variables override anything set here.
type FileConfig struct {
	APIKey         string `yaml:"api_key"`
	Account        string `yaml:"account"`
	OutputCSV      string `yaml:"output_csv"`
	CacheDirectory string `yaml:"cache_directory"`
	Debug          bool   `yaml:"debug"`
}

// loadFileConfig reads and validates a YAML config file.
func loadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config from YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate performs basic configuration validation.
func (c *FileConfig) Validate() error {
	if c.APIKey != "" && strings.TrimSpace(c.APIKey) != c.APIKey {
		return fmt.Errorf("api_key contains leading or trailing whitespace")
	}
	if c.Account != "" && !strings.HasPrefix(c.Account, "A-") {
		return fmt.Errorf("account %q does not look like an account number (expected A-...)", c.Account)
	}
	return nil
}

// merge overlays file values under the flag values, flags winning.
func (c *FileConfig) merge(cfg *Config) {
	if cfg.APIKey == "" {
		cfg.APIKey = c.APIKey
	}
	if cfg.Account == "" {
		cfg.Account = c.Account
	}
	if cfg.OutputCSV == "" {
		cfg.OutputCSV = c.OutputCSV
	}
	if cfg.CacheDirectory == "disable" && c.CacheDirectory != "" {
		cfg.CacheDirectory = c.CacheDirectory
	}
	if c.Debug {
		cfg.Debug = true
	}
}
