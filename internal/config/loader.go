package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPath()
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			// Config file is optional, don't fail if it doesn't exist
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	loadFromEnv(cfg)
	applyFallbacks(cfg)

	return cfg, nil
}

// Dir returns the appforge config directory, creating it if needed.
// Local state, logs and bundles default to living under it.
func Dir() (string, error) {
	var dir string
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		dir = filepath.Join(xdgConfig, "appforge")
	} else {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if runtime.GOOS == "darwin" {
			dir = filepath.Join(homeDir, "Library", "Application Support", "appforge")
		} else {
			dir = filepath.Join(homeDir, ".config", "appforge")
		}
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// getConfigPath returns the path to the config file.
func getConfigPath() string {
	dir, err := Dir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// loadFromFile loads configuration from a YAML file.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	// Expand environment variables in the config file
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// loadFromEnv loads configuration from environment variables.
func loadFromEnv(cfg *Config) {
	if apiKey := os.Getenv("APPFORGE_API_KEY"); apiKey != "" {
		cfg.API.APIKey = apiKey
	}
	if model := os.Getenv("APPFORGE_MODEL"); model != "" {
		cfg.API.Model = model
	}
	if provider := os.Getenv("APPFORGE_PROVIDER"); provider != "" {
		cfg.API.Provider = provider
	}
	if baseURL := os.Getenv("APPFORGE_BASE_URL"); baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	if demoURL := os.Getenv("APPFORGE_DEMO_URL"); demoURL != "" {
		cfg.Demo.BaseURL = demoURL
	}
	if level := os.Getenv("APPFORGE_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}

// applyFallbacks fills zero values a partial config file may have left.
func applyFallbacks(cfg *Config) {
	if cfg.API.Provider == "" {
		cfg.API.Provider = DefaultProvider
	}
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}
	if cfg.API.OllamaBaseURL == "" {
		cfg.API.OllamaBaseURL = DefaultOllamaBaseURL
	}
	if cfg.API.Model == "" {
		cfg.API.Model = DefaultModel
	}
	if cfg.API.MaxTokens == 0 {
		cfg.API.MaxTokens = DefaultMaxTokens
	}
	if cfg.API.Retry.MaxAttempts == 0 {
		cfg.API.Retry.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.API.Retry.RetryDelay == 0 {
		cfg.API.Retry.RetryDelay = DefaultRetryDelay
	}
	if cfg.API.Retry.HTTPTimeout == 0 {
		cfg.API.Retry.HTTPTimeout = DefaultHTTPTimeout
	}
	if cfg.Demo.BaseURL == "" {
		cfg.Demo.BaseURL = DefaultDemoBaseURL
	}
	if cfg.Demo.DailyLimit == 0 {
		cfg.Demo.DailyLimit = DefaultDailyLimit
	}
	if cfg.Bundles.Dir == "" {
		if dir, err := Dir(); err == nil {
			cfg.Bundles.Dir = filepath.Join(dir, "bundles")
		}
	}
	if len(cfg.Bundles.AssetPatterns) == 0 {
		cfg.Bundles.AssetPatterns = append([]string(nil), DefaultAssetPatterns...)
	}
	if cfg.Bundles.ChunkSize == 0 {
		cfg.Bundles.ChunkSize = DefaultChunkSize
	}
	if cfg.Bundles.ChunkPause == 0 {
		cfg.Bundles.ChunkPause = DefaultChunkPause
	}
	if cfg.Server.BasePort == 0 {
		cfg.Server.BasePort = DefaultBasePort
	}
	if cfg.Server.PortRange == 0 {
		cfg.Server.PortRange = DefaultPortRange
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
