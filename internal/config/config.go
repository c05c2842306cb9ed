package config

import "time"

// Provider names accepted in APIConfig.Provider.
const (
	ProviderHosted = "hosted"
	ProviderOllama = "ollama"
	ProviderGemini = "gemini"
)

// Config represents the main application configuration.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Demo    DemoConfig    `yaml:"demo"`
	Bundles BundlesConfig `yaml:"bundles"`
	Server  ServerConfig  `yaml:"server"`
	Logging LoggingConfig `yaml:"logging"`

	// Runtime version information
	Version string `yaml:"-"`
}

// APIConfig holds completion API settings.
type APIConfig struct {
	// Active provider: hosted, ollama, gemini (default: hosted)
	Provider string `yaml:"provider"`

	// User-supplied key for the hosted OpenAI-compatible endpoint.
	// When empty, the pipeline falls back to the brokered demo credential.
	APIKey string `yaml:"api_key,omitempty"`

	GeminiKey string `yaml:"gemini_key,omitempty"`
	OllamaKey string `yaml:"ollama_key,omitempty"` // Optional, for remote Ollama servers with auth

	// Hosted chat-completions base URL.
	BaseURL string `yaml:"base_url,omitempty"`

	// Ollama server URL (default: http://localhost:11434)
	OllamaBaseURL string `yaml:"ollama_base_url,omitempty"`

	Model       string  `yaml:"model,omitempty"`
	MaxTokens   int32   `yaml:"max_tokens,omitempty"`
	Temperature float32 `yaml:"temperature,omitempty"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig holds retry settings for completion API calls.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// DemoConfig holds settings for the anonymous demo-credential broker.
type DemoConfig struct {
	// Base URL of the registration / key-issuance service.
	BaseURL string `yaml:"base_url,omitempty"`

	// Daily call allowance for the shared demo credential.
	DailyLimit int `yaml:"daily_limit,omitempty"`
}

// BundlesConfig holds bundle materialization settings.
type BundlesConfig struct {
	// Dir is where generated bundles live (default: <config dir>/bundles).
	Dir string `yaml:"dir,omitempty"`

	// SharedAssetsDir holds static assets (icon/animation libraries)
	// copied into bundles that reference them.
	SharedAssetsDir string `yaml:"shared_assets_dir,omitempty"`

	// AssetPatterns are doublestar globs selecting which shared assets
	// are eligible for copying.
	AssetPatterns []string `yaml:"asset_patterns,omitempty"`

	// ChunkSize and ChunkPause shape I/O during large multi-file writes.
	ChunkSize  int           `yaml:"chunk_size,omitempty"`
	ChunkPause time.Duration `yaml:"chunk_pause,omitempty"`
}

// ServerConfig holds local artifact server settings.
type ServerConfig struct {
	// BasePort is the start of the deterministic port range.
	BasePort int `yaml:"base_port,omitempty"`

	// PortRange is the number of ports available above BasePort.
	PortRange int `yaml:"port_range,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
	// File enables logging to appforge.log in the config directory.
	File bool `yaml:"file,omitempty"`
}
