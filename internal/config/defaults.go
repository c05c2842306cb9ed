package config

import "time"

// Default configuration values.
const (
	DefaultProvider = ProviderHosted
	DefaultModel    = "gpt-4o-mini"
	DefaultBaseURL  = "https://api.openai.com"

	DefaultOllamaBaseURL = "http://localhost:11434"

	DefaultMaxTokens   = 8192
	DefaultTemperature = 0.7

	// Retry settings
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 2 * time.Second
	DefaultHTTPTimeout = 120 * time.Second

	// Demo credential settings
	DefaultDemoBaseURL = "https://provision.appforge.dev"
	DefaultDailyLimit  = 5

	// Materialization settings
	DefaultChunkSize  = 32 * 1024
	DefaultChunkPause = 15 * time.Millisecond

	// Local server settings
	DefaultBasePort  = 42000
	DefaultPortRange = 1000
)

// DefaultAssetPatterns selects shared static assets eligible for copying
// into bundles.
var DefaultAssetPatterns = []string{
	"fontawesome/**",
	"animate/**",
	"**/*.woff2",
}

// DefaultConfig returns a Config populated with defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:    DefaultProvider,
			BaseURL:     DefaultBaseURL,
			Model:       DefaultModel,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			Retry: RetryConfig{
				MaxAttempts: DefaultMaxAttempts,
				RetryDelay:  DefaultRetryDelay,
				HTTPTimeout: DefaultHTTPTimeout,
			},
		},
		Demo: DemoConfig{
			BaseURL:    DefaultDemoBaseURL,
			DailyLimit: DefaultDailyLimit,
		},
		Bundles: BundlesConfig{
			AssetPatterns: append([]string(nil), DefaultAssetPatterns...),
			ChunkSize:     DefaultChunkSize,
			ChunkPause:    DefaultChunkPause,
		},
		Server: ServerConfig{
			BasePort:  DefaultBasePort,
			PortRange: DefaultPortRange,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
