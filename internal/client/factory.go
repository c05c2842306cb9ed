package client

import (
	"context"
	"fmt"

	"appforge/internal/config"
	"appforge/internal/logging"
	"appforge/internal/security"
)

// NewClient creates a client for the configured provider. credential is
// the key to use for the hosted backend (user-supplied or brokered demo);
// Ollama and Gemini load their own keys from env/config.
func NewClient(ctx context.Context, cfg *config.Config, credential string) (Client, error) {
	provider := cfg.API.Provider
	if provider == "" {
		provider = config.ProviderHosted
	}

	logging.Debug("creating completion client",
		"provider", provider,
		"model", cfg.API.Model)

	switch provider {
	case config.ProviderHosted:
		if credential == "" {
			return nil, fmt.Errorf("no credential for hosted provider")
		}
		return NewHostedClient(HostedConfig{
			APIKey:      credential,
			BaseURL:     cfg.API.BaseURL,
			Model:       cfg.API.Model,
			MaxTokens:   cfg.API.MaxTokens,
			Temperature: cfg.API.Temperature,
			HTTPTimeout: cfg.API.Retry.HTTPTimeout,
		})

	case config.ProviderOllama:
		loadedKey := security.GetOllamaKey(cfg.API.OllamaKey)
		return NewOllamaClient(OllamaConfig{
			BaseURL:     cfg.API.OllamaBaseURL,
			APIKey:      loadedKey.Value,
			Model:       cfg.API.Model,
			MaxTokens:   cfg.API.MaxTokens,
			Temperature: cfg.API.Temperature,
			HTTPTimeout: cfg.API.Retry.HTTPTimeout,
		})

	case config.ProviderGemini:
		loadedKey := security.GetGeminiKey(cfg.API.GeminiKey)
		if !loadedKey.IsSet() {
			return nil, fmt.Errorf("Gemini API key required (set APPFORGE_GEMINI_KEY)")
		}
		if err := security.ValidateKeyFormat(loadedKey.Value); err != nil {
			return nil, fmt.Errorf("invalid Gemini API key: %w", err)
		}
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:      loadedKey.Value,
			Model:       cfg.API.Model,
			MaxTokens:   cfg.API.MaxTokens,
			Temperature: cfg.API.Temperature,
		})

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}
