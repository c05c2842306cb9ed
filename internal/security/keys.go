package security

import (
	"fmt"
	"os"
	"strings"
)

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	// KeySourceEnvironment indicates the key was loaded from environment variables.
	KeySourceEnvironment KeySource = "environment"
	// KeySourceConfig indicates the key was loaded from the config file.
	KeySourceConfig KeySource = "config"
	// KeySourceBroker indicates the key is a brokered demo credential.
	KeySourceBroker KeySource = "broker"
	// KeySourceNotSet indicates no key was found.
	KeySourceNotSet KeySource = "not_set"
)

// LoadedKey represents a loaded API key with metadata.
type LoadedKey struct {
	Value  string
	Source KeySource
}

// IsSet returns true if the key has a value.
func (k *LoadedKey) IsSet() bool {
	return k != nil && k.Value != ""
}

// String returns a safe representation that hides the key value.
func (k *LoadedKey) String() string {
	if !k.IsSet() {
		return "LoadedKey{Source: not_set}"
	}
	return fmt.Sprintf("LoadedKey{Source: %s, Value: %s}", k.Source, MaskKey(k.Value))
}

// GetAPIKey loads an API key by priority: environment variables first
// (in the order given), then the config file value. Environment priority
// allows secure deployment without storing keys in configs.
func GetAPIKey(envVarNames []string, configValue string) *LoadedKey {
	for _, envVar := range envVarNames {
		if value := os.Getenv(envVar); value != "" {
			return &LoadedKey{Value: value, Source: KeySourceEnvironment}
		}
	}
	if configValue != "" {
		return &LoadedKey{Value: configValue, Source: KeySourceConfig}
	}
	return &LoadedKey{Source: KeySourceNotSet}
}

// GetUserKey loads a user-supplied completion API key.
//
// Environment variables checked (in priority order):
//   - APPFORGE_API_KEY (preferred, explicit)
//   - OPENAI_API_KEY (generic, OpenAI-compatible endpoints)
func GetUserKey(configValue string) *LoadedKey {
	return GetAPIKey([]string{"APPFORGE_API_KEY", "OPENAI_API_KEY"}, configValue)
}

// GetGeminiKey loads the Gemini API key.
func GetGeminiKey(configValue string) *LoadedKey {
	return GetAPIKey([]string{"APPFORGE_GEMINI_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY"}, configValue)
}

// GetOllamaKey loads the optional Ollama API key. Local Ollama servers do
// not require one; remote servers may.
func GetOllamaKey(configValue string) *LoadedKey {
	return GetAPIKey([]string{"APPFORGE_OLLAMA_KEY", "OLLAMA_API_KEY"}, configValue)
}

// MaskKey masks an API key for safe logging. Shows first 4 and last 4
// characters with asterisks in between.
func MaskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}

// ValidateKeyFormat performs basic sanity validation on API key format.
func ValidateKeyFormat(key string) error {
	if key == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if len(key) < 10 {
		return fmt.Errorf("API key too short (expected at least 10 characters, got %d)", len(key))
	}

	lowerKey := strings.ToLower(key)
	placeholders := []string{
		"your-api-key",
		"your_api_key",
		"api_key",
		"sk-xxxx",
		"<insert-key>",
	}
	for _, placeholder := range placeholders {
		if strings.Contains(lowerKey, placeholder) {
			return fmt.Errorf("API key appears to be a placeholder: %s", placeholder)
		}
	}
	return nil
}
