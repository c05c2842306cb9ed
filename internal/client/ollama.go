package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"appforge/internal/logging"

	"github.com/ollama/ollama/api"
)

// OllamaConfig holds configuration for a local or remote Ollama server.
type OllamaConfig struct {
	BaseURL     string // Default: "http://localhost:11434"
	APIKey      string // Optional, for remote servers with auth
	Model       string
	MaxTokens   int32
	Temperature float32
	HTTPTimeout time.Duration
}

// OllamaClient implements Client using the Ollama chat API.
type OllamaClient struct {
	client *api.Client
	config OllamaConfig
}

// authTransport adds an Authorization header to outgoing requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	return t.base.RoundTrip(req)
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(config OllamaConfig) (*OllamaClient, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	if baseURL.Scheme == "http" {
		host := baseURL.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			logging.Warn("Ollama connection uses unencrypted HTTP to remote host", "host", host)
		}
	}

	httpClient := &http.Client{Timeout: config.HTTPTimeout}
	if config.APIKey != "" {
		httpClient.Transport = &authTransport{
			base:   http.DefaultTransport,
			apiKey: config.APIKey,
		}
	}

	return &OllamaClient{
		client: api.NewClient(baseURL, httpClient),
		config: config,
	}, nil
}

// Complete sends the messages and collects the full response.
func (c *OllamaClient) Complete(ctx context.Context, messages []Message) (string, error) {
	chatMessages := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		chatMessages = append(chatMessages, api.Message{Role: m.Role, Content: m.Content})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.config.Model,
		Messages: chatMessages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"num_predict": c.config.MaxTokens,
		},
	}
	if c.config.Temperature > 0 {
		req.Options["temperature"] = c.config.Temperature
	}

	var sb strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyChoices
	}
	return sb.String(), nil
}

// Model returns the model name.
func (c *OllamaClient) Model() string {
	return c.config.Model
}

// Close is a no-op; the Ollama client holds no persistent resources.
func (c *OllamaClient) Close() error {
	return nil
}
