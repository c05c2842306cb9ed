package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"appforge/internal/logging"
	"appforge/internal/security"
)

// HostedConfig holds configuration for an OpenAI-compatible hosted API.
type HostedConfig struct {
	APIKey      string
	BaseURL     string // Default: "https://api.openai.com"
	Model       string
	MaxTokens   int32
	Temperature float32
	HTTPTimeout time.Duration
}

// HostedClient implements Client for OpenAI-compatible chat-completions
// endpoints. The demo credential is sent the same way as a user key: as an
// Authorization bearer value, nowhere else.
type HostedClient struct {
	config     HostedConfig
	httpClient *http.Client
}

// NewHostedClient creates a new hosted completion client.
func NewHostedClient(config HostedConfig) (*HostedClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com"
	}
	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return nil, fmt.Errorf("invalid BaseURL: must start with http:// or https://")
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}

	return &HostedClient{
		config:     config,
		httpClient: security.NewHTTPClient(config.HTTPTimeout),
	}, nil
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int32     `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Complete performs a single chat-completions request.
func (c *HostedClient) Complete(ctx context.Context, messages []Message) (string, error) {
	reqBody := chatCompletionRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/chat/completions"
	logging.Debug("completion request", "url", url, "model", c.config.Model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			body = []byte("(failed to read response body)")
		}
		logging.Warn("completion API error", "status", resp.StatusCode, "body", string(body))
		return "", &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", ErrEmptyChoices
	}
	return parsed.Choices[0].Message.Content, nil
}

// Model returns the model name.
func (c *HostedClient) Model() string {
	return c.config.Model
}

// Close closes idle connections.
func (c *HostedClient) Close() error {
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}
