package client

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// GeminiClient implements Client using the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: cfg.MaxTokens,
	}
	if cfg.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(cfg.Temperature)
	}

	return &GeminiClient{
		client: client,
		model:  cfg.Model,
		config: genConfig,
	}, nil
}

// Complete sends the messages and returns the response text.
func (c *GeminiClient) Complete(ctx context.Context, messages []Message) (string, error) {
	config := *c.config
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &config)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", ErrEmptyChoices
	}
	return text, nil
}

// Model returns the model name.
func (c *GeminiClient) Model() string {
	return c.model
}

// Close releases client resources.
func (c *GeminiClient) Close() error {
	return nil
}
