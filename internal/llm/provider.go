package llm

import (
	"context"
	"errors"
)

// ErrMissingAPIKey is returned when a hosted backend has no API key
var ErrMissingAPIKey = errors.New("API key is required")

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Backend reports whether the provider is hosted or locally served
	Backend() Backend

	// Complete sends a system instruction and a user message and returns the reply
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ChatRequest is a two-message exchange: system instruction + user content
type ChatRequest struct {
	// System is the instruction (prompt template)
	System string

	// User is the message under evaluation (the headline)
	User string
}

// ChatResponse contains the model's reply
type ChatResponse struct {
	// Content is the reply text, surrounding whitespace trimmed
	Content string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "gemini", "ollama", or "" to resolve from Model
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama, test servers)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// Temperature for sampling; repeated trials rely on it being > 0
	Temperature float64

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Timeout:     60,
		Temperature: 0.7,
		MaxTokens:   16,
	}
}

// resolve returns the model and sampling settings for a request
func (c Config) resolve() (model string, maxTokens int, temperature float64) {
	maxTokens = c.MaxTokens
	if maxTokens == 0 {
		maxTokens = 16
	}
	return c.Model, maxTokens, c.Temperature
}
