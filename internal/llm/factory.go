package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/headcheck/internal/model"
)

// Backend is the kind of model server a provider talks to
type Backend int

const (
	BackendHosted      Backend = iota + 1 // Vendor API (OpenAI, Anthropic, Gemini)
	BackendLocalServed                    // Locally served models (Ollama)
)

func (b Backend) String() string {
	switch b {
	case BackendHosted:
		return "hosted"
	case BackendLocalServed:
		return "local"
	default:
		return "unknown"
	}
}

// Provider names
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
)

// ResolveProvider picks a provider from a model name. Names containing "gpt"
// go to OpenAI, "claude*" to Anthropic, "gemini*" to Gemini; everything else
// is assumed to be served locally by Ollama.
func ResolveProvider(modelName string) string {
	lower := strings.ToLower(modelName)

	switch {
	case strings.Contains(lower, "gpt"):
		return ProviderOpenAI
	case strings.HasPrefix(lower, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(lower, "gemini"):
		return ProviderGemini
	default:
		return ProviderOllama
	}
}

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)
	if provider == "" {
		provider = ResolveProvider(config.Model)
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(config)

	case ProviderAnthropic, "claude":
		return NewAnthropicProvider(config)

	case ProviderGemini:
		return NewGeminiProvider(config)

	case ProviderOllama:
		return NewOllamaProvider(config)

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, gemini, ollama)", config.Provider)
	}
}

// APIKeyEnv returns the environment variable holding the API key for a
// provider, or "" when the provider needs none
func APIKeyEnv(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic, "claude":
		return "ANTHROPIC_API_KEY"
	case ProviderGemini:
		return "GEMINI_API_KEY"
	default:
		return ""
	}
}

// ConfigFromModel converts model.LLMConfig to llm.Config
func ConfigFromModel(modelConfig model.LLMConfig) Config {
	return Config{
		Provider:    modelConfig.Provider,
		Model:       modelConfig.Model,
		APIKey:      modelConfig.APIKey,
		BaseURL:     modelConfig.BaseURL,
		Timeout:     modelConfig.Timeout,
		Temperature: modelConfig.Temperature,
		MaxTokens:   modelConfig.MaxTokens,
	}
}
