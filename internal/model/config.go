package model

import "strings"

// Config is the complete headcheck configuration.
// Field tags match the viper keys (mapstructure) and the config file layout (yaml).
type Config struct {
	Data         DataConfig      `yaml:"data" mapstructure:"data"`
	Output       OutputConfig    `yaml:"output" mapstructure:"output"`
	Sample       SampleConfig    `yaml:"sample" mapstructure:"sample"`
	Retry        RetryConfig     `yaml:"retry" mapstructure:"retry"`
	LLM          LLMConfig       `yaml:"llm" mapstructure:"llm"`
	RateLimiting RateLimitConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`

	// TrialLog is an optional SQLite path recording every trial
	TrialLog string `yaml:"trial_log" mapstructure:"trial_log"`
}

// DataConfig locates the source headline table
type DataConfig struct {
	Headlines   string `yaml:"headlines" mapstructure:"headlines"`
	TextColumn  string `yaml:"text_column" mapstructure:"text_column"`
	TruthColumn string `yaml:"truth_column" mapstructure:"truth_column"`
	CleanMarkup bool   `yaml:"clean_markup" mapstructure:"clean_markup"`
}

// OutputConfig controls where prediction tables are written
type OutputConfig struct {
	// Pattern is the per-model prediction file; {model} is replaced with the model name
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
}

// SampleConfig controls headline sampling
type SampleConfig struct {
	Size int   `yaml:"size" mapstructure:"size"`
	Seed int64 `yaml:"seed" mapstructure:"seed"` // 0 = fresh randomness per run
}

// RetryConfig bounds format retries against a model
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// LLMConfig configures the model backend
type LLMConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"` // empty = resolve from model name
	Model       string  `yaml:"model" mapstructure:"model"`
	APIKey      string  `yaml:"-" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	Timeout     int     `yaml:"timeout" mapstructure:"timeout"` // seconds, per request
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// RateLimitConfig gates model calls per backend
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst" mapstructure:"burst"`

	// LocalRequestsPerSecond, when > 0, replaces RequestsPerSecond for locally served models
	LocalRequestsPerSecond float64 `yaml:"local_requests_per_second" mapstructure:"local_requests_per_second"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Headlines:   "data/headlines.csv",
			TextColumn:  "Headline",
			TruthColumn: "Real",
			CleanMarkup: true,
		},
		Output: OutputConfig{
			Pattern: "data/headlines_pred_{model}.csv",
		},
		Sample: SampleConfig{
			Size: 20,
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
		},
		LLM: LLMConfig{
			Timeout:     60,
			Temperature: 0.7, // Trials are meant to be stochastic
			MaxTokens:   16,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         1,
		},
	}
}

// OutputPath resolves the prediction file for a model
func (c OutputConfig) OutputPath(modelName string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(modelName)
	return strings.ReplaceAll(c.Pattern, "{model}", safe)
}
