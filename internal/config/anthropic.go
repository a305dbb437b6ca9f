package config

import "time"

// AnthropicConfig holds settings for the anthropic responder
type AnthropicConfig struct {
	APIKey     string        `env:"ANTHROPIC_API_KEY" yaml:"-"`
	Model      string        `env:"CLAUDE_MODEL" yaml:"model" default:"claude-sonnet-4-5-20250929"`
	APIBaseURL string        `env:"ANTHROPIC_API_URL" yaml:"api_base_url"`
	MaxRetries int           `env:"ANTHROPIC_MAX_RETRIES" yaml:"max_retries" default:"2"`
	Timeout    time.Duration `env:"ANTHROPIC_TIMEOUT" yaml:"timeout" default:"60s"`
}
