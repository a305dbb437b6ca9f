package config

import "time"

// OpenAIConfig holds settings for the openai responder
type OpenAIConfig struct {
	APIKey     string        `env:"OPENAI_API_KEY" yaml:"-"`
	Model      string        `env:"OPENAI_MODEL" yaml:"model" default:"gpt-4o-mini"`
	APIBaseURL string        `env:"OPENAI_API_URL" yaml:"api_base_url"`
	MaxRetries int           `env:"OPENAI_MAX_RETRIES" yaml:"max_retries" default:"2"`
	Timeout    time.Duration `env:"OPENAI_TIMEOUT" yaml:"timeout" default:"60s"`
}
