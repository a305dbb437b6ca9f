package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Responder names accepted by AGENT_RESPONDER
const (
	ResponderEcho      = "echo"
	ResponderAnthropic = "anthropic"
	ResponderOpenAI    = "openai"
	ResponderGemini    = "gemini"
)

// AgentConfig configures the reference agent started by "agent run"
type AgentConfig struct {
	Responder    string        `env:"AGENT_RESPONDER" yaml:"responder" default:"echo"`
	SystemPrompt string        `env:"AGENT_SYSTEM_PROMPT" yaml:"system_prompt"`
	MaxTokens    int64         `env:"AGENT_MAX_TOKENS" yaml:"max_tokens" default:"1024"`
	EchoPrefix   string        `env:"AGENT_ECHO_PREFIX" yaml:"echo_prefix"`
	PollInterval time.Duration `env:"AGENT_POLL_INTERVAL" yaml:"poll_interval" default:"500ms"`

	// Ack deletes the request on intake instead of leaving it for the service to clear.
	Ack bool `env:"AGENT_ACK" yaml:"ack"`

	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Gemini    GeminiConfig    `yaml:"gemini"`
}

func (a AgentConfig) Validate() error {
	var result error

	switch a.Responder {
	case ResponderEcho:
	case ResponderAnthropic:
		if a.Anthropic.APIKey == "" {
			result = multierror.Append(result, fmt.Errorf("ANTHROPIC_API_KEY is required for the anthropic responder"))
		}
	case ResponderOpenAI:
		if a.OpenAI.APIKey == "" {
			result = multierror.Append(result, fmt.Errorf("OPENAI_API_KEY is required for the openai responder"))
		}
	case ResponderGemini:
		if a.Gemini.APIKey == "" && (a.Gemini.Project == "" || a.Gemini.Region == "") {
			result = multierror.Append(result, fmt.Errorf("GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT and GOOGLE_CLOUD_REGION are required for the gemini responder"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("responder must be one of [echo, anthropic, openai, gemini], got %q", a.Responder))
	}

	if a.MaxTokens <= 0 {
		result = multierror.Append(result, fmt.Errorf("agent max_tokens must be greater than 0"))
	}
	if a.PollInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("agent poll_interval must be greater than 0"))
	}
	return result
}
