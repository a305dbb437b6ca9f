// Package agent is a reference agent for the handoff mailbox. It picks up the
// pending request, asks a Responder for a reply and publishes it with the
// payload-then-marker ordering the service relies on.
package agent

import (
	"context"
	"fmt"

	"github.com/lewisedginton/agent_handoff/internal/config"
)

// Responder turns one user utterance into one reply.
type Responder interface {
	Name() string
	Respond(ctx context.Context, utterance string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, utterance string) (string, error)

func (f ResponderFunc) Name() string { return "func" }

func (f ResponderFunc) Respond(ctx context.Context, utterance string) (string, error) {
	return f(ctx, utterance)
}

// EchoResponder replies with the utterance itself, optionally prefixed.
type EchoResponder struct {
	Prefix string
}

func (e EchoResponder) Name() string { return config.ResponderEcho }

func (e EchoResponder) Respond(_ context.Context, utterance string) (string, error) {
	return e.Prefix + utterance, nil
}

// NewResponder builds the responder selected by cfg.Responder.
func NewResponder(ctx context.Context, cfg config.AgentConfig) (Responder, error) {
	switch cfg.Responder {
	case config.ResponderEcho, "":
		return EchoResponder{Prefix: cfg.EchoPrefix}, nil
	case config.ResponderAnthropic:
		return NewAnthropicResponder(cfg.Anthropic, cfg.SystemPrompt, cfg.MaxTokens)
	case config.ResponderOpenAI:
		return NewOpenAIResponder(cfg.OpenAI, cfg.SystemPrompt, cfg.MaxTokens)
	case config.ResponderGemini:
		return NewGeminiResponder(ctx, cfg.Gemini, cfg.SystemPrompt, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unsupported responder: %s", cfg.Responder)
	}
}
