package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/lewisedginton/agent_handoff/internal/config"
)

// AnthropicResponder answers with a single Claude message.
type AnthropicResponder struct {
	client       anthropic.Client
	model        string
	systemPrompt string
	maxTokens    int64
}

func NewAnthropicResponder(cfg config.AnthropicConfig, systemPrompt string, maxTokens int64, opts ...option.RequestOption) (*AnthropicResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaudeSonnet4_5_20250929)
	}

	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.APIBaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.APIBaseURL))
	}
	if cfg.Timeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.Timeout))
	}

	return &AnthropicResponder{
		client:       anthropic.NewClient(append(base, opts...)...),
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
	}, nil
}

func (a *AnthropicResponder) Name() string { return config.ResponderAnthropic }

func (a *AnthropicResponder) Respond(ctx context.Context, utterance string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(utterance)),
		},
	}
	if a.systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: a.systemPrompt}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude api error: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("claude returned no text content")
	}
	return b.String(), nil
}
