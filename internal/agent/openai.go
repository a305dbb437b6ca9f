package agent

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lewisedginton/agent_handoff/internal/config"
)

// OpenAIResponder answers with a single chat completion.
type OpenAIResponder struct {
	client       openai.Client
	model        string
	systemPrompt string
	maxTokens    int64
}

func NewOpenAIResponder(cfg config.OpenAIConfig, systemPrompt string, maxTokens int64, opts ...option.RequestOption) (*OpenAIResponder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model name is required")
	}

	base := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(cfg.MaxRetries)}
	if cfg.APIBaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.APIBaseURL))
	}
	if cfg.Timeout > 0 {
		base = append(base, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIResponder{
		client:       openai.NewClient(append(base, opts...)...),
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		maxTokens:    maxTokens,
	}, nil
}

func (o *OpenAIResponder) Name() string { return config.ResponderOpenAI }

func (o *OpenAIResponder) Respond(ctx context.Context, utterance string) (string, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if o.systemPrompt != "" {
		messages = append(messages, openai.SystemMessage(o.systemPrompt))
	}
	messages = append(messages, openai.UserMessage(utterance))

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:     o.model,
		MaxTokens: openai.Int(o.maxTokens),
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("openai API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return completion.Choices[0].Message.Content, nil
}
