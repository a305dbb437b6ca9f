package agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/lewisedginton/agent_handoff/internal/config"
)

// GeminiResponder answers with a single GenerateContent call, on the Gemini
// API or on Vertex AI when a project and region are configured.
type GeminiResponder struct {
	client       *genai.Client
	model        string
	systemPrompt string
	maxTokens    int32
}

func NewGeminiResponder(ctx context.Context, cfg config.GeminiConfig, systemPrompt string, maxTokens int64) (*GeminiResponder, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Project != "" && cfg.Region != "" {
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = cfg.Project
		clientConfig.Location = cfg.Region
	}
	if cfg.APIBaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.APIBaseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiResponder{
		client:       client,
		model:        cfg.Model,
		systemPrompt: systemPrompt,
		maxTokens:    int32(maxTokens), //nolint:gosec // bounded by config validation
	}, nil
}

func (g *GeminiResponder) Name() string { return config.ResponderGemini }

func (g *GeminiResponder) Respond(ctx context.Context, utterance string) (string, error) {
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: g.maxTokens}
	if g.systemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(g.systemPrompt, genai.RoleUser)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(utterance), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini api error: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned no text content")
	}
	return text, nil
}
