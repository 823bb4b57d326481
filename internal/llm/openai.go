package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-4o-mini"

	defaultPersona = "You are a principal engineer working at Jina - an open source company. " +
		"You accurately satisfy all of the user's requirements."
)

// OpenAIConfig configures the OpenAI chat completion backend.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string // optional, for OpenAI-compatible gateways
	Persona     string // system message; defaults to the executor persona
	Temperature float32
}

// OpenAIBackend implements Backend with the OpenAI chat completion API.
type OpenAIBackend struct {
	client *openai.Client
	cfg    OpenAIConfig
	logger *zap.Logger
}

// NewOpenAIBackend creates a backend. The API key falls back to OPENAI_API_KEY.
func NewOpenAIBackend(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Persona == "" {
		cfg.Persona = defaultPersona
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	logger = logger.Named("openai")
	logger.Info("Initializing OpenAI backend", zap.String("model", cfg.Model))

	return &OpenAIBackend{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Complete sends the persona and history as a single chat completion request.
func (o *OpenAIBackend) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.cfg.Model,
		Temperature: o.cfg.Temperature,
		Messages:    toOpenAIMessages(o.cfg.Persona, messages),
	}

	o.logger.Debug("Sending chat completion", zap.Int("messages", len(req.Messages)))

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("OpenAI returned no choices")
	}

	o.logger.Debug("Received chat completion",
		zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(persona string, messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if persona != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: persona})
	}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
