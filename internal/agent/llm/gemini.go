package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/gisa-chat/server/internal/agent/model"
	logx "github.com/gisa-chat/server/pkg/logger"
)

// GeminiConfig holds what is needed to build the classifier model.
type GeminiConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// GeminiQuerier sends single-prompt queries to a Gemini chat model.
type GeminiQuerier struct {
	chat      *gemini.ChatModel
	modelName string
}

// NewGeminiQuerier creates the genai client and the eino chat model on top of it.
func NewGeminiQuerier(ctx context.Context, cfg GeminiConfig) (*GeminiQuerier, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	maxTokens := cfg.MaxTokens
	chat, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:    client,
		Model:     cfg.Model,
		MaxTokens: &maxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, fmt.Errorf("error creating router model: %w", err)
	}

	return &GeminiQuerier{chat: chat, modelName: cfg.Model}, nil
}

// Query returns the raw text the model produced for prompt.
func (q *GeminiQuerier) Query(ctx context.Context, prompt string, temperature float32) (string, error) {
	out, err := q.chat.Generate(ctx,
		[]*schema.Message{schema.UserMessage(prompt)},
		einomodel.WithTemperature(temperature),
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("gemini generate: empty message")
	}

	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		cost := model.ComputeCost(q.modelName, out.ResponseMeta.Usage)
		logx.Debug().
			Str("model", cost.Model).
			Int("prompt_tokens", cost.PromptTokens).
			Int("completion_tokens", cost.CompletionTokens).
			Float64("total_cost_usd", cost.TotalUSD).
			Msg("LLM usage")
	}
	return strings.TrimSpace(out.Content), nil
}
