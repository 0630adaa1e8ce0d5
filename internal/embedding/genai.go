package embedding

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultGenAIModel = "gemini-embedding-001"

// GenAIEncoder generates embeddings using the Gemini API.
type GenAIEncoder struct {
	client   *genai.Client
	model    string
	taskType string
	dims     int
}

// NewGenAIEncoder creates the client; it performs no network call.
func NewGenAIEncoder(ctx context.Context, apiKey, model, taskType string) (*GenAIEncoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai api key is required")
	}
	if model == "" {
		model = defaultGenAIModel
	}
	if taskType == "" {
		taskType = "RETRIEVAL_QUERY"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GenAIEncoder{
		client:   client,
		model:    model,
		taskType: taskType,
		dims:     768,
	}, nil
}

// WithTaskType returns a copy sharing the client but embedding for another
// task, e.g. RETRIEVAL_DOCUMENT when indexing.
func (e *GenAIEncoder) WithTaskType(taskType string) *GenAIEncoder {
	cp := *e
	cp.taskType = taskType
	return &cp
}

func (e *GenAIEncoder) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(e.dims)
	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{
			TaskType:             e.taskType,
			OutputDimensionality: &dims,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) == 0 || result.Embeddings[0] == nil {
		return nil, fmt.Errorf("genai embed: no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}

func (e *GenAIEncoder) Dimensions() int {
	return e.dims
}

func (e *GenAIEncoder) Name() string {
	return fmt.Sprintf("genai:%s", e.model)
}
