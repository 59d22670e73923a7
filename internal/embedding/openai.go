package embedding

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/DreamCats/tweetsearch/internal/config"
)

// openAIMaxBatch is the largest input array the embeddings endpoint accepts.
const openAIMaxBatch = 2048

// OpenAIClient implements Client for OpenAI's embedding API, or any
// OpenAI-compatible endpoint when cfg.Endpoint is set.
type OpenAIClient struct {
	client openai.Client
	model  string
	dims   int
}

// NewOpenAIClient creates a new OpenAI embedding client
func NewOpenAIClient(cfg *config.EmbeddingConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api_key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
		dims:   cfg.Dimensions,
	}, nil
}

// EmbedBatch generates embeddings for multiple texts
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if len(texts) > openAIMaxBatch {
		return nil, fmt.Errorf("batch of %d exceeds the %d input limit", len(texts), openAIMaxBatch)
	}

	params := openai.EmbeddingNewParams{
		Model:          c.model,
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if c.dims > 0 {
		params.Dimensions = openai.Int(int64(c.dims))
	}

	resp, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= int64(len(texts)) {
			return nil, fmt.Errorf("invalid embedding index: %d", item.Index)
		}
		vec := make([]float32, len(item.Embedding))
		for i, x := range item.Embedding {
			vec[i] = float32(x)
		}
		embeddings[item.Index] = vec
	}
	for i, v := range embeddings {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
	}
	return embeddings, nil
}

// Dimensions returns the dimension of the embeddings
func (c *OpenAIClient) Dimensions() int {
	return c.dims
}

// Model returns the model identifier
func (c *OpenAIClient) Model() string {
	return c.model
}
