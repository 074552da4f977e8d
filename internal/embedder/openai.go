package embedder

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Embedder using the OpenAI embeddings API.
// BaseURL may point at any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	baseProvider
	client *openai.Client
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(cfg Config, cache *Cache) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: openai api key not set", ErrNoProviderEnabled)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		baseProvider: baseProvider{
			name:      ProviderOpenAI,
			model:     orDefault(cfg.Model, DefaultOpenAIModel),
			dimension: orDefaultInt(cfg.Dimension, OpenAIDimension),
			cache:     cache,
			retry:     DefaultRetryConfig(),
		},
		client: openai.NewClientWithConfig(clientConfig),
	}, nil
}

func (o *OpenAIProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return o.generateOne(ctx, req, o.callAPI)
}

func (o *OpenAIProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return o.generateBatch(ctx, req, o.callAPI)
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string, model string) ([][]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(model),
		Dimensions: o.dimension,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && isClientError(apiErr.HTTPStatusCode) {
			return nil, permanent(err)
		}
		return nil, fmt.Errorf("api call: %w", err)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, fmt.Errorf("response index %d out of range", data.Index)
		}
		vectors[data.Index] = data.Embedding
	}

	return vectors, nil
}

func (o *OpenAIProvider) Close() error {
	return nil
}
