package embedder

import (
	"context"
	"fmt"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultLocalModel  = "local-hash-embeddings"

	// Default dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	OllamaDimension = 768
	LocalDimension  = 384

	// Default endpoints
	DefaultJinaURL   = "https://api.jina.ai/v1"
	DefaultOllamaURL = "http://localhost:11434"

	// Batch limits
	DefaultBatchSize = 50
	MaxBatchSize     = 100

	DefaultCacheSize = 10000

	// Retry configuration
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// callFunc embeds texts with model, returning one vector per text in order
type callFunc func(ctx context.Context, texts []string, model string) ([][]float32, error)

// baseProvider holds what every provider shares: identity, cache and retry policy
type baseProvider struct {
	name      string
	model     string
	dimension int
	cache     *Cache
	retry     RetryConfig
}

func (b *baseProvider) Dimension() int {
	return b.dimension
}

func (b *baseProvider) Provider() string {
	return b.name
}

func (b *baseProvider) Model() string {
	return b.model
}

func (b *baseProvider) generateOne(ctx context.Context, req EmbeddingRequest, call callFunc) (*Embedding, error) {
	resp, err := b.generateBatch(ctx, BatchEmbeddingRequest{
		Texts: []string{req.Text},
		Model: req.Model,
	}, call)
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}

	return resp.Embeddings[0], nil
}

// generateBatch serves cached texts locally and sends only the misses to the provider
func (b *baseProvider) generateBatch(ctx context.Context, req BatchEmbeddingRequest, call callFunc) (*BatchEmbeddingResponse, error) {
	if err := validateTexts(req.Texts); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = b.model
	}

	embeddings := make([]*Embedding, len(req.Texts))
	var missing []int
	for i, text := range req.Texts {
		if b.cache != nil {
			if vec, ok := b.cache.Get(model, text); ok {
				embeddings[i] = &Embedding{Vector: vec, Dimension: len(vec), Model: model}
				continue
			}
		}
		missing = append(missing, i)
	}

	if len(missing) > 0 {
		pending := make([]string, len(missing))
		for j, idx := range missing {
			pending[j] = req.Texts[idx]
		}

		vectors, err := retryWithBackoff(ctx, b.retry, func() ([][]float32, error) {
			return call(ctx, pending, model)
		})
		if err != nil {
			return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, b.retry.MaxRetries, err)
		}
		if len(vectors) != len(pending) {
			return nil, fmt.Errorf("%w: requested %d embeddings, got %d", ErrProviderFailed, len(pending), len(vectors))
		}

		for j, idx := range missing {
			if b.cache != nil {
				b.cache.Put(model, pending[j], vectors[j])
			}
			embeddings[idx] = &Embedding{Vector: vectors[j], Dimension: len(vectors[j]), Model: model}
		}
	}

	return &BatchEmbeddingResponse{
		Embeddings: embeddings,
		Provider:   b.name,
		Model:      model,
	}, nil
}
