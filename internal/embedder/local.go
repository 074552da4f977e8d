package embedder

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/dshills/recall-mcp/internal/similarity"
)

// LocalProvider produces deterministic embeddings without any model or network.
// Identical texts map to identical unit vectors; it is meant for offline use and tests.
type LocalProvider struct {
	baseProvider
}

// NewLocalProvider creates a new local embedder
func NewLocalProvider(cfg Config, cache *Cache) (*LocalProvider, error) {
	return &LocalProvider{
		baseProvider: baseProvider{
			name:      ProviderLocal,
			model:     orDefault(cfg.Model, DefaultLocalModel),
			dimension: orDefaultInt(cfg.Dimension, LocalDimension),
			cache:     cache,
			retry:     RetryConfig{MaxRetries: 1},
		},
	}, nil
}

func (l *LocalProvider) GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error) {
	return l.generateOne(ctx, req, l.embedTexts)
}

func (l *LocalProvider) GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error) {
	return l.generateBatch(ctx, req, l.embedTexts)
}

func (l *LocalProvider) embedTexts(ctx context.Context, texts []string, _ string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = hashVector(text, l.dimension)
	}
	return vectors, nil
}

// hashVector seeds a linear congruential generator with the FNV-1a hash of text
func hashVector(text string, dim int) []float32 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return similarity.Normalize(vec)
}

func (l *LocalProvider) Close() error {
	return nil
}
