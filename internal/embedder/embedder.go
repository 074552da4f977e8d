package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
	ErrEmptyText         = errors.New("message text is empty")
	ErrBatchTooLarge     = errors.New("too many messages in one embedding batch")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedding is the vector for one message or query text
type Embedding struct {
	Vector    []float32
	Dimension int
	Model     string
}

// EmbeddingRequest asks for the vector of a single text
type EmbeddingRequest struct {
	Text  string
	Model string // empty uses the provider's model
}

// BatchEmbeddingRequest asks for vectors of several texts, answered in order
type BatchEmbeddingRequest struct {
	Texts []string
	Model string
}

type BatchEmbeddingResponse struct {
	Embeddings []*Embedding
	Provider   string
	Model      string
}

// Embedder turns message and query text into vectors of a fixed dimension.
// Implementations must be safe for concurrent use.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, req EmbeddingRequest) (*Embedding, error)
	GenerateBatch(ctx context.Context, req BatchEmbeddingRequest) (*BatchEmbeddingResponse, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// Embed returns only the vector for text.
// A vector whose length differs from e.Dimension() is reported as ErrDimensionMismatch.
func Embed(ctx context.Context, e Embedder, text string) ([]float32, error) {
	emb, err := e.GenerateEmbedding(ctx, EmbeddingRequest{Text: text})
	if err != nil {
		return nil, err
	}
	if len(emb.Vector) != e.Dimension() {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(emb.Vector), e.Dimension())
	}
	return emb.Vector, nil
}

// Cache memoizes vectors per (model, text). Re-ingested transcripts and
// repeated queries hit it instead of the provider.
type Cache struct {
	vectors *lru.Cache[string, []float32]
}

// NewCache returns a Cache holding at most size vectors
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	vectors, err := lru.New[string, []float32](size)
	if err != nil {
		vectors, _ = lru.New[string, []float32](DefaultCacheSize)
	}
	return &Cache{vectors: vectors}
}

// Get returns a copy of the memoized vector
func (c *Cache) Get(model, text string) ([]float32, bool) {
	vec, ok := c.vectors.Get(memoKey(model, text))
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

// Put stores a copy of vec
func (c *Cache) Put(model, text string, vec []float32) {
	c.vectors.Add(memoKey(model, text), append([]float32(nil), vec...))
}

func (c *Cache) Len() int {
	return c.vectors.Len()
}

// memoKey hashes model and text with a separator so that ("a", "b:c") and ("a:b", "c") differ
func memoKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// validateTexts rejects empty batches, empty texts and batches above MaxBatchSize
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	if len(texts) > MaxBatchSize {
		return fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: index %d", ErrEmptyText, i)
		}
	}
	return nil
}
