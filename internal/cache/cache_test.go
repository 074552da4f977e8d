package cache

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/recall-mcp/internal/embedder"
)

// fakeClock is a manually advanced time source
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockEmbedder returns vectors from a lookup table; unknown texts fail
type mockEmbedder struct {
	mu           sync.Mutex
	dimension    int
	vectors      map[string][]float32
	generateFunc func(text string) (*embedder.Embedding, error)
	calls        int
}

func newMockEmbedder(dim int, vectors map[string][]float32) *mockEmbedder {
	return &mockEmbedder{dimension: dim, vectors: vectors}
}

func (m *mockEmbedder) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.generateFunc != nil {
		return m.generateFunc(req.Text)
	}
	vec, ok := m.vectors[req.Text]
	if !ok {
		return nil, embedder.ErrProviderFailed
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return &embedder.Embedding{Vector: out, Dimension: len(out)}, nil
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	resp := &embedder.BatchEmbeddingResponse{}
	for _, text := range req.Texts {
		emb, err := m.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
		if err != nil {
			return nil, err
		}
		resp.Embeddings = append(resp.Embeddings, emb)
	}
	return resp, nil
}

func (m *mockEmbedder) Dimension() int   { return m.dimension }
func (m *mockEmbedder) Provider() string { return "mock" }
func (m *mockEmbedder) Model() string    { return "mock" }
func (m *mockEmbedder) Close() error     { return nil }
