package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dshills/recall-mcp/internal/embedder"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/internal/similarity"
)

// StalenessWeight is the penalty per day since an entry was last read
const StalenessWeight = 0.2

type semanticEntry[T any] struct {
	payload        T
	embedding      []float32
	createdAt      time.Time
	lastAccessedAt time.Time
}

// SemanticCache maps exact keys to payloads and remembers the embedding of
// the query that produced each payload. When full, it evicts the entry whose
// query is least similar to the incoming one, penalised by staleness.
type SemanticCache[T any] struct {
	mu        sync.Mutex
	entries   *orderedmap.OrderedMap[string, *semanticEntry[T]]
	capacity  int
	dimension int
	embedder  embedder.Embedder
	now       func() time.Time

	counters
	fallbacks int64
}

// NewSemanticCache creates a cache holding at most capacity entries whose
// query embeddings all have the given dimension.
func NewSemanticCache[T any](emb embedder.Embedder, capacity, dimension int, opts ...Option) (*SemanticCache[T], error) {
	if emb == nil {
		return nil, ErrNilEmbedder
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dimension)
	}

	o := buildOptions(opts)
	return &SemanticCache[T]{
		entries:   orderedmap.New[string, *semanticEntry[T]](),
		capacity:  capacity,
		dimension: dimension,
		embedder:  emb,
		now:       o.now,
	}, nil
}

// Get returns the payload stored under key and refreshes its access time
func (c *SemanticCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		var zero T
		return zero, false
	}

	entry.lastAccessedAt = c.now()
	c.hits++
	return entry.payload, true
}

// Set stores payload under key. queryText is embedded to drive future
// evictions; if embedding fails the entry is stored with a zero vector.
func (c *SemanticCache[T]) Set(ctx context.Context, key string, payload T, queryText string) {
	vec, err := c.embed(ctx, queryText)
	fallback := err != nil
	if fallback {
		logger.GetLogger(ctx).WithError(err).Warnf("[SemanticCache] Embedding failed, storing key %s with zero vector", key)
		vec = make([]float32, c.dimension)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if fallback {
		c.fallbacks++
	}

	if existing, ok := c.entries.Get(key); ok {
		existing.payload = payload
		existing.embedding = vec
		existing.lastAccessedAt = now
		return
	}

	if c.entries.Len() >= c.capacity {
		c.evictOne(vec, now)
	}

	c.entries.Set(key, &semanticEntry[T]{
		payload:        payload,
		embedding:      vec,
		createdAt:      now,
		lastAccessedAt: now,
	})
}

func (c *SemanticCache[T]) embed(ctx context.Context, text string) ([]float32, error) {
	emb, err := c.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text})
	if err != nil {
		return nil, err
	}
	if len(emb.Vector) != c.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", embedder.ErrDimensionMismatch, len(emb.Vector), c.dimension)
	}
	return emb.Vector, nil
}

// evictOne removes the entry with the lowest similarity-minus-staleness score.
// Ties keep the earliest inserted entry as the victim. Caller holds c.mu.
func (c *SemanticCache[T]) evictOne(incoming []float32, now time.Time) {
	var victim string
	var lowest float64
	found := false

	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		entry := pair.Value
		staleness := float64(now.Sub(entry.lastAccessedAt)) / float64(24*time.Hour)
		score := similarity.Cosine(incoming, entry.embedding) - StalenessWeight*staleness
		if !found || score < lowest {
			victim, lowest, found = pair.Key, score, true
		}
	}

	if found {
		c.entries.Delete(victim)
		c.evictions++
	}
}

// Delete removes key, reporting whether it was present
func (c *SemanticCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries.Delete(key)
	return ok
}

// Clear removes every entry. Counters are kept.
func (c *SemanticCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[string, *semanticEntry[T]]()
}

// Len returns the number of cached entries
func (c *SemanticCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns a snapshot of the cache counters
func (c *SemanticCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.snapshot(c.entries.Len(), c.capacity)
	s.EmbeddingFallbacks = c.fallbacks
	return s
}
