package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/recall-mcp/internal/cache"
	"github.com/dshills/recall-mcp/internal/embedder"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/internal/vectorstore"
	"github.com/dshills/recall-mcp/pkg/types"
)

const (
	// DefaultTopK is used when the caller passes a non-positive topK
	DefaultTopK = 5
	// MaxTopK bounds the number of vector hits per request
	MaxTopK = 100
)

var (
	ErrEmbedding   = errors.New("query embedding failed")
	ErrVectorStore = errors.New("vector store query failed")
	ErrGraphStore  = errors.New("graph store query failed")
)

// SessionExpander expands vector IDs into their owning sessions
type SessionExpander interface {
	ExpandSessions(ctx context.Context, vectorIDs []string) ([]types.SessionRecord, error)
}

// Assembler produces ContextResults, short-circuiting repeated queries through a semantic cache
type Assembler struct {
	embedder embedder.Embedder
	vectors  vectorstore.Store
	graph    SessionExpander
	cache    *cache.SemanticCache[*types.ContextResult]
	group    singleflight.Group
}

// New creates an Assembler. The cache is owned by the caller and may be shared with its stats reporting.
func New(emb embedder.Embedder, vectors vectorstore.Store, graph SessionExpander, results *cache.SemanticCache[*types.ContextResult]) (*Assembler, error) {
	switch {
	case emb == nil:
		return nil, fmt.Errorf("embedder not initialized")
	case vectors == nil:
		return nil, fmt.Errorf("vector store not initialized")
	case graph == nil:
		return nil, fmt.Errorf("graph store not initialized")
	case results == nil:
		return nil, fmt.Errorf("result cache not initialized")
	}

	return &Assembler{
		embedder: emb,
		vectors:  vectors,
		graph:    graph,
		cache:    results,
	}, nil
}

// NormalizeTopK applies the default and rejects values above MaxTopK
func NormalizeTopK(topK int) (int, error) {
	if topK <= 0 {
		return DefaultTopK, nil
	}
	if topK > MaxTopK {
		return 0, fmt.Errorf("%w: %d exceeds maximum %d", types.ErrInvalidTopK, topK, MaxTopK)
	}
	return topK, nil
}

// GetContext returns the assembled context for queryText within subjectID's history.
// The returned result is owned by the caller.
func (a *Assembler) GetContext(ctx context.Context, subjectID, queryText string, topK int) (*types.ContextResult, error) {
	if subjectID == "" {
		return nil, types.ErrEmptySubject
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, types.ErrEmptyQuery
	}
	topK, err := NormalizeTopK(topK)
	if err != nil {
		return nil, err
	}

	key := cache.DeriveKey(subjectID, queryText, topK)
	log := logger.GetLogger(ctx).WithField("cache_key", key)

	if cached, ok := a.cache.Get(key); ok {
		log.Debug("[Assembler] Cache hit")
		return cached.Clone(), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// The shared call outlives any one caller; each caller stops waiting on its own ctx.
	ch := a.group.DoChan(key, func() (interface{}, error) {
		return a.assemble(context.WithoutCancel(ctx), key, subjectID, queryText, topK)
	})
	select {
	case <-ctx.Done():
		log.Debug("[Assembler] Caller gave up waiting")
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.Debug("[Assembler] Coalesced with in-flight request")
		}
		return res.Val.(*types.ContextResult).Clone(), nil
	}
}

func (a *Assembler) assemble(ctx context.Context, key, subjectID, queryText string, topK int) (*types.ContextResult, error) {
	start := time.Now()
	log := logger.GetLogger(ctx)

	vector, err := embedder.Embed(ctx, a.embedder, queryText)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	hits, err := a.vectors.Query(ctx, vectorstore.QueryRequest{
		Namespace: subjectID,
		Vector:    vector,
		TopK:      topK,
		Filter:    vectorstore.SubjectFilter(subjectID),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrVectorStore, err)
	}

	if len(hits) == 0 {
		result := types.NewContextResult()
		a.cache.Set(ctx, key, result, queryText)
		log.Debugf("[Assembler] No hits for subject %s in %s", subjectID, time.Since(start))
		return result, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}

	records, err := a.graph.ExpandSessions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGraphStore, err)
	}

	result := Merge(ctx, hits, records)
	a.cache.Set(ctx, key, result, queryText)

	log.Debugf("[Assembler] Assembled %d messages from %d hits across %d sessions in %s",
		len(result.Messages), len(hits), len(result.RelatedSessions), time.Since(start))
	return result, nil
}

// Stats returns the result cache statistics
func (a *Assembler) Stats() cache.Stats {
	return a.cache.Stats()
}
