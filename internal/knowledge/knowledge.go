package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dshills/recall-mcp/internal/assembler"
	"github.com/dshills/recall-mcp/internal/cache"
	"github.com/dshills/recall-mcp/internal/embedder"
	"github.com/dshills/recall-mcp/internal/indexer"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/internal/storage"
	"github.com/dshills/recall-mcp/internal/vectorstore"
	"github.com/dshills/recall-mcp/pkg/types"
)

const (
	DefaultSemanticCapacity = 100
	DefaultSessionCapacity  = 50
)

// Options configures a KnowledgeBase
type Options struct {
	SemanticCapacity int
	SessionCapacity  int
	Indexer          *indexer.Config
	CacheOptions     []cache.Option
}

// Stats reports both caches owned by a KnowledgeBase
type Stats struct {
	ContextCache cache.Stats `json:"contextCache"`
	SessionCache cache.Stats `json:"sessionCache"`
}

// KnowledgeBase is the entry point for reads and writes against a subject's conversation history.
// It owns the stores and both caches; Close releases all of them.
type KnowledgeBase struct {
	embedder embedder.Embedder
	vectors  vectorstore.Store
	graph    storage.GraphStore

	contexts  *cache.SemanticCache[*types.ContextResult]
	sessions  *cache.HybridCache[*types.SessionRecord]
	assembler *assembler.Assembler
	indexer   *indexer.Indexer

	sessionLoads singleflight.Group

	// writes counts AddMessages calls; a session load only fills the cache
	// if no write finished while it was reading
	mu     sync.Mutex
	writes uint64
}

// New wires a KnowledgeBase over already-opened backends
func New(emb embedder.Embedder, vectors vectorstore.Store, graph storage.GraphStore, opts Options) (*KnowledgeBase, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedder not initialized")
	}
	if opts.SemanticCapacity == 0 {
		opts.SemanticCapacity = DefaultSemanticCapacity
	}
	if opts.SessionCapacity == 0 {
		opts.SessionCapacity = DefaultSessionCapacity
	}

	contexts, err := cache.NewSemanticCache[*types.ContextResult](emb, opts.SemanticCapacity, emb.Dimension(), opts.CacheOptions...)
	if err != nil {
		return nil, fmt.Errorf("context cache: %w", err)
	}
	sessions, err := cache.NewHybridCache[*types.SessionRecord](opts.SessionCapacity, opts.CacheOptions...)
	if err != nil {
		return nil, fmt.Errorf("session cache: %w", err)
	}
	asm, err := assembler.New(emb, vectors, graph, contexts)
	if err != nil {
		return nil, err
	}

	return &KnowledgeBase{
		embedder:  emb,
		vectors:   vectors,
		graph:     graph,
		contexts:  contexts,
		sessions:  sessions,
		assembler: asm,
		indexer:   indexer.New(emb, vectors, graph, opts.Indexer),
	}, nil
}

// GetContext returns the messages relevant to queryText from subjectID's sessions
func (kb *KnowledgeBase) GetContext(ctx context.Context, subjectID, queryText string, topK int) (*types.ContextResult, error) {
	return kb.assembler.GetContext(ctx, subjectID, queryText, topK)
}

// AddMessages ingests messages into a session and drops the session's cached record.
// The record is dropped even on failure since a partial write may have landed.
func (kb *KnowledgeBase) AddMessages(ctx context.Context, subjectID, sessionID string, inputs []types.MessageInput) (*indexer.Statistics, error) {
	stats, err := kb.indexer.IndexMessages(ctx, subjectID, sessionID, inputs)
	kb.invalidateSession(sessionID)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

func (kb *KnowledgeBase) invalidateSession(sessionID string) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	kb.writes++
	kb.sessions.Delete(sessionID)
	// later readers must not join a load that started before this write
	kb.sessionLoads.Forget(sessionID)
}

func (kb *KnowledgeBase) writeCount() uint64 {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.writes
}

// cacheSession stores rec unless a write finished after the load began
func (kb *KnowledgeBase) cacheSession(sessionID string, rec *types.SessionRecord, loadedAt uint64) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if kb.writes != loadedAt {
		return false
	}
	kb.sessions.Set(sessionID, rec)
	return true
}

// GetSession returns a session and all of its messages.
// Unknown sessions report storage.ErrNotFound.
func (kb *KnowledgeBase) GetSession(ctx context.Context, sessionID string) (*types.SessionRecord, error) {
	if sessionID == "" {
		return nil, types.ErrEmptySession
	}
	if rec, ok := kb.sessions.Get(sessionID); ok {
		return rec.Clone(), nil
	}

	v, err, _ := kb.sessionLoads.Do(sessionID, func() (interface{}, error) {
		loadedAt := kb.writeCount()
		rec, err := kb.graph.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if !kb.cacheSession(sessionID, rec, loadedAt) {
			logger.GetLogger(ctx).Debugf("[KnowledgeBase] Session %s changed during load, not caching", sessionID)
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*types.SessionRecord).Clone(), nil
}

// ListSessions returns the IDs of subjectID's sessions, most recently updated first
func (kb *KnowledgeBase) ListSessions(ctx context.Context, subjectID string) ([]string, error) {
	if subjectID == "" {
		return nil, types.ErrEmptySubject
	}
	return kb.graph.ListSessions(ctx, subjectID)
}

func (kb *KnowledgeBase) Stats() Stats {
	return Stats{
		ContextCache: kb.contexts.Stats(),
		SessionCache: kb.sessions.Stats(),
	}
}

// ClearCaches empties both caches. Hit and miss counters are kept.
func (kb *KnowledgeBase) ClearCaches(ctx context.Context) {
	kb.contexts.Clear()
	kb.sessions.Clear()
	logger.GetLogger(ctx).Info("[KnowledgeBase] Caches cleared")
}

// Close releases the stores and the embedder
func (kb *KnowledgeBase) Close() error {
	return errors.Join(
		kb.vectors.Close(),
		kb.graph.Close(),
		kb.embedder.Close(),
	)
}
