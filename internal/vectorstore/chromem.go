package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/pkg/types"
)

// ChromemStore is an embedded vector store backed by chromem-go.
// Each namespace gets its own collection.
type ChromemStore struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

// NewChromemStore opens an in-memory store, or a persistent one when path is set
func NewChromemStore(path string) (*ChromemStore, error) {
	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	}

	return &ChromemStore{
		db:          db,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

func collectionName(namespace string) string {
	return "subject_" + namespace
}

// collection returns the namespace's collection, creating it when create is set.
// A nil collection with nil error means the namespace has never been written.
func (s *ChromemStore) collection(namespace string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[namespace]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[namespace]; ok {
		return col, nil
	}

	// Persistent databases may already hold the collection from a previous run
	col = s.db.GetCollection(collectionName(namespace), nil)
	if col == nil {
		if !create {
			return nil, nil
		}
		var err error
		col, err = s.db.CreateCollection(collectionName(namespace), nil, nil)
		if err != nil {
			return nil, fmt.Errorf("create collection: %w", err)
		}
	}

	s.collections[namespace] = col
	return col, nil
}

// Query returns up to TopK hits from the namespace. An unknown or empty namespace yields no hits.
func (s *ChromemStore) Query(ctx context.Context, req QueryRequest) ([]types.VectorHit, error) {
	if len(req.Vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrInvalidVector)
	}

	col, err := s.collection(req.Namespace, false)
	if err != nil {
		return nil, err
	}
	if col == nil || req.TopK <= 0 {
		return []types.VectorHit{}, nil
	}

	// chromem requires nResults <= collection size
	n := req.TopK
	if count := col.Count(); count < n {
		n = count
	}
	if n == 0 {
		return []types.VectorHit{}, nil
	}

	var where map[string]string
	if len(req.Filter) > 0 {
		where = req.Filter
	}

	results, err := col.QueryEmbedding(ctx, req.Vector, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	logger.GetLogger(ctx).Debugf("[Chromem] Query namespace=%s topK=%d returned %d hits", req.Namespace, req.TopK, len(results))

	hits := make([]types.VectorHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, types.VectorHit{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: metadataFromMap(r.Metadata),
		})
	}
	return hits, nil
}

// Upsert stores records in the namespace, replacing documents with the same ID
func (s *ChromemStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	col, err := s.collection(namespace, true)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, 0, len(records))
	for _, r := range records {
		if len(r.Vector) == 0 {
			return fmt.Errorf("%w: record %s has no vector", ErrInvalidVector, r.ID)
		}
		content := r.Content
		if content == "" {
			content = r.ID
		}
		docs = append(docs, chromem.Document{
			ID:        r.ID,
			Content:   content,
			Embedding: r.Vector,
			Metadata:  metadataToMap(r.Metadata),
		})
	}

	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents: %w", err)
	}

	logger.GetLogger(ctx).Debugf("[Chromem] Upserted %d documents into namespace=%s", len(docs), namespace)
	return nil
}

// Count returns the number of vectors stored for namespace
func (s *ChromemStore) Count(namespace string) int {
	col, err := s.collection(namespace, false)
	if err != nil || col == nil {
		return 0
	}
	return col.Count()
}

// Close releases resources. chromem persists on every write, so there is nothing to flush.
func (s *ChromemStore) Close() error {
	return nil
}
