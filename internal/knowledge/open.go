package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/recall-mcp/internal/config"
	"github.com/dshills/recall-mcp/internal/embedder"
	"github.com/dshills/recall-mcp/internal/indexer"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/internal/storage"
	"github.com/dshills/recall-mcp/internal/vectorstore"
)

// Open builds the embedder and both backends described by cfg and wires them into a KnowledgeBase.
// Anything opened before a failure is closed again.
func Open(ctx context.Context, cfg *config.Config) (kb *KnowledgeBase, err error) {
	var closers []func() error
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i]()
			}
		}
	}()

	emb, err := embedder.New(cfg.EmbedderConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	closers = append(closers, emb.Close)

	vectors, err := openVectorStore(ctx, cfg, emb.Dimension())
	if err != nil {
		return nil, err
	}
	closers = append(closers, vectors.Close)

	graph, err := openGraphStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closers = append(closers, graph.Close)

	kb, err = New(emb, vectors, graph, Options{
		SemanticCapacity: cfg.Cache.SemanticCapacity,
		SessionCapacity:  cfg.Cache.SessionCapacity,
		Indexer: &indexer.Config{
			Workers:   cfg.Ingest.Workers,
			BatchSize: cfg.Ingest.BatchSize,
		},
	})
	if err != nil {
		return nil, err
	}

	logger.GetLogger(ctx).Infof("[KnowledgeBase] Ready: embedder=%s/%s dim=%d vector=%s graph=%s",
		emb.Provider(), emb.Model(), emb.Dimension(), cfg.Vector.Backend, cfg.Graph.Backend)
	return kb, nil
}

func openVectorStore(ctx context.Context, cfg *config.Config, dimension int) (vectorstore.Store, error) {
	switch cfg.Vector.Backend {
	case config.VectorMilvus:
		store, err := vectorstore.NewMilvusStore(ctx, vectorstore.MilvusConfig{
			Address:    cfg.Vector.Milvus.Address,
			Username:   cfg.Vector.Milvus.Username,
			Password:   cfg.Vector.Milvus.Password,
			Collection: cfg.Vector.Milvus.Collection,
			Dimension:  dimension,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open milvus: %w", err)
		}
		return store, nil
	default:
		if cfg.Vector.Path != "" {
			if err := os.MkdirAll(cfg.Vector.Path, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create vector directory: %w", err)
			}
		}
		store, err := vectorstore.NewChromemStore(cfg.Vector.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open chromem: %w", err)
		}
		return store, nil
	}
}

func openGraphStore(ctx context.Context, cfg *config.Config) (storage.GraphStore, error) {
	switch cfg.Graph.Backend {
	case config.GraphNeo4j:
		store, err := storage.NewNeo4jStore(ctx, storage.Neo4jConfig{
			URI:      cfg.Graph.Neo4j.URI,
			Username: cfg.Graph.Neo4j.Username,
			Password: cfg.Graph.Neo4j.Password,
			Database: cfg.Graph.Neo4j.Database,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		if cfg.Graph.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Graph.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return storage.NewSQLiteStore(ctx, cfg.Graph.SQLitePath)
	}
}
