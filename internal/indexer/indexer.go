package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/recall-mcp/internal/embedder"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/internal/storage"
	"github.com/dshills/recall-mcp/internal/vectorstore"
	"github.com/dshills/recall-mcp/pkg/types"
)

// ErrSessionBusy is returned when another ingest into the same session is in progress
var ErrSessionBusy = errors.New("session ingest already in progress")

const (
	// DefaultBatchSize is the number of messages embedded per provider call
	DefaultBatchSize = 32
	// MaxMessagesPerCall bounds a single IndexMessages call
	MaxMessagesPerCall = 1000
)

// Indexer coordinates the ingest pipeline: validate -> embed -> graph -> vectors
type Indexer struct {
	embedder embedder.Embedder
	vectors  vectorstore.Store
	graph    storage.GraphStore
	locks    *sessionLocks

	workers   int
	batchSize int

	// newID is replaceable in tests
	newID func() string
	now   func() int64
}

// Config contains configuration for the indexer
type Config struct {
	Workers   int // Concurrent embedding batches (default: runtime.NumCPU())
	BatchSize int // Messages per embedding batch (default: DefaultBatchSize)
}

// Statistics contains statistics about an ingest operation
type Statistics struct {
	SubjectID       string        `json:"subjectId"`
	SessionID       string        `json:"sessionId"`
	MessagesIndexed int           `json:"messagesIndexed"`
	BatchesEmbedded int           `json:"batchesEmbedded"`
	MessageIDs      []string      `json:"messageIds"`
	Duration        time.Duration `json:"duration"`
}

// New creates a new Indexer instance
func New(emb embedder.Embedder, vectors vectorstore.Store, graph storage.GraphStore, config *Config) *Indexer {
	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := config.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize > embedder.MaxBatchSize {
		batchSize = embedder.MaxBatchSize
	}

	return &Indexer{
		embedder:  emb,
		vectors:   vectors,
		graph:     graph,
		locks:     newSessionLocks(),
		workers:   workers,
		batchSize: batchSize,
		newID:     func() string { return uuid.New().String() },
		now:       types.NowMillis,
	}
}

// IndexMessages stores a batch of messages for one session.
//
// Every input is validated before anything is written. Messages are embedded
// first, then written to the graph store, then to the vector store, so a vector
// hit always has a graph expansion.
func (idx *Indexer) IndexMessages(ctx context.Context, subjectID, sessionID string, inputs []types.MessageInput) (*Statistics, error) {
	startTime := time.Now()

	if subjectID == "" {
		return nil, types.ErrEmptySubject
	}
	if sessionID == "" {
		return nil, types.ErrEmptySession
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no messages", types.ErrEmptyContent)
	}
	if len(inputs) > MaxMessagesPerCall {
		return nil, fmt.Errorf("too many messages: %d exceeds %d", len(inputs), MaxMessagesPerCall)
	}

	msgs, err := idx.prepare(inputs)
	if err != nil {
		return nil, err
	}

	if !idx.locks.TryAcquire(sessionID) {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
	}
	defer idx.locks.Release(sessionID)

	vectors, batches, err := idx.embed(ctx, msgs)
	if err != nil {
		return nil, err
	}

	if err := idx.graph.SaveMessages(ctx, subjectID, sessionID, msgs); err != nil {
		return nil, fmt.Errorf("failed to save messages: %w", err)
	}

	records := make([]vectorstore.Record, len(msgs))
	for i, m := range msgs {
		records[i] = vectorstore.Record{
			ID:      m.VectorID,
			Vector:  vectors[i],
			Content: m.Content,
			Metadata: types.HitMetadata{
				SubjectID: subjectID,
				SessionID: sessionID,
				MessageID: m.ID,
				Role:      m.Role,
				Timestamp: m.Timestamp,
			},
		}
	}
	if err := idx.vectors.Upsert(ctx, subjectID, records); err != nil {
		return nil, fmt.Errorf("failed to store vectors: %w", err)
	}

	stats := &Statistics{
		SubjectID:       subjectID,
		SessionID:       sessionID,
		MessagesIndexed: len(msgs),
		BatchesEmbedded: batches,
		MessageIDs:      make([]string, len(msgs)),
		Duration:        time.Since(startTime),
	}
	for i, m := range msgs {
		stats.MessageIDs[i] = m.ID
	}

	logger.GetLogger(ctx).Infof("[Indexer] Indexed %d messages into session %s in %s", stats.MessagesIndexed, sessionID, stats.Duration)
	return stats, nil
}

// prepare validates inputs and assigns identifiers and default timestamps.
// Messages without a timestamp are spaced one millisecond apart to keep their order.
func (idx *Indexer) prepare(inputs []types.MessageInput) ([]types.StoredMessage, error) {
	now := idx.now()
	msgs := make([]types.StoredMessage, len(inputs))
	for i := range inputs {
		in := inputs[i]
		if err := in.Validate(); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		meta, err := types.EncodeMetadata(in.Metadata)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		ts := in.Timestamp
		if ts == 0 {
			ts = now + int64(i)
		}
		msgs[i] = types.StoredMessage{
			ID:        idx.newID(),
			VectorID:  idx.newID(),
			Content:   in.Content,
			Role:      in.Role,
			Timestamp: ts,
			Metadata:  meta,
		}
	}
	return msgs, nil
}

// embed generates vectors for msgs concurrently, one provider call per batch
func (idx *Indexer) embed(ctx context.Context, msgs []types.StoredMessage) ([][]float32, int, error) {
	vectors := make([][]float32, len(msgs))
	semaphore := make(chan struct{}, idx.workers)
	var batches int32

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(msgs); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(msgs) {
			end = len(msgs)
		}

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			texts := make([]string, 0, end-start)
			for _, m := range msgs[start:end] {
				texts = append(texts, m.Content)
			}
			resp, err := idx.embedder.GenerateBatch(gctx, embedder.BatchEmbeddingRequest{Texts: texts})
			if err != nil {
				return fmt.Errorf("failed to embed messages %d-%d: %w", start, end-1, err)
			}
			if len(resp.Embeddings) != len(texts) {
				return fmt.Errorf("%w: got %d embeddings for %d messages", embedder.ErrProviderFailed, len(resp.Embeddings), len(texts))
			}
			for i, emb := range resp.Embeddings {
				if len(emb.Vector) != idx.embedder.Dimension() {
					return fmt.Errorf("%w: got %d, want %d", embedder.ErrDimensionMismatch, len(emb.Vector), idx.embedder.Dimension())
				}
				vectors[start+i] = emb.Vector
			}
			atomic.AddInt32(&batches, 1)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return vectors, int(batches), nil
}
