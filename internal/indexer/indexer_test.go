package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/recall-mcp/internal/embedder"
	"github.com/dshills/recall-mcp/internal/storage"
	"github.com/dshills/recall-mcp/internal/vectorstore"
	"github.com/dshills/recall-mcp/pkg/types"
)

const testDim = 8

// failingEmbedder wraps an embedder and fails batch calls on demand
type failingEmbedder struct {
	embedder.Embedder
	mu         sync.Mutex
	batchErr   error
	batchCalls int
	shortBy    int
}

func (f *failingEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	f.mu.Lock()
	f.batchCalls++
	err := f.batchErr
	short := f.shortBy
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	resp, err := f.Embedder.GenerateBatch(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.Embeddings = resp.Embeddings[:len(resp.Embeddings)-short]
	return resp, nil
}

type env struct {
	emb     *failingEmbedder
	graph   *storage.SQLiteStore
	vectors *vectorstore.ChromemStore
	idx     *Indexer
}

func setup(t *testing.T, cfg *Config) *env {
	t.Helper()
	local, err := embedder.NewLocalProvider(embedder.Config{Dimension: testDim}, nil)
	require.NoError(t, err)

	graph, err := storage.NewSQLiteStore(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = graph.Close() })

	vectors, err := vectorstore.NewChromemStore("")
	require.NoError(t, err)

	e := &env{emb: &failingEmbedder{Embedder: local}, graph: graph, vectors: vectors}
	e.idx = New(e.emb, vectors, graph, cfg)

	var n int
	e.idx.newID = func() string { n++; return fmt.Sprintf("id-%03d", n) }
	e.idx.now = func() int64 { return 1_000 }
	return e
}

func inputs(contents ...string) []types.MessageInput {
	out := make([]types.MessageInput, len(contents))
	for i, c := range contents {
		role := types.RoleUser
		if i%2 == 1 {
			role = types.RoleAssistant
		}
		out[i] = types.MessageInput{Content: c, Role: role}
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	idx := New(nil, nil, nil, nil)
	assert.Greater(t, idx.workers, 0)
	assert.Equal(t, DefaultBatchSize, idx.batchSize)

	idx = New(nil, nil, nil, &Config{BatchSize: 10_000})
	assert.Equal(t, embedder.MaxBatchSize, idx.batchSize)
}

func TestIndexMessages(t *testing.T) {
	e := setup(t, &Config{BatchSize: 2, Workers: 2})
	ctx := context.Background()

	stats, err := e.idx.IndexMessages(ctx, "u1", "s1", inputs("one", "two", "three", "four", "five"))
	require.NoError(t, err)

	assert.Equal(t, 5, stats.MessagesIndexed)
	assert.Equal(t, 3, stats.BatchesEmbedded)
	assert.Equal(t, "u1", stats.SubjectID)
	assert.Equal(t, "s1", stats.SessionID)
	assert.Len(t, stats.MessageIDs, 5)

	rec, err := e.graph.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.Messages, 5)
	for i, m := range rec.Messages {
		assert.Equal(t, int64(1_000+i), m.Timestamp, "default timestamps keep input order")
		assert.Equal(t, stats.MessageIDs[i], m.ID)
	}
	assert.Equal(t, "one", rec.Messages[0].Content)
	assert.Equal(t, "five", rec.Messages[4].Content)

	assert.Equal(t, 5, e.vectors.Count("u1"))
}

func TestIndexMessages_VectorsExpandThroughGraph(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	_, err := e.idx.IndexMessages(ctx, "u1", "s1", inputs("the invoice is overdue", "I will pay tomorrow"))
	require.NoError(t, err)

	query, err := embedder.Embed(ctx, e.emb, "the invoice is overdue")
	require.NoError(t, err)
	hits, err := e.vectors.Query(ctx, vectorstore.QueryRequest{Namespace: "u1", Vector: query, TopK: 1, Filter: vectorstore.SubjectFilter("u1")})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "s1", hits[0].Metadata.SessionID)
	assert.Equal(t, types.RoleUser, hits[0].Metadata.Role)

	records, err := e.graph.ExpandSessions(ctx, []string{hits[0].ID})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Messages, 2)
	assert.Equal(t, hits[0].Metadata.MessageID, records[0].Messages[0].ID)
}

func TestIndexMessages_ExplicitTimestampAndMetadata(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	_, err := e.idx.IndexMessages(ctx, "u1", "s1", []types.MessageInput{
		{Content: "hi", Role: types.RoleUser, Timestamp: 42, Metadata: map[string]any{"lang": "en"}},
	})
	require.NoError(t, err)

	rec, err := e.graph.GetSession(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.Messages, 1)
	assert.Equal(t, int64(42), rec.Messages[0].Timestamp)
	assert.JSONEq(t, `{"lang":"en"}`, rec.Messages[0].Metadata)
}

func TestIndexMessages_Validation(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		subject string
		session string
		inputs  []types.MessageInput
		wantErr error
	}{
		{name: "empty subject", subject: "", session: "s1", inputs: inputs("x"), wantErr: types.ErrEmptySubject},
		{name: "empty session", subject: "u1", session: "", inputs: inputs("x"), wantErr: types.ErrEmptySession},
		{name: "no messages", subject: "u1", session: "s1", wantErr: types.ErrEmptyContent},
		{name: "bad role", subject: "u1", session: "s1", inputs: []types.MessageInput{{Content: "x", Role: "bot"}}, wantErr: types.ErrInvalidRole},
		{
			name: "one bad message rejects all", subject: "u1", session: "s1",
			inputs:  append(inputs("fine"), types.MessageInput{Role: types.RoleUser}),
			wantErr: types.ErrEmptyContent,
		},
		{
			name: "bad metadata", subject: "u1", session: "s1",
			inputs:  []types.MessageInput{{Content: "x", Role: types.RoleUser, Metadata: map[string]any{"f": func() {}}}},
			wantErr: types.ErrInvalidMetadata,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.idx.IndexMessages(ctx, tt.subject, tt.session, tt.inputs)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := e.graph.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound, "nothing is written when validation fails")
}

func TestIndexMessages_TooMany(t *testing.T) {
	e := setup(t, nil)
	many := make([]types.MessageInput, MaxMessagesPerCall+1)
	_, err := e.idx.IndexMessages(context.Background(), "u1", "s1", many)
	assert.Error(t, err)
}

func TestIndexMessages_EmbeddingFailureWritesNothing(t *testing.T) {
	e := setup(t, &Config{BatchSize: 1})
	e.emb.batchErr = errors.New("provider down")
	ctx := context.Background()

	_, err := e.idx.IndexMessages(ctx, "u1", "s1", inputs("a", "b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")

	_, err = e.graph.GetSession(ctx, "s1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 0, e.vectors.Count("u1"))
}

func TestIndexMessages_ShortBatchIsAnError(t *testing.T) {
	e := setup(t, nil)
	e.emb.shortBy = 1

	_, err := e.idx.IndexMessages(context.Background(), "u1", "s1", inputs("a", "b"))
	assert.ErrorIs(t, err, embedder.ErrProviderFailed)
}

func TestIndexMessages_SubjectMismatch(t *testing.T) {
	e := setup(t, nil)
	ctx := context.Background()

	_, err := e.idx.IndexMessages(ctx, "u1", "s1", inputs("mine"))
	require.NoError(t, err)

	_, err = e.idx.IndexMessages(ctx, "u2", "s1", inputs("theirs"))
	assert.ErrorIs(t, err, storage.ErrSubjectMismatch)
	assert.Equal(t, 0, e.vectors.Count("u2"))
}

func TestIndexMessages_SessionBusy(t *testing.T) {
	e := setup(t, nil)

	require.True(t, e.idx.locks.TryAcquire("s1"))
	_, err := e.idx.IndexMessages(context.Background(), "u1", "s1", inputs("x"))
	assert.ErrorIs(t, err, ErrSessionBusy)

	_, err = e.idx.IndexMessages(context.Background(), "u1", "s2", inputs("x"))
	assert.NoError(t, err, "other sessions are unaffected")

	e.idx.locks.Release("s1")
	_, err = e.idx.IndexMessages(context.Background(), "u1", "s1", inputs("x"))
	assert.NoError(t, err)
}

func TestIndexMessages_CanceledContext(t *testing.T) {
	e := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.idx.IndexMessages(ctx, "u1", "s1", inputs("x"))
	assert.Error(t, err)
	assert.Equal(t, 0, e.vectors.Count("u1"))
}
