package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	client "github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/pkg/types"
)

const (
	// DefaultMilvusCollection is used when no collection name is configured
	DefaultMilvusCollection = "recall_messages"

	fieldID        = "id"
	fieldEmbedding = "embedding"
	fieldContent   = "content"
)

// varchar metadata fields filterable with QueryRequest.Filter
var milvusVarcharFields = []string{MetaSubjectID, MetaSessionID, MetaMessageID, MetaRole}

// MilvusConfig configures a Milvus-backed store
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Dimension  int
}

// MilvusStore keeps every namespace in one collection and scopes queries by subject_id
type MilvusStore struct {
	client     *client.Client
	collection string
	dimension  int

	initOnce sync.Once
	initErr  error
}

// NewMilvusStore connects to Milvus. The collection is created lazily on first use.
func NewMilvusStore(ctx context.Context, cfg MilvusConfig) (*MilvusStore, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidVector)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultMilvusCollection
	}

	c, err := client.New(ctx, &client.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("connect milvus at %s: %w", cfg.Address, err)
	}

	logger.GetLogger(ctx).Infof("[Milvus] Connected to %s, collection=%s dim=%d", cfg.Address, cfg.Collection, cfg.Dimension)
	return &MilvusStore{
		client:     c,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
	}, nil
}

func (m *MilvusStore) ensureCollection(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.initErr = m.createAndLoad(ctx)
	})
	return m.initErr
}

func (m *MilvusStore) createAndLoad(ctx context.Context) error {
	log := logger.GetLogger(ctx)

	has, err := m.client.HasCollection(ctx, client.NewHasCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("check collection existence: %w", err)
	}

	if !has {
		log.Infof("[Milvus] Creating collection %s", m.collection)

		fields := []*entity.Field{
			entity.NewField().
				WithName(fieldID).
				WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).
				WithMaxLength(64),
			entity.NewField().
				WithName(fieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(m.dimension)),
			entity.NewField().
				WithName(fieldContent).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(65535),
			entity.NewField().
				WithName(MetaTimestamp).
				WithDataType(entity.FieldTypeInt64),
		}
		for _, name := range milvusVarcharFields {
			fields = append(fields, entity.NewField().
				WithName(name).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(255))
		}

		schema := &entity.Schema{
			CollectionName: m.collection,
			Description:    "recall message embeddings",
			AutoID:         false,
			Fields:         fields,
		}

		indexOpt := client.NewCreateIndexOption(m.collection, fieldEmbedding, index.NewHNSWIndex(entity.COSINE, 16, 128))
		err = m.client.CreateCollection(ctx, client.NewCreateCollectionOption(m.collection, schema).WithIndexOptions(indexOpt))
		if err != nil {
			return fmt.Errorf("create collection: %w", err)
		}
	}

	loadTask, err := m.client.LoadCollection(ctx, client.NewLoadCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("await load collection: %w", err)
	}
	return nil
}

// buildFilter renders exact-match filters as a templated Milvus expression.
// Keys are sorted so the same filter always yields the same expression.
func buildFilter(filter map[string]string) (string, map[string]any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		if !isVarcharField(k) {
			return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedFilter, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	params := make(map[string]any, len(keys))
	for _, k := range keys {
		clauses = append(clauses, fmt.Sprintf("%s == {%s}", k, k))
		params[k] = filter[k]
	}
	return strings.Join(clauses, " and "), params, nil
}

func isVarcharField(name string) bool {
	for _, f := range milvusVarcharFields {
		if f == name {
			return true
		}
	}
	return false
}

// Query searches the shared collection. The namespace is always applied as a subject_id filter.
func (m *MilvusStore) Query(ctx context.Context, req QueryRequest) ([]types.VectorHit, error) {
	if len(req.Vector) != m.dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrInvalidVector, len(req.Vector), m.dimension)
	}
	if req.TopK <= 0 {
		return []types.VectorHit{}, nil
	}
	if err := m.ensureCollection(ctx); err != nil {
		return nil, err
	}

	filter := make(map[string]string, len(req.Filter)+1)
	for k, v := range req.Filter {
		filter[k] = v
	}
	filter[MetaSubjectID] = req.Namespace

	expr, params, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	opt := client.NewSearchOption(m.collection, req.TopK, []entity.Vector{entity.FloatVector(req.Vector)})
	opt.WithANNSField(fieldEmbedding)
	opt.WithFilter(expr)
	for k, v := range params {
		opt.WithTemplateParam(k, v)
	}
	opt.WithOutputFields(MetaSubjectID, MetaSessionID, MetaMessageID, MetaRole, MetaTimestamp)

	resultSets, err := m.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("milvus search: %w", err)
	}

	hits, err := convertResultSets(resultSets)
	if err != nil {
		return nil, err
	}
	logger.GetLogger(ctx).Debugf("[Milvus] Query namespace=%s topK=%d returned %d hits", req.Namespace, req.TopK, len(hits))
	return hits, nil
}

func convertResultSets(resultSets []client.ResultSet) ([]types.VectorHit, error) {
	hits := []types.VectorHit{}
	if len(resultSets) == 0 {
		return hits, nil
	}
	set := resultSets[0]
	if set.ResultCount == 0 || set.IDs == nil {
		return hits, nil
	}

	for i := 0; i < set.ResultCount; i++ {
		id, err := set.IDs.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("read id: %w", err)
		}
		hit := types.VectorHit{ID: id}
		if i < len(set.Scores) {
			hit.Score = float64(set.Scores[i])
		}

		meta := make(map[string]string, len(milvusVarcharFields))
		for _, name := range milvusVarcharFields {
			col := set.GetColumn(name)
			if col == nil || i >= col.Len() {
				continue
			}
			v, err := col.GetAsString(i)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			meta[name] = v
		}
		hit.Metadata = metadataFromMap(meta)

		if col := set.GetColumn(MetaTimestamp); col != nil && i < col.Len() {
			ts, err := col.GetAsInt64(i)
			if err != nil {
				return nil, fmt.Errorf("read timestamp: %w", err)
			}
			hit.Metadata.Timestamp = ts
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Upsert writes records into the shared collection
func (m *MilvusStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := m.ensureCollection(ctx); err != nil {
		return err
	}

	n := len(records)
	ids := make([]string, 0, n)
	vectors := make([][]float32, 0, n)
	contents := make([]string, 0, n)
	subjects := make([]string, 0, n)
	sessions := make([]string, 0, n)
	messages := make([]string, 0, n)
	roles := make([]string, 0, n)
	timestamps := make([]int64, 0, n)

	for _, r := range records {
		if len(r.Vector) != m.dimension {
			return fmt.Errorf("%w: record %s has %d dimensions, want %d", ErrInvalidVector, r.ID, len(r.Vector), m.dimension)
		}
		ids = append(ids, r.ID)
		vectors = append(vectors, r.Vector)
		contents = append(contents, r.Content)
		subjects = append(subjects, namespace)
		sessions = append(sessions, r.Metadata.SessionID)
		messages = append(messages, r.Metadata.MessageID)
		roles = append(roles, r.Metadata.Role)
		timestamps = append(timestamps, r.Metadata.Timestamp)
	}

	opt := client.NewColumnBasedInsertOption(m.collection).
		WithVarcharColumn(fieldID, ids).
		WithFloatVectorColumn(fieldEmbedding, m.dimension, vectors).
		WithVarcharColumn(fieldContent, contents).
		WithVarcharColumn(MetaSubjectID, subjects).
		WithVarcharColumn(MetaSessionID, sessions).
		WithVarcharColumn(MetaMessageID, messages).
		WithVarcharColumn(MetaRole, roles).
		WithInt64Column(MetaTimestamp, timestamps)

	if _, err := m.client.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("milvus upsert: %w", err)
	}

	logger.GetLogger(ctx).Infof("[Milvus] Upserted %d vectors for namespace=%s", n, namespace)
	return nil
}

// Close disconnects from Milvus
func (m *MilvusStore) Close() error {
	return m.client.Close(context.Background())
}
