// Package vectorstore persists message embeddings and answers nearest-neighbor
// queries scoped to a subject namespace.
package vectorstore

import (
	"context"
	"errors"
	"strconv"

	"github.com/dshills/recall-mcp/pkg/types"
)

// Metadata keys stored with every vector
const (
	MetaSubjectID = "subject_id"
	MetaSessionID = "session_id"
	MetaMessageID = "message_id"
	MetaRole      = "role"
	MetaTimestamp = "timestamp"
)

var (
	// ErrInvalidVector is returned for empty or wrongly sized vectors
	ErrInvalidVector = errors.New("invalid vector")
	// ErrUnsupportedFilter is returned for filter keys the backend cannot evaluate
	ErrUnsupportedFilter = errors.New("unsupported filter")
)

// Record is a message vector to be stored
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata types.HitMetadata
}

// QueryRequest asks for the TopK nearest vectors within Namespace.
// Filter entries must all match the stored metadata exactly.
type QueryRequest struct {
	Namespace string
	Vector    []float32
	TopK      int
	Filter    map[string]string
}

// Store is a namespaced vector index
type Store interface {
	// Query returns hits ordered by descending similarity
	Query(ctx context.Context, req QueryRequest) ([]types.VectorHit, error)
	// Upsert inserts or replaces records in namespace
	Upsert(ctx context.Context, namespace string, records []Record) error
	Close() error
}

// SubjectFilter is the standard filter restricting hits to one subject
func SubjectFilter(subjectID string) map[string]string {
	return map[string]string{MetaSubjectID: subjectID}
}

func metadataToMap(m types.HitMetadata) map[string]string {
	return map[string]string{
		MetaSubjectID: m.SubjectID,
		MetaSessionID: m.SessionID,
		MetaMessageID: m.MessageID,
		MetaRole:      m.Role,
		MetaTimestamp: strconv.FormatInt(m.Timestamp, 10),
	}
}

func metadataFromMap(m map[string]string) types.HitMetadata {
	ts, _ := strconv.ParseInt(m[MetaTimestamp], 10, 64)
	return types.HitMetadata{
		SubjectID: m[MetaSubjectID],
		SessionID: m[MetaSessionID],
		MessageID: m[MetaMessageID],
		Role:      m[MetaRole],
		Timestamp: ts,
	}
}
