package storage

import (
	"context"
	"errors"

	"github.com/dshills/recall-mcp/pkg/types"
)

var (
	// ErrNotFound is returned when a requested session doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrSubjectMismatch is returned when writing to a session owned by another subject
	ErrSubjectMismatch = errors.New("session belongs to another subject")
)

// GraphStore persists the User/Session/Message graph and expands vector hits into sessions
type GraphStore interface {
	// EnsureSchema creates tables, indexes or constraints. Safe to call repeatedly.
	EnsureSchema(ctx context.Context) error

	// SaveMessages records the subject's participation in the session and upserts the messages
	SaveMessages(ctx context.Context, subjectID, sessionID string, msgs []types.StoredMessage) error

	// ExpandSessions returns, for every session owning one of the given vector IDs,
	// all of that session's messages ordered by timestamp
	ExpandSessions(ctx context.Context, vectorIDs []string) ([]types.SessionRecord, error)

	// GetSession returns a single session or ErrNotFound
	GetSession(ctx context.Context, sessionID string) (*types.SessionRecord, error)

	// ListSessions returns the IDs of sessions the subject participated in, most recently updated first
	ListSessions(ctx context.Context, subjectID string) ([]string, error)

	Close() error
}
