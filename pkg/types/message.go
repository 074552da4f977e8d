package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Conversation roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single conversation turn as returned to callers
type Message struct {
	ID        string         `json:"id"`
	VectorID  string         `json:"vectorId,omitempty"`
	Content   string         `json:"content"`
	Role      string         `json:"role"`
	Timestamp int64          `json:"timestamp"` // Unix milliseconds
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StoredMessage is a message as persisted in the graph store.
// Metadata is kept in its serialized JSON form until it is merged into a result.
type StoredMessage struct {
	ID        string
	VectorID  string
	SessionID string
	Content   string
	Role      string
	Timestamp int64
	Metadata  string
}

// Decode converts a stored message into its caller-facing form.
// The returned message is always usable; a non-nil error reports that the
// serialized metadata could not be parsed and was dropped.
func (m StoredMessage) Decode() (Message, error) {
	msg := Message{
		ID:        m.ID,
		VectorID:  m.VectorID,
		Content:   m.Content,
		Role:      m.Role,
		Timestamp: m.Timestamp,
	}
	if m.Metadata == "" {
		return msg, nil
	}

	var meta map[string]any
	if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	msg.Metadata = meta
	return msg, nil
}

// SessionRecord is a conversation session with its messages in timestamp order
type SessionRecord struct {
	SessionID string
	SubjectID string
	Messages  []StoredMessage
}

// Clone returns a deep copy of the session record
func (s *SessionRecord) Clone() *SessionRecord {
	if s == nil {
		return nil
	}
	msgs := make([]StoredMessage, len(s.Messages))
	copy(msgs, s.Messages)
	return &SessionRecord{
		SessionID: s.SessionID,
		SubjectID: s.SubjectID,
		Messages:  msgs,
	}
}

// MessageInput is a message submitted for ingestion
type MessageInput struct {
	Content   string
	Role      string
	Timestamp int64 // Unix milliseconds; zero means "now"
	Metadata  map[string]any
}

// Validate checks that the input can be stored
func (m *MessageInput) Validate() error {
	if m.Content == "" {
		return ErrEmptyContent
	}
	switch m.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	case "":
		return ErrEmptyRole
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, m.Role)
	}
	if m.Timestamp < 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

// EncodeMetadata serializes metadata for storage. Nil or empty metadata encodes to "".
func EncodeMetadata(meta map[string]any) (string, error) {
	if len(meta) == 0 {
		return "", nil
	}
	b, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return string(b), nil
}

// NowMillis returns the current time in Unix milliseconds
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
