package types

// VectorHit is a single nearest-neighbor match returned by a vector store
type VectorHit struct {
	ID       string
	Score    float64 // Higher is more similar
	Metadata HitMetadata
}

// HitMetadata is the payload stored alongside each message vector
type HitMetadata struct {
	SubjectID string
	SessionID string
	MessageID string
	Role      string
	Timestamp int64
}

// ContextMessage is a message annotated with the session it belongs to
type ContextMessage struct {
	Message
	SessionID string `json:"sessionId"`
}

// ContextResult is the assembled answer to a context request.
// Both slices are non-nil so the JSON form always carries arrays.
type ContextResult struct {
	Messages        []ContextMessage `json:"messages"`
	RelatedSessions []string         `json:"relatedSessions"`
}

// NewContextResult returns an empty result
func NewContextResult() *ContextResult {
	return &ContextResult{
		Messages:        []ContextMessage{},
		RelatedSessions: []string{},
	}
}

// Clone returns a deep copy so cached results cannot be mutated through returned values
func (r *ContextResult) Clone() *ContextResult {
	if r == nil {
		return nil
	}
	out := &ContextResult{
		Messages:        make([]ContextMessage, len(r.Messages)),
		RelatedSessions: make([]string, len(r.RelatedSessions)),
	}
	copy(out.RelatedSessions, r.RelatedSessions)
	for i, m := range r.Messages {
		m.Metadata = cloneMap(m.Metadata)
		out.Messages[i] = m
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		s := make([]any, len(val))
		for i := range val {
			s[i] = cloneValue(val[i])
		}
		return s
	default:
		return v
	}
}
