package types

import "errors"

// Domain errors for type validation
var (
	// Request errors
	ErrEmptySubject = errors.New("subject ID cannot be empty")
	ErrEmptyQuery   = errors.New("query text cannot be empty")
	ErrEmptySession = errors.New("session ID cannot be empty")
	ErrInvalidTopK  = errors.New("topK out of range")

	// Message errors
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrEmptyRole        = errors.New("role cannot be empty")
	ErrInvalidRole      = errors.New("invalid role")
	ErrInvalidTimestamp = errors.New("timestamp must be >= 0")
	ErrInvalidMetadata  = errors.New("invalid metadata")
)
