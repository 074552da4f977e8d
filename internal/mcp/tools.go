package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/recall-mcp/internal/assembler"
	"github.com/dshills/recall-mcp/internal/embedder"
	"github.com/dshills/recall-mcp/internal/indexer"
	"github.com/dshills/recall-mcp/internal/logger"
	"github.com/dshills/recall-mcp/internal/storage"
	"github.com/dshills/recall-mcp/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeSessionNotFound  = -32001 // Session does not exist
	ErrorCodeSubjectMismatch  = -32002 // Session belongs to another subject
	ErrorCodeIngestInProgress = -32003 // Another ingest into the session is running
	ErrorCodeEmbeddingFailed  = -32004 // Embedding provider failed
	ErrorCodeBackingStore     = -32005 // Vector or graph store failed
)

// handleGetContext handles the get_context tool invocation
func (s *Server) handleGetContext(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	subjectID, err := requireString(args, "subject_id")
	if err != nil {
		return nil, err
	}
	query, err := requireString(args, "query")
	if err != nil {
		return nil, err
	}

	topK, ok := getIntDefault(args, "top_k", assembler.DefaultTopK)
	if !ok || topK < 1 || topK > assembler.MaxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("top_k must be between 1 and %d", assembler.MaxTopK), map[string]interface{}{
			"param": "top_k",
			"value": args["top_k"],
		})
	}

	ctx = logger.WithField(ctx, "subject_id", subjectID)
	result, err := s.kb.GetContext(ctx, subjectID, query, topK)
	if err != nil {
		return nil, toMCPError("get_context failed", err)
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleAddMessages handles the add_messages tool invocation
func (s *Server) handleAddMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	subjectID, err := requireString(args, "subject_id")
	if err != nil {
		return nil, err
	}
	sessionID, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}
	inputs, err := parseMessages(args["messages"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid messages", map[string]interface{}{
			"param":  "messages",
			"reason": err.Error(),
		})
	}

	ctx = logger.WithField(ctx, "subject_id", subjectID)
	stats, err := s.kb.AddMessages(ctx, subjectID, sessionID, inputs)
	if err != nil {
		return nil, toMCPError("add_messages failed", err)
	}

	response := map[string]interface{}{
		"subjectId":       stats.SubjectID,
		"sessionId":       stats.SessionID,
		"messagesIndexed": stats.MessagesIndexed,
		"batchesEmbedded": stats.BatchesEmbedded,
		"messageIds":      stats.MessageIDs,
		"durationMs":      stats.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// sessionResponse is the get_session payload; metadata is decoded back into JSON objects
type sessionResponse struct {
	SessionID string          `json:"sessionId"`
	SubjectID string          `json:"subjectId"`
	Messages  []types.Message `json:"messages"`
}

// handleGetSession handles the get_session tool invocation
func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	sessionID, err := requireString(args, "session_id")
	if err != nil {
		return nil, err
	}

	rec, err := s.kb.GetSession(ctx, sessionID)
	if err != nil {
		return nil, toMCPError("get_session failed", err)
	}

	response := sessionResponse{
		SessionID: rec.SessionID,
		SubjectID: rec.SubjectID,
		Messages:  make([]types.Message, 0, len(rec.Messages)),
	}
	for _, stored := range rec.Messages {
		msg, err := stored.Decode()
		if err != nil {
			logger.GetLogger(ctx).Warnf("[MCP] Message %s: %v", stored.ID, err)
		}
		response.Messages = append(response.Messages, msg)
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListSessions handles the list_sessions tool invocation
func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	subjectID, err := requireString(args, "subject_id")
	if err != nil {
		return nil, err
	}

	ids, err := s.kb.ListSessions(ctx, subjectID)
	if err != nil {
		return nil, toMCPError("list_sessions failed", err)
	}

	response := map[string]interface{}{
		"subjectId": subjectID,
		"sessions":  ids,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(s.kb.Stats())), nil
}

func (s *Server) handleClearCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.kb.ClearCaches(ctx)
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{"cleared": true})), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// invalidParamErrors are caller mistakes rather than server failures
var invalidParamErrors = []error{
	types.ErrEmptySubject,
	types.ErrEmptyQuery,
	types.ErrEmptySession,
	types.ErrInvalidTopK,
	types.ErrEmptyContent,
	types.ErrEmptyRole,
	types.ErrInvalidRole,
	types.ErrInvalidTimestamp,
	types.ErrInvalidMetadata,
}

// toMCPError maps a knowledge base failure onto an MCP error code
func toMCPError(message string, err error) error {
	data := map[string]interface{}{"error": err.Error()}

	for _, target := range invalidParamErrors {
		if errors.Is(err, target) {
			return newMCPError(ErrorCodeInvalidParams, message, data)
		}
	}

	switch {
	case errors.Is(err, storage.ErrNotFound):
		return newMCPError(ErrorCodeSessionNotFound, message, data)
	case errors.Is(err, storage.ErrSubjectMismatch):
		return newMCPError(ErrorCodeSubjectMismatch, message, data)
	case errors.Is(err, indexer.ErrSessionBusy):
		return newMCPError(ErrorCodeIngestInProgress, message, data)
	case errors.Is(err, assembler.ErrEmbedding), errors.Is(err, embedder.ErrProviderFailed), errors.Is(err, embedder.ErrDimensionMismatch):
		return newMCPError(ErrorCodeEmbeddingFailed, message, data)
	case errors.Is(err, assembler.ErrVectorStore), errors.Is(err, assembler.ErrGraphStore):
		return newMCPError(ErrorCodeBackingStore, message, data)
	default:
		return newMCPError(ErrorCodeInternalError, message, data)
	}
}

// requireString extracts a non-empty string parameter
func requireString(args map[string]interface{}, key string) (string, error) {
	val, ok := args[key].(string)
	if !ok || val == "" {
		return "", newMCPError(ErrorCodeInvalidParams, key+" parameter is required", map[string]interface{}{
			"param":  key,
			"reason": "missing or empty",
		})
	}
	return val, nil
}

// parseMessages converts the decoded JSON messages array into ingest inputs.
// Field validation beyond JSON types is left to the indexer.
func parseMessages(raw interface{}) ([]types.MessageInput, error) {
	items, ok := raw.([]interface{})
	if !ok || len(items) == 0 {
		return nil, errors.New("messages must be a non-empty array")
	}

	inputs := make([]types.MessageInput, 0, len(items))
	for i, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("message %d is not an object", i)
		}

		in := types.MessageInput{
			Content: getStringDefault(m, "content", ""),
			Role:    getStringDefault(m, "role", ""),
		}
		if ts, ok := m["timestamp"]; ok {
			f, ok := ts.(float64)
			if !ok || f != math.Trunc(f) {
				return nil, fmt.Errorf("message %d: timestamp must be an integer", i)
			}
			in.Timestamp = int64(f)
		}
		if meta, ok := m["metadata"]; ok && meta != nil {
			obj, ok := meta.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("message %d: metadata must be an object", i)
			}
			in.Metadata = obj
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value.
// ok is false when the value is present but not a whole number.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) (int, bool) {
	raw, present := args[key]
	if !present || raw == nil {
		return defaultValue, true
	}
	switch val := raw.(type) {
	case float64:
		if val != math.Trunc(val) || math.IsInf(val, 0) {
			return 0, false
		}
		return int(val), true
	case int:
		return val, true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
