package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/recall-mcp/internal/assembler"
	"github.com/dshills/recall-mcp/internal/indexer"
)

// getContextTool returns the tool definition for get_context
func getContextTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_context",
		Description: "Retrieve past conversation messages relevant to a query, expanded to their full sessions",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"subject_id": map[string]interface{}{
					"type":        "string",
					"description": "User whose history is searched",
				},
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language query",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of nearest messages used to pick sessions",
					"default":     assembler.DefaultTopK,
					"minimum":     1,
					"maximum":     assembler.MaxTopK,
				},
			},
			Required: []string{"subject_id", "query"},
		},
	}
}

// addMessagesTool returns the tool definition for add_messages
func addMessagesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "add_messages",
		Description: "Store conversation messages in a session so they can be recalled later",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"subject_id": map[string]interface{}{
					"type":        "string",
					"description": "User the session belongs to",
				},
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Conversation session identifier; created on first use",
				},
				"messages": map[string]interface{}{
					"type":        "array",
					"description": "Messages in conversation order",
					"minItems":    1,
					"maxItems":    indexer.MaxMessagesPerCall,
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"content": map[string]interface{}{
								"type": "string",
							},
							"role": map[string]interface{}{
								"type": "string",
								"enum": []string{"user", "assistant", "system"},
							},
							"timestamp": map[string]interface{}{
								"type":        "integer",
								"description": "Unix milliseconds; defaults to now",
								"minimum":     0,
							},
							"metadata": map[string]interface{}{
								"type":        "object",
								"description": "Arbitrary JSON attributes stored with the message",
							},
						},
						"required": []string{"content", "role"},
					},
				},
			},
			Required: []string{"subject_id", "session_id", "messages"},
		},
	}
}

// getSessionTool returns the tool definition for get_session
func getSessionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_session",
		Description: "Return every message of a conversation session in timestamp order",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": map[string]interface{}{
					"type":        "string",
					"description": "Session identifier",
				},
			},
			Required: []string{"session_id"},
		},
	}
}

// listSessionsTool returns the tool definition for list_sessions
func listSessionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_sessions",
		Description: "List a user's session IDs, most recently updated first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"subject_id": map[string]interface{}{
					"type":        "string",
					"description": "User identifier",
				},
			},
			Required: []string{"subject_id"},
		},
	}
}

func cacheStatsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "cache_stats",
		Description: "Report hit/miss statistics for the context and session caches",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func clearCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_cache",
		Description: "Empty the context and session caches; statistics counters are kept",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
