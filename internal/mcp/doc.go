// Package mcp implements the Model Context Protocol (MCP) server for recall.
//
// The server exposes a knowledge base of past conversations to AI assistants:
//   - get_context: retrieve sessions relevant to a query
//   - add_messages: store messages in a session
//   - get_session: read one session in full
//   - list_sessions: list a user's sessions
//   - cache_stats: report cache hit rates
//   - clear_cache: empty the caches
//
// # Transports
//
// stdio is the default and is what desktop MCP clients launch. sse and http
// (streamable HTTP) listen on an address for remote clients:
//
//	recall serve                              # stdio
//	recall serve --transport http --addr :8080
//
// Logging always goes to stderr so it never corrupts the stdio stream.
//
// # Tool: get_context
//
//	Request:
//	{
//	  "name": "get_context",
//	  "arguments": {"subject_id": "u1", "query": "what is my cat called?", "top_k": 5}
//	}
//
//	Response:
//	{
//	  "messages": [
//	    {"id": "…", "content": "my cat is called Miso", "role": "user", "timestamp": 1718000000000, "sessionId": "s1"},
//	    {"id": "…", "content": "nice name", "role": "assistant", "timestamp": 1718000000001, "sessionId": "s1"}
//	  ],
//	  "relatedSessions": ["s1"]
//	}
//
// Every message of each session that contains a hit is returned, in hit order.
// A session hit twice contributes its messages twice.
//
// # Tool: add_messages
//
//	Request:
//	{
//	  "name": "add_messages",
//	  "arguments": {
//	    "subject_id": "u1",
//	    "session_id": "s1",
//	    "messages": [
//	      {"content": "my cat is called Miso", "role": "user"},
//	      {"content": "nice name", "role": "assistant", "metadata": {"model": "x"}}
//	    ]
//	  }
//	}
//
//	Response:
//	{"subjectId": "u1", "sessionId": "s1", "messagesIndexed": 2, "batchesEmbedded": 1, "messageIds": ["…", "…"], "durationMs": 12}
//
// # Errors
//
// Failures are returned as MCPError with JSON-RPC style codes:
//   - -32602: invalid parameters (missing ids, empty query, bad role, top_k out of range)
//   - -32603: internal error
//   - -32001: session not found
//   - -32002: session belongs to another subject
//   - -32003: another ingest into the session is running
//   - -32004: embedding provider failed
//   - -32005: vector or graph store failed
package mcp
