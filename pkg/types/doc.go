// Package types provides shared type definitions for the recall MCP server.
//
// # Messages
//
// Message is the caller-facing form of a conversation turn. StoredMessage is
// the form held by the graph store, with metadata still serialized:
//
//	msg, err := stored.Decode()
//	if err != nil {
//	    // metadata was malformed and has been dropped; msg is still usable
//	}
//
// Timestamps are Unix milliseconds throughout.
//
// # Context Results
//
// ContextResult carries the ordered messages assembled for a query and the
// de-duplicated list of sessions they came from:
//
//	{
//	  "messages": [{"id": "m1", "content": "hi", "role": "user", "timestamp": 100, "sessionId": "s1"}],
//	  "relatedSessions": ["s1"]
//	}
//
// Results handed out of a cache are always Clone()d first.
package types
