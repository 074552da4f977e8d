// Package storage persists the conversation graph: subjects (users), sessions
// and messages, linked by PARTICIPATED_IN, PART_OF and AUTHORED edges.
//
// Two GraphStore implementations are provided:
//   - SQLiteStore: embedded, relational rendering of the graph (default)
//   - Neo4jStore: native property graph
//
// # SQLite Schema
//
// Tables:
//   - users: one row per subject
//   - sessions: session ownership and update time
//   - participations: PARTICIPATED_IN edges
//   - messages: content, role, timestamp, serialized metadata and the vector_id
//     linking each message to its embedding in the vector store
//
// Migrations are versioned with semver and applied on open.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite and needs no C compiler. Building with
// the sqlite_cgo tag switches to github.com/mattn/go-sqlite3:
//
//	CGO_ENABLED=1 go build -tags sqlite_cgo ./...
//
// # Session Expansion
//
// ExpandSessions is the graph half of context assembly. Given the vector IDs of
// nearest-neighbor hits it returns every session owning one of them, each with its
// full message list in timestamp order:
//
//	records, err := store.ExpandSessions(ctx, []string{"v1", "v2"})
//	for _, rec := range records {
//	    fmt.Println(rec.SessionID, len(rec.Messages))
//	}
//
// Vector IDs that match no message are ignored.
package storage
