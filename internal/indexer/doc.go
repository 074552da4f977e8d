// Package indexer ingests conversation messages into the graph and vector stores.
//
// # Basic Usage
//
//	idx := indexer.New(embedder, vectors, graph, nil)
//
//	stats, err := idx.IndexMessages(ctx, "user-1", "session-1", []types.MessageInput{
//	    {Content: "hi", Role: types.RoleUser},
//	    {Content: "hello!", Role: types.RoleAssistant},
//	})
//
//	fmt.Printf("Indexed %d messages in %v\n", stats.MessagesIndexed, stats.Duration)
//
// # Pipeline
//
//  1. Validate: every input is checked before anything is written
//  2. Identify: message and vector IDs are assigned (UUIDv4)
//  3. Embed: messages are embedded in concurrent batches
//  4. Graph: subject, session and messages are written in one transaction
//  5. Vectors: embeddings are upserted into the subject's namespace
//
// The graph is written before the vectors so every searchable vector already
// has a session to expand into.
//
// # Concurrency
//
// Embedding batches run concurrently, bounded by Config.Workers. Ingests into
// different sessions proceed in parallel; a second ingest into a session that is
// already being written fails fast with ErrSessionBusy.
package indexer
