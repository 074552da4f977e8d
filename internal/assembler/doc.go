// Package assembler builds the context for a query by combining nearest-neighbor
// vector search with graph-based session expansion.
//
// # Pipeline
//
// For GetContext(subject, query, topK):
//  1. Derive the cache key and consult the semantic cache. A hit returns
//     immediately without touching the embedder or either store.
//  2. Embed the query.
//  3. Query the vector store for the subject's topK nearest messages.
//  4. Expand every hit into its full session through the graph store.
//  5. Merge: walk hits in similarity order and append each hit's whole session.
//  6. Cache the result (empty results included) and return it.
//
// Concurrent identical requests are coalesced so the backing stores see one call.
//
// # Errors
//
// Embedding, vector store and graph store failures fail the request and are
// reported as ErrEmbedding, ErrVectorStore and ErrGraphStore. A hit whose session
// has no expansion contributes nothing and is not an error.
package assembler
