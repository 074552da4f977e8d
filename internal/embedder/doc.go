// Package embedder turns message and query text into fixed-dimension vectors.
//
// Four providers are available: Jina AI, OpenAI (or any OpenAI-compatible
// endpoint), Ollama, and a deterministic local provider that needs no network.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "openai",
//	    APIKey:    os.Getenv("OPENAI_API_KEY"),
//	    Dimension: 1536,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer emb.Close()
//
//	vec, err := embedder.Embed(ctx, emb, "where did we leave the invoice?")
//
// Embed also checks that the vector length matches Dimension(); a mismatch is
// reported as ErrDimensionMismatch.
//
// # Provider Selection
//
// When Config.Provider is empty the provider is detected from the environment:
//
//  1. JINA_API_KEY set → Jina AI
//  2. OPENAI_API_KEY set → OpenAI
//  3. otherwise → local
//
// # Caching
//
// Every provider shares an LRU cache keyed by model and content hash. Batch
// requests only send the texts that miss the cache. Cached vectors are copied
// on the way in and out.
//
// # Error Handling
//
// Transient failures are retried with exponential backoff. Client errors
// (4xx other than 429) are not retried:
//
//	if errors.Is(err, embedder.ErrProviderFailed) {
//	    // provider unavailable or rejected the request
//	}
package embedder
