// Package cache provides the two bounded in-memory caches used for context
// retrieval, plus the key derivation for context requests.
//
// SemanticCache stores query results under an exact key and remembers the
// embedding of the query text. When full, it scores every entry against the
// incoming query:
//
//	score = cosine(incoming, entry) - 0.2 * daysSinceLastAccess
//
// and evicts the lowest. A query unlike anything cached pushes out the entry
// it is least related to, unless an older entry has gone stale first.
//
// HybridCache is a general-purpose cache scored by
//
//	score = 0.6 * count/maxCount + 0.4 * (1 - age/maxAge)
//
// where age is time since last access. It fronts session lookups.
//
// Both caches evict exactly one entry before an insert that would exceed
// capacity, break score ties by insertion order, and are safe for
// concurrent use. Payloads are returned as stored; callers that hand out
// mutable payloads should copy them.
package cache
