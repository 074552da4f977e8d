// Package knowledge ties the embedder, the vector and graph stores, and the
// two caches into a single KnowledgeBase.
//
// Reads go through GetContext (semantic-cached assembly) and GetSession
// (frequency/recency-cached session records). Writes go through AddMessages,
// which drops the touched session from the session cache. The context cache
// is not invalidated on write; ClearCaches empties both.
package knowledge
