package cache

import (
	"fmt"
	"sync"
	"time"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Eviction weights for HybridCache
const (
	FrequencyWeight = 0.6
	RecencyWeight   = 0.4
)

type hybridEntry[T any] struct {
	payload        T
	accessCount    int64
	createdAt      time.Time
	lastAccessedAt time.Time
}

// HybridCache evicts by a blend of access frequency and recency, both
// normalised against the current maximum across entries.
type HybridCache[T any] struct {
	mu       sync.Mutex
	entries  *orderedmap.OrderedMap[string, *hybridEntry[T]]
	capacity int
	now      func() time.Time

	counters
}

// NewHybridCache creates a cache holding at most capacity entries
func NewHybridCache[T any](capacity int, opts ...Option) (*HybridCache[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	o := buildOptions(opts)
	return &HybridCache[T]{
		entries:  orderedmap.New[string, *hybridEntry[T]](),
		capacity: capacity,
		now:      o.now,
	}, nil
}

// Get returns the payload for key, counting the access
func (c *HybridCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(key)
	if !ok {
		c.misses++
		var zero T
		return zero, false
	}

	entry.accessCount++
	entry.lastAccessedAt = c.now()
	c.hits++
	return entry.payload, true
}

// Set stores payload under key. Replacing an existing key keeps its access count.
func (c *HybridCache[T]) Set(key string, payload T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if existing, ok := c.entries.Get(key); ok {
		existing.payload = payload
		existing.lastAccessedAt = now
		return
	}

	if c.entries.Len() >= c.capacity {
		c.evictOne(now)
	}

	c.entries.Set(key, &hybridEntry[T]{
		payload:        payload,
		accessCount:    1,
		createdAt:      now,
		lastAccessedAt: now,
	})
}

// evictOne removes the entry with the lowest hybrid score. Caller holds c.mu.
func (c *HybridCache[T]) evictOne(now time.Time) {
	var maxCount int64
	var maxAge time.Duration
	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value.accessCount > maxCount {
			maxCount = pair.Value.accessCount
		}
		if age := ageOf(pair.Value, now); age > maxAge {
			maxAge = age
		}
	}

	var victim string
	var lowest float64
	found := false

	for pair := c.entries.Oldest(); pair != nil; pair = pair.Next() {
		entry := pair.Value
		frequency := 0.0
		if maxCount > 0 {
			frequency = float64(entry.accessCount) / float64(maxCount)
		}
		recency := 1.0
		if maxAge > 0 {
			recency = 1 - float64(ageOf(entry, now))/float64(maxAge)
		}
		score := FrequencyWeight*frequency + RecencyWeight*recency
		if !found || score < lowest {
			victim, lowest, found = pair.Key, score, true
		}
	}

	if found {
		c.entries.Delete(victim)
		c.evictions++
	}
}

func ageOf[T any](e *hybridEntry[T], now time.Time) time.Duration {
	age := now.Sub(e.lastAccessedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Delete removes key, reporting whether it was present
func (c *HybridCache[T]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries.Delete(key)
	return ok
}

// Clear removes every entry. Counters are kept.
func (c *HybridCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = orderedmap.New[string, *hybridEntry[T]]()
}

// Len returns the number of cached entries
func (c *HybridCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Stats returns a snapshot of the cache counters
func (c *HybridCache[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(c.entries.Len(), c.capacity)
}
