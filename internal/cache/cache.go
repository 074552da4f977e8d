package cache

import (
	"errors"
	"time"
)

// Errors returned by the cache constructors
var (
	ErrInvalidCapacity  = errors.New("cache capacity must be positive")
	ErrInvalidDimension = errors.New("embedding dimension must be positive")
	ErrNilEmbedder      = errors.New("embedder is required")
)

// Stats is a point-in-time snapshot of a cache's counters
type Stats struct {
	Hits               int64   `json:"hits"`
	Misses             int64   `json:"misses"`
	Size               int     `json:"size"`
	Capacity           int     `json:"capacity"`
	HitRate            float64 `json:"hitRate"`
	Evictions          int64   `json:"evictions"`
	EmbeddingFallbacks int64   `json:"embeddingFallbacks,omitempty"`
}

// counters are guarded by the owning cache's mutex
type counters struct {
	hits      int64
	misses    int64
	evictions int64
}

func (c *counters) snapshot(size, capacity int) Stats {
	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Size:      size,
		Capacity:  capacity,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

type options struct {
	now func() time.Time
}

// Option configures a cache
type Option func(*options)

// WithClock replaces time.Now as the cache's time source
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
