package indexer

import "sync"

// sessionLocks provides non-blocking, per-session lock semantics so two
// ingests into the same session never interleave.
type sessionLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{held: make(map[string]struct{})}
}

// TryAcquire attempts to lock sessionID without blocking.
// Returns true if the lock was acquired, false if another ingest holds it.
func (l *sessionLocks) TryAcquire(sessionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[sessionID]; busy {
		return false
	}
	l.held[sessionID] = struct{}{}
	return true
}

// Release unlocks sessionID.
// Must only be called by the goroutine that successfully acquired it.
func (l *sessionLocks) Release(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, sessionID)
}
