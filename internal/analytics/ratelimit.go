package analytics

import (
	"sync"

	"golang.org/x/time/rate"
)

// IngestLimiter bounds ingestion throughput per session (or per client IP
// when no session key is usable). It never blocks: a request is admitted or
// rejected immediately, since tracking calls are fire-and-forget for the
// caller.
type IngestLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewIngestLimiter creates a limiter allowing eventsPerSec sustained events
// per key with the given burst.
func NewIngestLimiter(eventsPerSec float64, burst int) *IngestLimiter {
	return &IngestLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(eventsPerSec),
		burst:    burst,
	}
}

// Allow reports whether an event for key may proceed right now.
func (l *IngestLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

func (l *IngestLimiter) get(key string) *rate.Limiter {
	l.mu.RLock()
	limiter, ok := l.limiters[key]
	l.mu.RUnlock()
	if ok {
		return limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if limiter, ok = l.limiters[key]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(l.limit, l.burst)
	l.limiters[key] = limiter
	return limiter
}

// Reset drops all per-key state. Called periodically to bound memory.
func (l *IngestLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.limiters = make(map[string]*rate.Limiter)
}

// Len returns the number of tracked keys.
func (l *IngestLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limiters)
}
