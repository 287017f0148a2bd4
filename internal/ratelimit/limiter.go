// Package ratelimit implements a sliding-window request limiter for the
// flash-loan API, keyed by caller identity (client IP). It protects the
// pool from loan-spam; it carries no economic meaning.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter allows at most PerMinute requests per identifier within any
// rolling 60-second window. Safe for concurrent use.
type Limiter struct {
	mu        sync.Mutex
	perMinute int
	requests  map[string][]time.Time

	// now is swappable for tests.
	now func() time.Time
}

// New creates a limiter allowing perMinute requests per identifier.
func New(perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	return &Limiter{
		perMinute: perMinute,
		requests:  make(map[string][]time.Time),
		now:       time.Now,
	}
}

// Allow reports whether a request from identifier is within the limit,
// and records it if so.
func (l *Limiter) Allow(identifier string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-time.Minute)

	kept := l.requests[identifier][:0]
	for _, t := range l.requests[identifier] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.perMinute {
		l.requests[identifier] = kept
		return false
	}

	l.requests[identifier] = append(kept, now)
	return true
}
