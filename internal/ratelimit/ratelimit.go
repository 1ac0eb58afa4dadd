// Package ratelimit implements per-key sliding window admission control for
// inbound chat, keyed as "platform:channel:user".
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks call timestamps per key inside a rolling window.
// Safe for concurrent use; a single mutex covers the key map, which is
// plenty for chat-scale traffic.
type Limiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	seen   map[string][]time.Time
}

// New creates a limiter allowing max calls per key within window.
func New(window time.Duration, max int) *Limiter {
	return &Limiter{
		window: window,
		max:    max,
		seen:   make(map[string][]time.Time),
	}
}

// Allow records a call for key at now and reports whether it fits in the
// window. Old entries are trimmed on every call, so the stored slice never
// outgrows max+1 for an active key.
func (l *Limiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.seen[key][:0]
	for _, t := range l.seen[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	l.seen[key] = kept
	return len(kept) <= l.max
}

// Sweep drops keys whose newest entry fell out of the window, bounding
// memory for long-running processes with churning chatters.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	removed := 0
	for key, stamps := range l.seen {
		if len(stamps) == 0 || !stamps[len(stamps)-1].After(cutoff) {
			delete(l.seen, key)
			removed++
		}
	}
	return removed
}

// Keys returns the number of tracked keys, for tests and diagnostics.
func (l *Limiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// RunSweeper clears stale keys every interval until stop is closed.
func (l *Limiter) RunSweeper(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			l.Sweep(now)
		}
	}
}
