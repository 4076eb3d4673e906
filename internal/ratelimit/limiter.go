// Package ratelimit provides a thread-safe fixed-window rate limiter keyed
// by an arbitrary string. The window resets rather than slides: bursts of
// up to twice the limit are possible across a window boundary. Callers
// depend on that exact boundary behavior, so it is preserved deliberately.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks one logical window per key. Mutual exclusion is scoped to
// a single key, never global, so unrelated keys do not contend.
type Limiter struct {
	window time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry

	stopOnce sync.Once
	stop     chan struct{}
}

type entry struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
	evicted     bool
}

// NewLimiter creates a limiter with the given window length. The caller
// must invoke StartSweeper (or Stop at shutdown) if background eviction of
// idle keys is wanted.
func NewLimiter(window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		window:  window,
		now:     time.Now,
		entries: make(map[string]*entry),
		stop:    make(chan struct{}),
	}
}

// TryConsume charges one slot against key's window. It returns false, and
// does not increment, once count has reached limit for the current window.
// Slots are charged on attempt, not completion, and are never refunded.
func (l *Limiter) TryConsume(key string, limit int) bool {
	for {
		e := l.lookup(key)

		e.mu.Lock()
		if e.evicted {
			// A sweep removed this entry between lookup and lock.
			// The map no longer holds it; retry to recreate.
			e.mu.Unlock()
			continue
		}
		now := l.now()
		if now.Sub(e.windowStart) > l.window {
			e.windowStart = now
			e.count = 0
		}
		if e.count >= limit {
			e.mu.Unlock()
			return false
		}
		e.count++
		e.mu.Unlock()
		return true
	}
}

// RetryAfter returns the caller-facing retry hint for a denial.
func (l *Limiter) RetryAfter() time.Duration {
	return l.window
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Limiter) lookup(key string) *entry {
	l.mu.RLock()
	e, ok := l.entries[key]
	l.mu.RUnlock()
	if ok {
		return e
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[key]; ok {
		return e
	}
	e = &entry{windowStart: l.now()}
	l.entries[key] = e
	return e
}

// StartSweeper launches a background goroutine that evicts idle keys every
// window length, bounding memory to active keys only.
func (l *Limiter) StartSweeper() {
	go func() {
		ticker := time.NewTicker(l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Sweep()
			case <-l.stop:
				return
			}
		}
	}()
}

// Sweep removes every key whose window is older than twice the window
// length. Entries are flagged under their own lock before removal so an
// in-flight TryConsume never loses an increment: it either completes
// before eviction or observes the flag and recreates the entry.
func (l *Limiter) Sweep() {
	cutoff := 2 * l.window
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, e := range l.entries {
		e.mu.Lock()
		if now.Sub(e.windowStart) > cutoff {
			e.evicted = true
			delete(l.entries, key)
		}
		e.mu.Unlock()
	}
}

// Stop terminates the sweeper goroutine. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stop)
	})
}
