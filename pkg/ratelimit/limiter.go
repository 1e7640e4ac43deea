// Package ratelimit provides injectable fixed-window request limiters. The
// process-local limiter covers single-instance deployments; the Redis-backed
// one shares state across instances without changing call sites.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultLimit and DefaultWindow match the webhook receiver's contract of
// 100 requests per minute per client key.
const (
	DefaultLimit  = 100
	DefaultWindow = time.Minute
)

type window struct {
	count   int
	startAt time.Time
}

// MemoryLimiter is a process-local fixed-window counter. State resets with
// process recycling, which is an accepted approximation for this workload.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryLimiter constructs a limiter allowing limit requests per window.
// Non-positive arguments fall back to the defaults.
func NewMemoryLimiter(limit int, windowDur time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowDur <= 0 {
		windowDur = DefaultWindow
	}
	return &MemoryLimiter{
		limit:   limit,
		window:  windowDur,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// Allow counts one request against key's current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.Sub(w.startAt) >= l.window {
		l.windows[key] = &window{count: 1, startAt: now}
		return true, 0, nil
	}

	w.count++
	if w.count > l.limit {
		retryAfter := l.window - now.Sub(w.startAt)
		return false, retryAfter, nil
	}
	return true, 0, nil
}

// Reset clears all windows. Exposed for tests and for explicit lifecycle
// control when the limiter is rebuilt with new settings.
func (l *MemoryLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = make(map[string]*window)
}
