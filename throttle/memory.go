package throttle

import (
	"context"
	"sync"
	"time"

	auth "github.com/txnjournal/go-txn-auth"
)

type window struct {
	count   int
	expires time.Time
}

// MemoryLimiter is the single process variant of RedisLimiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	windows map[string]*window
	now     func() time.Time
}

var _ auth.AttemptLimiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an in-process limiter.
func NewMemoryLimiter(limit int, d time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = 5
	}
	if d <= 0 {
		d = 15 * time.Minute
	}
	return &MemoryLimiter{limit: limit, window: d, windows: map[string]*window{}, now: time.Now}
}

// WithClock injects a custom clock (useful for tests).
func (m *MemoryLimiter) WithClock(clock func() time.Time) *MemoryLimiter {
	if clock != nil {
		m.now = clock
	}
	return m
}

// Allow implements auth.AttemptLimiter.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.expires) {
		w = &window{expires: now.Add(m.window)}
		m.windows[key] = w
	}
	w.count++
	return w.count <= m.limit, nil
}
