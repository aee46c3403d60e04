package bot

import (
	"sync"
	"time"
)

// submitLimiter is a per-user token bucket guarding booking submissions.
type submitLimiter struct {
	rate  float64 // tokens per minute
	burst float64

	mu      sync.Mutex
	buckets map[int64]*bucket
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

func newSubmitLimiter(perMinute float64, burst int) *submitLimiter {
	if perMinute <= 0 {
		perMinute = 3
	}
	if burst <= 0 {
		burst = 3
	}
	return &submitLimiter{
		rate:    perMinute,
		burst:   float64(burst),
		buckets: make(map[int64]*bucket),
	}
}

// Allow consumes one token for the user if available.
func (l *submitLimiter) Allow(userID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b := l.buckets[userID]
	if b == nil {
		b = &bucket{tokens: l.burst, lastTime: now}
		l.buckets[userID] = b
	}

	elapsed := now.Sub(b.lastTime).Minutes()
	b.tokens += elapsed * l.rate
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
