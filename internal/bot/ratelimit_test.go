package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSubmitLimiterBurst(t *testing.T) {
	l := newSubmitLimiter(1, 2)

	assert.True(t, l.Allow(1))
	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))

	// Another user has an independent bucket.
	assert.True(t, l.Allow(2))
}

func TestSubmitLimiterDefaults(t *testing.T) {
	l := newSubmitLimiter(0, 0)
	assert.Equal(t, float64(3), l.rate)
	assert.Equal(t, float64(3), l.burst)
}

func TestSubmitLimiterRefill(t *testing.T) {
	l := newSubmitLimiter(60, 1)

	assert.True(t, l.Allow(1))
	assert.False(t, l.Allow(1))

	// Rewind the bucket clock instead of sleeping: at 60/min one token
	// refills in a second.
	l.mu.Lock()
	l.buckets[1].lastTime = l.buckets[1].lastTime.Add(-2 * time.Second)
	l.mu.Unlock()

	assert.True(t, l.Allow(1))
}
