package httppresentation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiterPerKey(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Now()
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("user:1"))
	assert.True(t, rl.allow("user:1"))
	assert.False(t, rl.allow("user:1"))
	assert.True(t, rl.allow("user:2"))

	now = now.Add(time.Second)
	assert.True(t, rl.allow("user:1"))
}

func TestRateLimiterSweep(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.allow("ip:10.0.0.1")
	now = now.Add(5 * time.Minute)
	rl.allow("ip:10.0.0.2")
	now = now.Add(6 * time.Minute)

	assert.Equal(t, 1, rl.Sweep())
	assert.Len(t, rl.visitors, 1)
}
