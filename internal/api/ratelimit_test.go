package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinLimit(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 5; i++ {
		allowed, _ := rl.Allow("order", "1.2.3.4")
		assert.True(t, allowed)
	}

	allowed, remaining := rl.Allow("order", "1.2.3.4")
	assert.False(t, allowed)
	assert.Zero(t, remaining)
}

func TestAllowRemainingCountsDown(t *testing.T) {
	rl := NewRateLimiter()

	_, remaining := rl.Allow("order", "1.2.3.4")
	assert.Equal(t, 4, remaining)
	_, remaining = rl.Allow("order", "1.2.3.4")
	assert.Equal(t, 3, remaining)
}

func TestAllowIsolatesClientsAndClasses(t *testing.T) {
	rl := NewRateLimiter()

	for i := 0; i < 5; i++ {
		rl.Allow("order", "1.2.3.4")
	}

	// A different IP keeps its own budget
	allowed, _ := rl.Allow("order", "5.6.7.8")
	assert.True(t, allowed)

	// The same IP on another class is unaffected
	allowed, _ = rl.Allow("account", "1.2.3.4")
	assert.True(t, allowed)
}

func TestAllowWindowSlides(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	rl.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		rl.Allow("order", "1.2.3.4")
	}
	allowed, _ := rl.Allow("order", "1.2.3.4")
	assert.False(t, allowed)

	// Just past the window the oldest stamps fall off
	now = now.Add(61 * time.Second)
	allowed, remaining := rl.Allow("order", "1.2.3.4")
	assert.True(t, allowed)
	assert.Equal(t, 4, remaining)
}

func TestAllowUnknownClassUsesDefault(t *testing.T) {
	rl := NewRateLimiter()

	allowed, remaining := rl.Allow("pending", "1.2.3.4")
	assert.True(t, allowed)
	assert.Equal(t, defaultLimit-1, remaining)
}
