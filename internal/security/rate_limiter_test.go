package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClientRateLimiter_AllowsWithinBurst(t *testing.T) {
	rl := NewClientRateLimiter(5, nil)
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("client-1"))
	}
}

func TestClientRateLimiter_BlocksOverBurst(t *testing.T) {
	rl := NewClientRateLimiter(1, nil)
	allowedCount := 0
	for i := 0; i < 10; i++ {
		if rl.Allow("client-1") {
			allowedCount++
		}
	}
	assert.Less(t, allowedCount, 10)
}

func TestClientRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := NewClientRateLimiter(1, nil)
	for i := 0; i < 2; i++ {
		rl.Allow("client-1")
	}
	// client-1's burst may be exhausted; client-2 starts fresh.
	assert.True(t, rl.Allow("client-2"))
}

func TestClientRateLimiter_ZeroRPSDisablesLimit(t *testing.T) {
	rl := NewClientRateLimiter(0, nil)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("client-1"))
	}
}

func TestClientRateLimiter_ForgetDropsBucket(t *testing.T) {
	rl := NewClientRateLimiter(1, nil)
	rl.Allow("client-1")
	rl.Forget("client-1")

	rl.mu.Lock()
	_, exists := rl.clients["client-1"]
	rl.mu.Unlock()
	assert.False(t, exists)
}

func TestClientRateLimiter_CleanupIdleRemovesStale(t *testing.T) {
	rl := NewClientRateLimiter(1, nil)
	rl.Allow("client-1")

	rl.mu.Lock()
	rl.clients["client-1"].lastAccess = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.CleanupIdle(time.Minute)

	rl.mu.Lock()
	_, exists := rl.clients["client-1"]
	rl.mu.Unlock()
	assert.False(t, exists)
}
