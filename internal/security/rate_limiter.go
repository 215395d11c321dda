package security

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jvconnected/camera-engine/internal/logging"
)

// ClientLimiter tracks the token bucket for one connected control API
// client (SPEC_FULL.md §6: each WebSocket connection is rate limited
// independently so one noisy client cannot starve another).
type ClientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// ClientRateLimiter enforces a per-client requests-per-second budget on
// the control API, configured from config.APIConfig.RateLimitRPS.
type ClientRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*ClientLimiter
	rps     float64
	burst   int
	logger  *logging.Logger
}

// NewClientRateLimiter builds a ClientRateLimiter. rps <= 0 disables the
// limit (Allow always returns true), which lets the server run unthrottled
// in tests and local development.
func NewClientRateLimiter(rps int, logger *logging.Logger) *ClientRateLimiter {
	if logger == nil {
		logger = logging.GetLogger("rate-limiter")
	}
	burst := rps * 2
	if burst < 1 {
		burst = 1
	}
	return &ClientRateLimiter{
		clients: make(map[string]*ClientLimiter),
		rps:     float64(rps),
		burst:   burst,
		logger:  logger,
	}
}

// Allow reports whether clientID may issue another request right now,
// consuming a token from its bucket if so.
func (rl *ClientRateLimiter) Allow(clientID string) bool {
	if rl.rps <= 0 {
		return true
	}

	rl.mu.Lock()
	cl, exists := rl.clients[clientID]
	if !exists {
		cl = &ClientLimiter{limiter: rate.NewLimiter(rate.Limit(rl.rps), rl.burst)}
		rl.clients[clientID] = cl
	}
	cl.lastAccess = time.Now()
	rl.mu.Unlock()

	allowed := cl.limiter.Allow()
	if !allowed {
		rl.logger.WithFields(logging.Fields{
			"client_id": clientID,
			"rps":       rl.rps,
		}).Warn("client exceeded rate limit")
	}
	return allowed
}

// Forget removes a client's bucket, freeing memory once it disconnects.
func (rl *ClientRateLimiter) Forget(clientID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.clients, clientID)
}

// CleanupIdle removes buckets for clients that have not issued a request
// in longer than maxAge, bounding memory use for a long-running server
// with many short-lived connections.
func (rl *ClientRateLimiter) CleanupIdle(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for id, cl := range rl.clients {
		if now.Sub(cl.lastAccess) > maxAge {
			delete(rl.clients, id)
		}
	}
}
