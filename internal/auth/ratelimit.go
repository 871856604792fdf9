package auth

import (
	"fmt"
	"sync"
	"time"
)

// Login brute-force limits: 5 failures inside a 10 minute window block the
// key for 15 minutes.
const (
	rateLimitWindow      = 10 * time.Minute
	rateLimitMaxAttempts = 5
	rateLimitBlock       = 15 * time.Minute
)

// RateLimitedError carries the Retry-After value in seconds.
type RateLimitedError struct {
	RetryAfter int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfter)
}

type rateState struct {
	startedAt    time.Time
	attempts     int
	blockedUntil time.Time
}

// RateLimiter tracks failed login attempts per key in memory. Keys are
// per-email+IP and per-IP; state resets when the window lapses.
type RateLimiter struct {
	mu       sync.Mutex
	attempts map[string]*rateState
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{attempts: make(map[string]*rateState)}
}

// BlockedFor returns the remaining block in whole seconds, or 0 when the
// key may attempt a login. Expired windows are pruned on read.
func (rl *RateLimiter) BlockedFor(key string, now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	st, ok := rl.attempts[key]
	if !ok {
		return 0
	}
	if st.blockedUntil.After(now) {
		return int(st.blockedUntil.Sub(now).Seconds()) + 1
	}
	if now.Sub(st.startedAt) > rateLimitWindow {
		delete(rl.attempts, key)
	}
	return 0
}

// RegisterFailure counts a failed attempt and starts the block when the
// threshold is reached within the window.
func (rl *RateLimiter) RegisterFailure(key string, now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	st, ok := rl.attempts[key]
	if !ok || now.Sub(st.startedAt) > rateLimitWindow {
		rl.attempts[key] = &rateState{startedAt: now, attempts: 1}
		return
	}
	st.attempts++
	if st.attempts >= rateLimitMaxAttempts {
		st.blockedUntil = now.Add(rateLimitBlock)
	}
}

// Clear drops all state for a key after a successful login.
func (rl *RateLimiter) Clear(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.attempts, key)
}
