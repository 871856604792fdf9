package auth

import (
	"testing"
	"time"
)

func TestRateLimiterBlocksAfterMaxAttempts(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	key := "email:a@b.c|ip:1.2.3.4"

	for i := 0; i < rateLimitMaxAttempts-1; i++ {
		rl.RegisterFailure(key, now)
		if retry := rl.BlockedFor(key, now); retry != 0 {
			t.Fatalf("attempt %d should not block, got retry=%d", i+1, retry)
		}
	}
	rl.RegisterFailure(key, now)
	retry := rl.BlockedFor(key, now)
	if retry <= 0 {
		t.Fatalf("expected block after %d attempts", rateLimitMaxAttempts)
	}
	if retry > int(rateLimitBlock/time.Second)+1 {
		t.Fatalf("retry-after too large: %d", retry)
	}
}

func TestRateLimiterBlockExpires(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	key := "ip:1.2.3.4"

	for i := 0; i < rateLimitMaxAttempts; i++ {
		rl.RegisterFailure(key, now)
	}
	if rl.BlockedFor(key, now) == 0 {
		t.Fatalf("expected block")
	}
	later := now.Add(rateLimitBlock + time.Second)
	if retry := rl.BlockedFor(key, later); retry != 0 {
		t.Fatalf("block should have lapsed, got retry=%d", retry)
	}
}

func TestRateLimiterWindowResetsCounting(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	key := "ip:1.2.3.4"

	for i := 0; i < rateLimitMaxAttempts-1; i++ {
		rl.RegisterFailure(key, now)
	}
	// A failure in a fresh window starts counting from one.
	later := now.Add(rateLimitWindow + time.Second)
	rl.RegisterFailure(key, later)
	if retry := rl.BlockedFor(key, later); retry != 0 {
		t.Fatalf("stale window must not carry attempts, got retry=%d", retry)
	}
}

func TestRateLimiterClear(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Now()
	key := "ip:1.2.3.4"

	for i := 0; i < rateLimitMaxAttempts; i++ {
		rl.RegisterFailure(key, now)
	}
	rl.Clear(key)
	if retry := rl.BlockedFor(key, now); retry != 0 {
		t.Fatalf("clear must unblock, got retry=%d", retry)
	}
}
