package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is an in-process token bucket limiter. Tokens refill at a
// fixed rate up to the bucket capacity; callers either take a token
// immediately or wait for one with a deadline.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int64
	rate     int64 // tokens per second
	tokens   float64
	last     time.Time
}

func NewTokenBucket(capacity, rate int64) *TokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if rate <= 0 {
		rate = 1
	}
	return &TokenBucket{
		capacity: capacity,
		rate:     rate,
		tokens:   float64(capacity),
		last:     time.Now(),
	}
}

func (b *TokenBucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * float64(b.rate)
	if b.tokens > float64(b.capacity) {
		b.tokens = float64(b.capacity)
	}
	b.last = now
}

// TakeN consumes n tokens if available, without waiting.
func (b *TokenBucket) TakeN(n int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(time.Now())
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		return true
	}
	return false
}

// WaitN consumes n tokens, waiting up to timeout for them to become
// available. It returns false if the deadline passes first.
func (b *TokenBucket) WaitN(n int64, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if b.TakeN(n) {
			return true
		}
		b.mu.Lock()
		missing := float64(n) - b.tokens
		b.mu.Unlock()
		wait := time.Duration(missing / float64(b.rate) * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if time.Now().Add(wait).After(deadline) {
			return false
		}
		time.Sleep(wait)
	}
}
