// Package ratelimit provides token bucket rate limiting for outbound and
// inbound operation streams.
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket is a single token bucket with lazy, elapsed-time based refill.
// Each allowed action consumes one token; refill never exceeds the cap.
type TokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

// NewTokenBucket creates a full bucket with the given capacity and refill
// rate in tokens per second.
func NewTokenBucket(maxTokens, refillPerSecond float64) *TokenBucket {
	return newTokenBucket(maxTokens, refillPerSecond, time.Now)
}

func newTokenBucket(maxTokens, refillPerSecond float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillPerSecond,
		lastRefill: now(),
		now:        now,
	}
}

// Allow refills the bucket from elapsed time, then either consumes one token
// and returns true, or returns false leaving the bucket empty. Rejected sends
// are not queued; the caller surfaces the rejection.
func (b *TokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Tokens returns the current token count after a refill.
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.maxTokens, b.tokens+elapsed*b.refillRate)
	}
	b.lastRefill = now
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
