package ratelimit

import (
	"sync"
	"time"
)

// KeyedLimiter maintains one token bucket per key. The relay uses it to bound
// how fast a single connection can push element operations.
type KeyedLimiter struct {
	mu         sync.Mutex
	buckets    map[string]*TokenBucket
	maxTokens  float64
	refillRate float64
	lastSeen   map[string]time.Time
}

// NewKeyedLimiter creates a keyed limiter; every new key starts with a full
// bucket of the given capacity.
func NewKeyedLimiter(maxTokens, refillPerSecond float64) *KeyedLimiter {
	return &KeyedLimiter{
		buckets:    make(map[string]*TokenBucket),
		maxTokens:  maxTokens,
		refillRate: refillPerSecond,
		lastSeen:   make(map[string]time.Time),
	}
}

// Allow checks whether an action for the key is allowed.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = NewTokenBucket(l.maxTokens, l.refillRate)
		l.buckets[key] = b
	}
	l.lastSeen[key] = time.Now()
	l.mu.Unlock()

	return b.Allow()
}

// SetRates replaces the bucket parameters for all future keys and resets
// existing buckets so the new rates take effect immediately.
func (l *KeyedLimiter) SetRates(maxTokens, refillPerSecond float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maxTokens = maxTokens
	l.refillRate = refillPerSecond
	l.buckets = make(map[string]*TokenBucket)
}

// Reset drops the bucket for a key.
func (l *KeyedLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.buckets, key)
	delete(l.lastSeen, key)
}

// Sweep removes buckets idle for longer than maxIdle. Called periodically by
// the owner; stale buckets would otherwise accumulate per disconnected peer.
func (l *KeyedLimiter) Sweep(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	for key, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			delete(l.buckets, key)
			delete(l.lastSeen, key)
		}
	}
}
