package client

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Reconnect backoff defaults: 1s base doubling up to a 30s ceiling.
const (
	DefaultReconnectBaseInterval = 1 * time.Second
	DefaultReconnectMultiplier   = 2.0
	DefaultMaxReconnectInterval  = 30 * time.Second
)

// newReconnectBackoff builds the exponential schedule used between reconnect
// attempts. Randomization is disabled so successive delays are exactly
// base * multiplier^attempt, capped at max.
func newReconnectBackoff(base time.Duration, multiplier float64, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.RandomizationFactor = 0
	b.Multiplier = multiplier
	b.MaxInterval = max
	b.Reset()
	return b
}
