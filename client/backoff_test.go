package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReconnectBackoff_GrowthAndCap(t *testing.T) {
	b := newReconnectBackoff(1*time.Second, 2, 30*time.Second)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, expected := range want {
		assert.Equal(t, expected, b.NextBackOff(), "delay %d", i)
	}
}

func TestReconnectBackoff_ResetRestartsSchedule(t *testing.T) {
	b := newReconnectBackoff(1*time.Second, 2, 30*time.Second)

	b.NextBackOff()
	b.NextBackOff()
	b.Reset()

	assert.Equal(t, 1*time.Second, b.NextBackOff())
}
