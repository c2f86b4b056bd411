package client

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"pagesync/protocol"
)

const (
	// DefaultPresenceTTL is the inactivity window after which a remote user's
	// presence entry is evicted. Eviction is purely local; the wire does not
	// enforce it.
	DefaultPresenceTTL = 30 * time.Second

	presenceSweepInterval = 10 * time.Second
)

// RemotePresence is the last known ephemeral state of another user on the
// page. Never persisted; a later update simply supersedes an earlier one.
type RemotePresence struct {
	UserID            string
	UserName          string
	CursorX           float64
	CursorY           float64
	SelectedElementID string
	LastUpdated       time.Time
}

// PresenceTracker maintains per-user presence entries keyed by user id.
type PresenceTracker struct {
	mu      sync.RWMutex
	entries map[string]RemotePresence
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
	stopCh  chan struct{}
	stopped sync.Once
}

// NewPresenceTracker creates a tracker evicting entries idle longer than ttl.
func NewPresenceTracker(ttl time.Duration, logger *zap.Logger) *PresenceTracker {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &PresenceTracker{
		entries: make(map[string]RemotePresence),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
}

// SetTTL replaces the eviction window. The relay advertises its window in
// sync:page replies; adopting it keeps both sides evicting on the same clock.
func (t *PresenceTracker) SetTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ttl = ttl
}

// TTL returns the current eviction window.
func (t *PresenceTracker) TTL() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ttl
}

// Upsert records an incoming presence payload, superseding any earlier entry
// for the same user.
func (t *PresenceTracker) Upsert(p protocol.PresencePayload) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries[p.UserID] = RemotePresence{
		UserID:            p.UserID,
		UserName:          p.UserName,
		CursorX:           p.CursorX,
		CursorY:           p.CursorY,
		SelectedElementID: p.ElementID,
		LastUpdated:       t.now(),
	}
}

// Get returns the presence entry for a user.
func (t *PresenceTracker) Get(userID string) (RemotePresence, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	p, ok := t.entries[userID]
	return p, ok
}

// List returns all current presence entries.
func (t *PresenceTracker) List() []RemotePresence {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]RemotePresence, 0, len(t.entries))
	for _, p := range t.entries {
		out = append(out, p)
	}
	return out
}

// Remove drops the entry for a user (e.g. on an observed leave).
func (t *PresenceTracker) Remove(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, userID)
}

// EvictStale removes entries idle longer than the ttl and returns how many
// were dropped.
func (t *PresenceTracker) EvictStale() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.ttl)
	evicted := 0
	for userID, p := range t.entries {
		if p.LastUpdated.Before(cutoff) {
			delete(t.entries, userID)
			evicted++
		}
	}
	if evicted > 0 {
		t.logger.Debug("Evicted stale presence entries", zap.Int("count", evicted))
	}
	return evicted
}

// StartSweeper runs periodic eviction until Stop is called.
func (t *PresenceTracker) StartSweeper() {
	go func() {
		ticker := time.NewTicker(presenceSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-t.stopCh:
				return
			case <-ticker.C:
				t.EvictStale()
			}
		}
	}()
}

// Stop halts the sweeper.
func (t *PresenceTracker) Stop() {
	t.stopped.Do(func() { close(t.stopCh) })
}
