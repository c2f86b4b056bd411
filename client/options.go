package client

import (
	"time"

	"go.uber.org/zap"

	apperrors "pagesync/pkg/errors"
)

// Default outbound rate limit: bursts of 20 element ops refilling at 10/s,
// enough for interactive editing while capping drag-gesture floods.
const (
	DefaultRateLimitBurst  = 20.0
	DefaultRateLimitRefill = 10.0
)

// Options configures a sync client connection.
type Options struct {
	// URL is the relay websocket endpoint, e.g. ws://host:port/ws.
	URL string
	// ProjectID and PageID route every envelope this client sends.
	ProjectID string
	PageID    string
	// UserID and UserName identify this client in presence payloads.
	UserID   string
	UserName string
	// GetToken supplies the current credential; called on every (re)connect.
	GetToken TokenProvider

	// Reconnect backoff tuning. Zero values take the package defaults.
	ReconnectBaseInterval time.Duration
	ReconnectMultiplier   float64
	MaxReconnectInterval  time.Duration
	// MaxReconnectAttempts caps automatic retries; zero means unlimited.
	MaxReconnectAttempts int

	// RequestTimeout bounds each correlated request.
	RequestTimeout time.Duration

	// Outbound element op rate limit (token bucket).
	RateLimitBurst  float64
	RateLimitRefill float64

	// PresenceTTL is the inactivity window before remote presence eviction.
	PresenceTTL time.Duration

	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.ReconnectBaseInterval <= 0 {
		o.ReconnectBaseInterval = DefaultReconnectBaseInterval
	}
	if o.ReconnectMultiplier <= 1 {
		o.ReconnectMultiplier = DefaultReconnectMultiplier
	}
	if o.MaxReconnectInterval <= 0 {
		o.MaxReconnectInterval = DefaultMaxReconnectInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = DefaultRateLimitBurst
	}
	if o.RateLimitRefill <= 0 {
		o.RateLimitRefill = DefaultRateLimitRefill
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = DefaultPresenceTTL
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

func (o Options) validate() error {
	if o.URL == "" {
		return apperrors.NewValidation("URL is required")
	}
	if o.ProjectID == "" {
		return apperrors.NewValidation("ProjectID is required")
	}
	if o.PageID == "" {
		return apperrors.NewValidation("PageID is required")
	}
	if o.GetToken == nil {
		return apperrors.NewValidation("GetToken is required")
	}
	return nil
}
