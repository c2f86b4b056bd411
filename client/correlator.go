package client

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "pagesync/pkg/errors"
	"pagesync/protocol"
)

// DefaultRequestTimeout bounds how long a correlated request waits for its
// reply before the future rejects.
const DefaultRequestTimeout = 10 * time.Second

// result is the settled outcome of a pending request.
type result struct {
	env protocol.Envelope
	err error
}

// Future is the eventual reply to a correlated request. Exactly one of
// resolve, timeout, or connection teardown settles it.
type Future struct {
	ch chan result
}

// Await blocks until the future settles or ctx is cancelled.
func (f *Future) Await(ctx context.Context) (protocol.Envelope, error) {
	select {
	case res := <-f.ch:
		return res.env, res.err
	case <-ctx.Done():
		return protocol.Envelope{}, ctx.Err()
	}
}

// pendingRequest tracks one in-flight correlated request.
type pendingRequest struct {
	kind      protocol.MessageType
	createdAt time.Time
	timer     *time.Timer
	ch        chan result
}

// Correlator maps outbound request ids to pending futures. Settling removes
// the entry, so each request resolves or rejects exactly once.
type Correlator struct {
	mu      sync.Mutex
	pending map[string]*pendingRequest
	timeout time.Duration
	logger  *zap.Logger
}

// NewCorrelator creates a correlator with the given per-request timeout.
func NewCorrelator(timeout time.Duration, logger *zap.Logger) *Correlator {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Correlator{
		pending: make(map[string]*pendingRequest),
		timeout: timeout,
		logger:  logger,
	}
}

// Track registers a fresh request id and returns it with the future that the
// matching reply will settle. The timeout clock starts immediately.
func (c *Correlator) Track(kind protocol.MessageType) (string, *Future) {
	requestID := uuid.New().String()
	pr := &pendingRequest{
		kind:      kind,
		createdAt: time.Now(),
		ch:        make(chan result, 1),
	}
	pr.timer = time.AfterFunc(c.timeout, func() {
		if c.Reject(requestID, apperrors.NewTimeout("no reply within "+c.timeout.String())) {
			c.logger.Warn("Request timed out",
				zap.String("requestID", requestID),
				zap.String("kind", string(kind)),
			)
		}
	})

	c.mu.Lock()
	c.pending[requestID] = pr
	c.mu.Unlock()

	return requestID, &Future{ch: pr.ch}
}

// Resolve settles the pending request matching the reply envelope. It returns
// false when no request with that id is pending (already settled, or the
// reply belongs to another client's broadcast).
func (c *Correlator) Resolve(requestID string, env protocol.Envelope) bool {
	pr, ok := c.take(requestID)
	if !ok {
		return false
	}
	pr.ch <- result{env: env}
	return true
}

// Reject settles the pending request with an error.
func (c *Correlator) Reject(requestID string, err error) bool {
	pr, ok := c.take(requestID)
	if !ok {
		return false
	}
	pr.ch <- result{err: err}
	return true
}

// RejectAll settles every outstanding request with err. Called on connection
// loss and on destroy; pending requests are never silently dropped.
func (c *Correlator) RejectAll(err error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.mu.Unlock()

	for requestID, pr := range pending {
		pr.timer.Stop()
		pr.ch <- result{err: err}
		c.logger.Debug("Rejected pending request",
			zap.String("requestID", requestID),
			zap.String("kind", string(pr.kind)),
		)
	}
}

// Len returns the number of outstanding requests.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// take removes and returns the pending request, stopping its timer.
func (c *Correlator) take(requestID string) (*pendingRequest, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pr, ok := c.pending[requestID]
	if !ok {
		return nil, false
	}
	delete(c.pending, requestID)
	pr.timer.Stop()
	return pr, true
}
