// Package client implements the sync client for collaborative page editing:
// connection lifecycle, request correlation, optimistic tree mutation, and
// presence tracking over a single websocket to the relay.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pagesync/domain/tree"
	apperrors "pagesync/pkg/errors"
	"pagesync/pkg/ratelimit"
	"pagesync/protocol"
)

const (
	// Time allowed to write a message to the relay
	writeWait = 10 * time.Second

	// The relay pings periodically; a read deadline past this window means
	// the connection is considered dead
	pongWait = 60 * time.Second
)

// State is the connection lifecycle state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateSynced is the connected sub-state entered once the post-join
	// sync:page reply has been applied.
	StateSynced
	// StateFailed is entered when automatic reconnects exceeded the cap;
	// only an explicit Reconnect leaves it.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSynced:
		return "synced"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Client is a live sync connection for one page. All exported methods are
// safe for concurrent use.
type Client struct {
	opts       Options
	logger     *zap.Logger
	creds      *credentialSource
	correlator *Correlator
	limiter    *ratelimit.TokenBucket
	presence   *PresenceTracker
	doc        *document

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	connGen        int
	attempts       int
	backoff        *backoff.ExponentialBackOff
	reconnectTimer *time.Timer
	destroyed      bool

	writeMu sync.Mutex

	callbackMu    sync.RWMutex
	onBroadcast   func(protocol.Envelope)
	onError       func(error)
	onStateChange func(State)
}

// New creates a client for the given page. The connection is not opened
// until Connect is called.
func New(opts Options) (*Client, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	logger := opts.Logger.With(
		zap.String("projectID", opts.ProjectID),
		zap.String("pageID", opts.PageID),
	)

	c := &Client{
		opts:       opts,
		logger:     logger,
		creds:      newCredentialSource(opts.GetToken, logger),
		correlator: NewCorrelator(opts.RequestTimeout, logger),
		limiter:    ratelimit.NewTokenBucket(opts.RateLimitBurst, opts.RateLimitRefill),
		presence:   NewPresenceTracker(opts.PresenceTTL, logger),
		doc:        newDocument(logger),
		backoff:    newReconnectBackoff(opts.ReconnectBaseInterval, opts.ReconnectMultiplier, opts.MaxReconnectInterval),
	}
	c.presence.StartSweeper()
	return c, nil
}

// OnBroadcast registers the callback invoked for every element broadcast
// after it has been applied to the local tree.
func (c *Client) OnBroadcast(fn func(protocol.Envelope)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onBroadcast = fn
}

// OnError registers the callback for uncorrelated protocol errors and
// connection failures.
func (c *Client) OnError(fn func(error)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onError = fn
}

// OnStateChange registers the callback invoked on every lifecycle
// transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.onStateChange = fn
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tree returns a deep copy of the local document tree.
func (c *Client) Tree() []tree.Node {
	return c.doc.snapshot()
}

// Presence returns the currently tracked remote users.
func (c *Client) Presence() []RemotePresence {
	return c.presence.List()
}

// PendingRequests returns the number of in-flight correlated requests.
func (c *Client) PendingRequests() int {
	return c.correlator.Len()
}

// Connect obtains a credential, opens the websocket, joins the page, and
// pulls the authoritative tree via sync:page. On return the client is in
// StateSynced. Later unexpected closes trigger automatic reconnects with
// exponential backoff.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx, false)
}

// Reconnect cancels any scheduled automatic retry, resets the backoff
// schedule, and performs the full connect sequence. It is idempotent: a
// client that is already synced returns immediately.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return apperrors.NewConnectionLost("client destroyed", nil)
	}
	if c.state == StateSynced || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.attempts = 0
	c.backoff.Reset()
	c.mu.Unlock()

	return c.connect(ctx, false)
}

// Destroy tears down the connection, rejects all outstanding requests with a
// disconnection error, and halts reconnects. Terminal: no further operations
// are valid afterward.
func (c *Client) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.correlator.RejectAll(apperrors.NewConnectionLost("client destroyed", nil))
	c.presence.Stop()
	c.logger.Info("Client destroyed")
}

// connect performs the full dial/join/sync sequence. auto marks attempts
// scheduled by the backoff timer, which keep counting toward the cap.
func (c *Client) connect(ctx context.Context, auto bool) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return apperrors.NewConnectionLost("client destroyed", nil)
	}
	if c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.closeConnLocked()
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	err := c.dialAndSync(ctx)
	if err == nil {
		return nil
	}

	c.mu.Lock()
	c.closeConnLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if auto {
		c.scheduleReconnect()
	}
	return err
}

func (c *Client) dialAndSync(ctx context.Context) error {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return err
	}

	dialURL := c.opts.URL + "?token=" + token
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, dialURL, nil)
	if err != nil {
		return apperrors.NewConnectionLost("failed to dial relay", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.connGen++
	gen := c.connGen
	c.mu.Unlock()

	go c.readLoop(conn, gen)

	// Join must precede any element operation on this connection.
	joinEnv, err := protocol.NewEnvelope(protocol.MessageJoin, c.opts.ProjectID, c.opts.PageID, protocol.JoinPayload{
		PageID:   c.opts.PageID,
		UserName: c.opts.UserName,
	})
	if err != nil {
		return err
	}
	joinEnv.UserID = c.opts.UserID
	if err := c.writeEnvelope(joinEnv); err != nil {
		return err
	}

	c.mu.Lock()
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	// sync:page is the only recovery path for missed updates; it runs on
	// every connect, not just reconnects.
	if err := c.SyncPage(ctx); err != nil {
		return apperrors.Wrap(err, "post-join sync failed")
	}

	c.mu.Lock()
	c.attempts = 0
	c.backoff.Reset()
	c.setStateLocked(StateSynced)
	c.mu.Unlock()

	c.logger.Info("Connected and synced")
	return nil
}

// readLoop pumps envelopes off one connection until it dies. gen guards
// against a stale loop of a replaced connection touching current state.
func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.handleReadError(gen, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		c.dispatch(env)
	}
}

func (c *Client) handleReadError(gen int, err error) {
	c.mu.Lock()
	if c.destroyed || gen != c.connGen {
		c.mu.Unlock()
		return
	}
	c.closeConnLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	c.logger.Warn("Connection lost", zap.Error(err))
	c.correlator.RejectAll(apperrors.NewConnectionLost("connection lost", err))
	c.emitError(apperrors.NewConnectionLost("connection lost", err))
	c.scheduleReconnect()
}

// scheduleReconnect arms the backoff timer for the next automatic attempt,
// or gives up with StateFailed once the cap is exceeded.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.destroyed || c.reconnectTimer != nil {
		c.mu.Unlock()
		return
	}
	if c.opts.MaxReconnectAttempts > 0 && c.attempts >= c.opts.MaxReconnectAttempts {
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		c.logger.Error("Reconnect attempts exhausted",
			zap.Int("attempts", c.opts.MaxReconnectAttempts),
		)
		c.emitError(apperrors.NewConnectionLost("reconnect attempts exhausted", nil))
		return
	}
	c.attempts++
	attempt := c.attempts
	delay := c.backoff.NextBackOff()
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.RequestTimeout)
		defer cancel()
		if err := c.connect(ctx, true); err != nil {
			c.logger.Warn("Reconnect attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	})
	c.mu.Unlock()

	c.logger.Info("Reconnect scheduled",
		zap.Int("attempt", attempt),
		zap.Duration("delay", delay),
	)
}

// dispatch routes one received envelope: correlated replies settle their
// pending request; element broadcasts apply to the local tree in arrival
// order, which is what makes last-relayed-wins deterministic per client.
func (c *Client) dispatch(env protocol.Envelope) {
	switch env.Type {
	case protocol.MessageError:
		payload, err := protocol.DecodePayload[protocol.ErrorPayload](env)
		if err != nil {
			c.logger.Warn("Undecodable error envelope", zap.Error(err))
			return
		}
		wireErr := payload.AsError()
		if env.RequestID != "" && c.correlator.Reject(env.RequestID, wireErr) {
			return
		}
		c.emitError(wireErr)

	case protocol.MessagePresence:
		payload, err := protocol.DecodePayload[protocol.PresencePayload](env)
		if err != nil {
			c.logger.Debug("Undecodable presence payload", zap.Error(err))
			return
		}
		if payload.UserID != c.opts.UserID {
			c.presence.Upsert(payload)
		}

	case protocol.MessageSyncPage:
		if env.RequestID != "" && c.correlator.Resolve(env.RequestID, env) {
			return
		}
		// Unsolicited sync still carries authority.
		if payload, err := protocol.DecodePayload[protocol.SyncPagePayload](env); err == nil {
			c.doc.reset(payload.Elements)
		}

	case protocol.MessageElementCreate, protocol.MessageElementUpdate,
		protocol.MessageElementMove, protocol.MessageElementDelete:
		if err := c.doc.applyRemote(env); err != nil {
			c.logger.Warn("Failed to apply broadcast",
				zap.String("type", string(env.Type)),
				zap.Error(err),
			)
		}
		// Our own acknowledged op both resolves its future and flows to the
		// generic listener, mirroring what other participants observe.
		if env.RequestID != "" {
			c.correlator.Resolve(env.RequestID, env)
		}
		c.emitBroadcast(env)

	default:
		c.logger.Debug("Ignoring envelope of unknown type", zap.String("type", string(env.Type)))
	}
}

// Request sends a correlated envelope and awaits its reply. Element
// operations consume a rate limiter token per send attempt and are retried
// exactly once when the relay reports a processing error.
func (c *Client) Request(ctx context.Context, msgType protocol.MessageType, payload any) (protocol.Envelope, error) {
	reply, err := c.requestOnce(ctx, msgType, payload)
	if err != nil && apperrors.IsProcess(err) && msgType.IsElementOp() {
		c.logger.Warn("Retrying after processing error", zap.String("type", string(msgType)))
		return c.requestOnce(ctx, msgType, payload)
	}
	return reply, err
}

func (c *Client) requestOnce(ctx context.Context, msgType protocol.MessageType, payload any) (protocol.Envelope, error) {
	if msgType.IsElementOp() && !c.limiter.Allow() {
		return protocol.Envelope{}, apperrors.NewRateLimited("outbound operation budget exhausted")
	}

	env, err := protocol.NewEnvelope(msgType, c.opts.ProjectID, c.opts.PageID, payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	env.UserID = c.opts.UserID

	requestID, future := c.correlator.Track(msgType)
	env.RequestID = requestID

	if err := c.writeEnvelope(env); err != nil {
		c.correlator.Reject(requestID, err)
		return protocol.Envelope{}, err
	}
	return future.Await(ctx)
}

// SendPresence publishes this user's cursor position and selection.
// Fire-and-forget: uncorrelated, unbuffered, never rate limited or retried.
// Callers should throttle pointer-move floods themselves.
func (c *Client) SendPresence(cursorX, cursorY float64, elementID string) error {
	env, err := protocol.NewEnvelope(protocol.MessagePresence, c.opts.ProjectID, c.opts.PageID, protocol.PresencePayload{
		UserID:    c.opts.UserID,
		UserName:  c.opts.UserName,
		CursorX:   cursorX,
		CursorY:   cursorY,
		ElementID: elementID,
	})
	if err != nil {
		return err
	}
	env.UserID = c.opts.UserID
	return c.writeEnvelope(env)
}

// SyncPage pulls the authoritative tree and present-user list from the relay
// and replaces the local copy.
func (c *Client) SyncPage(ctx context.Context) error {
	reply, err := c.Request(ctx, protocol.MessageSyncPage, nil)
	if err != nil {
		return err
	}
	payload, err := protocol.DecodePayload[protocol.SyncPagePayload](reply)
	if err != nil {
		return err
	}
	c.doc.reset(payload.Elements)
	if payload.PresenceTTLSeconds > 0 {
		c.presence.SetTTL(time.Duration(payload.PresenceTTLSeconds) * time.Second)
	}
	for _, user := range payload.Users {
		if user.UserID != c.opts.UserID {
			c.presence.Upsert(protocol.PresencePayload{UserID: user.UserID, UserName: user.UserName})
		}
	}
	return nil
}

func (c *Client) writeEnvelope(env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return apperrors.NewConnectionLost("not connected", nil)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(env); err != nil {
		return apperrors.NewConnectionLost(fmt.Sprintf("failed to send %s", env.Type), err)
	}
	return nil
}

// closeConnLocked closes and clears the active connection. Caller holds mu.
func (c *Client) closeConnLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connGen++
}

// setStateLocked transitions the lifecycle state. Caller holds mu.
func (c *Client) setStateLocked(next State) {
	if c.state == next {
		return
	}
	prev := c.state
	c.state = next
	c.logger.Debug("State transition",
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
	c.callbackMu.RLock()
	fn := c.onStateChange
	c.callbackMu.RUnlock()
	if fn != nil {
		go fn(next)
	}
}

func (c *Client) emitError(err error) {
	c.callbackMu.RLock()
	fn := c.onError
	c.callbackMu.RUnlock()
	if fn != nil {
		go fn(err)
	}
}

func (c *Client) emitBroadcast(env protocol.Envelope) {
	c.callbackMu.RLock()
	fn := c.onBroadcast
	c.callbackMu.RUnlock()
	if fn != nil {
		fn(env)
	}
}
