package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"pagesync/application/pages"
	apperrors "pagesync/pkg/errors"
	"pagesync/pkg/ratelimit"
	"pagesync/protocol"
)

const (
	// How often per-connection rate limit buckets idle for longer than
	// this are swept.
	limiterSweepInterval = time.Minute

	// Presence eviction window advertised to clients when no limits file
	// overrides it.
	defaultPresenceTTL = 30 * time.Second
)

// inboundEnvelope pairs a decoded envelope with the connection it came from.
type inboundEnvelope struct {
	client *Client
	env    protocol.Envelope
}

// Hub routes envelopes between connections sharing a page. All room state
// and all page mutations flow through the single Run loop, which gives
// every participant the same total order of operations.
type Hub struct {
	// Live connections. A client leaves this set when its unregister is
	// processed; envelopes still queued behind the unregister are dropped.
	clients map[*Client]bool

	// Room membership, keyed by projectID/pageID.
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEnvelope

	store   *pages.Store
	limiter *ratelimit.KeyedLimiter
	metrics *Metrics

	// Presence eviction window in seconds, carried in sync:page replies.
	// Atomic because limits reloads write it from outside the hub loop.
	presenceTTLSeconds atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
}

// NewHub creates a hub serving the given page store.
func NewHub(store *pages.Store, limiter *ratelimit.KeyedLimiter, metrics *Metrics, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		inbound:    make(chan inboundEnvelope, 1000),
		store:      store,
		limiter:    limiter,
		metrics:    metrics,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
	h.presenceTTLSeconds.Store(int64(defaultPresenceTTL / time.Second))
	return h
}

// SetPresenceTTL changes the presence eviction window advertised to clients.
// Safe to call while the hub is running; limits reloads use it.
func (h *Hub) SetPresenceTTL(ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	h.presenceTTLSeconds.Store(int64(ttl / time.Second))
}

// Run starts the hub's main event loop.
func (h *Hub) Run() {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("Hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case in := <-h.inbound:
			h.handleEnvelope(in.client, in.env)

		case <-ticker.C:
			h.limiter.Sweep(limiterSweepInterval)
		}
	}
}

// Stop gracefully shuts down the hub.
func (h *Hub) Stop() {
	h.logger.Info("Stopping WebSocket hub")
	h.cancel()
}

func roomKey(projectID, pageID string) string {
	return projectID + "/" + pageID
}

// registerClient tracks a new connection. The connection joins a room only
// once its join envelope arrives.
func (h *Hub) registerClient(client *Client) {
	h.clients[client] = true
	h.metrics.ActiveConnections.Inc()
	h.logger.Info("Client connected",
		zap.String("userID", client.userID),
		zap.String("connectionID", client.id),
	)
}

// unregisterClient removes a connection and, if it had joined, announces
// the departure to the rest of its room.
func (h *Hub) unregisterClient(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	h.metrics.ActiveConnections.Dec()
	h.limiter.Reset(client.id)

	if client.joined {
		h.leaveRoom(client)
	}
	close(client.send)

	h.logger.Info("Client disconnected",
		zap.String("userID", client.userID),
		zap.String("connectionID", client.id),
	)
}

func (h *Hub) leaveRoom(client *Client) {
	key := roomKey(client.projectID, client.pageID)
	if room, ok := h.rooms[key]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
	h.store.Leave(client.projectID, client.pageID, client.userID)
	client.joined = false
}

// handleEnvelope processes one inbound envelope in arrival order.
func (h *Hub) handleEnvelope(client *Client, env protocol.Envelope) {
	// The select in Run picks among ready channels in random order, so a
	// connection's last envelopes can be processed after its unregister.
	// By then the send channel is closed; any reply would panic. Drop them.
	if !h.clients[client] {
		return
	}

	if err := protocol.ValidateEnvelope(env); err != nil {
		h.sendError(client, env, apperrors.NewValidation(err.Error()))
		return
	}

	// The credential decides who the sender is, not the envelope.
	env.UserID = client.userID

	if env.Type == protocol.MessageJoin {
		h.handleJoin(client, env)
		return
	}

	if !client.joined {
		h.metrics.OpsRejected.WithLabelValues(string(protocol.CodeJoinRequired)).Inc()
		h.sendError(client, env, apperrors.NewJoinRequired("join the page before sending operations"))
		return
	}

	// A joined connection only ever speaks for its own room.
	env.ProjectID = client.projectID
	env.PageID = client.pageID

	switch {
	case env.Type == protocol.MessagePresence:
		h.handlePresence(client, env)

	case env.Type == protocol.MessageSyncPage:
		h.handleSyncPage(client, env)

	case env.Type.IsElementOp():
		h.handleElementOp(client, env)

	default:
		h.sendError(client, env, apperrors.NewValidation("unsupported message type "+string(env.Type)))
	}
}

func (h *Hub) handleJoin(client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.JoinPayload](env)
	if err != nil {
		h.sendError(client, env, apperrors.NewValidation(err.Error()))
		return
	}

	// Re-joining moves the connection to the new page.
	if client.joined {
		h.leaveRoom(client)
	}

	client.joined = true
	client.projectID = env.ProjectID
	client.pageID = payload.PageID
	client.userName = payload.UserName

	key := roomKey(client.projectID, client.pageID)
	if h.rooms[key] == nil {
		h.rooms[key] = make(map[*Client]bool)
	}
	h.rooms[key][client] = true

	h.store.Join(client.projectID, client.pageID, protocol.SyncUser{
		UserID:   client.userID,
		UserName: client.userName,
	})

	h.logger.Info("Client joined page",
		zap.String("userID", client.userID),
		zap.String("projectID", client.projectID),
		zap.String("pageID", client.pageID),
		zap.Int("roomSize", len(h.rooms[key])),
	)
}

// handlePresence relays cursor and selection updates to everyone else in
// the room. Presence is fire and forget; there is no reply and no error
// on a stale payload.
func (h *Hub) handlePresence(client *Client, env protocol.Envelope) {
	payload, err := protocol.DecodePayload[protocol.PresencePayload](env)
	if err != nil {
		h.logger.Debug("Dropping malformed presence update",
			zap.String("userID", client.userID),
			zap.Error(err),
		)
		return
	}
	payload.UserID = client.userID

	out, err := protocol.NewEnvelope(protocol.MessagePresence, env.ProjectID, env.PageID, payload)
	if err != nil {
		return
	}
	out.UserID = client.userID
	h.broadcastToRoom(roomKey(env.ProjectID, env.PageID), out, client)
}

// handleSyncPage replies with the authoritative page snapshot, addressed
// only to the requester.
func (h *Hub) handleSyncPage(client *Client, env protocol.Envelope) {
	snapshot := h.store.Snapshot(env.ProjectID, env.PageID)
	snapshot.PresenceTTLSeconds = int(h.presenceTTLSeconds.Load())

	out, err := protocol.NewEnvelope(protocol.MessageSyncPage, env.ProjectID, env.PageID, snapshot)
	if err != nil {
		h.sendError(client, env, apperrors.NewProcess("failed to build page snapshot", err))
		return
	}
	out.RequestID = env.RequestID
	h.sendToClient(client, out)
}

// handleElementOp applies one tree operation to the page store and fans the
// resulting broadcast out to the whole room, originator included.
func (h *Hub) handleElementOp(client *Client, env protocol.Envelope) {
	if !h.limiter.Allow(client.id) {
		h.metrics.OpsRejected.WithLabelValues(string(protocol.CodeRateLimited)).Inc()
		h.sendError(client, env, apperrors.NewRateLimited("too many operations, slow down"))
		return
	}

	broadcast, err := h.store.Apply(env)
	if err != nil {
		h.metrics.OpsRejected.WithLabelValues(string(protocol.CodeForError(err))).Inc()
		h.sendError(client, env, err)
		return
	}

	h.broadcastToRoom(roomKey(env.ProjectID, env.PageID), broadcast, nil)
}

// sendError delivers an error envelope to a single connection, carrying the
// request id of the operation that failed so the sender can settle it.
func (h *Hub) sendError(client *Client, env protocol.Envelope, opErr error) {
	payload := protocol.ErrorPayload{
		Code:    protocol.CodeForError(opErr),
		Message: opErr.Error(),
	}
	out, err := protocol.NewEnvelope(protocol.MessageError, env.ProjectID, env.PageID, payload)
	if err != nil {
		h.logger.Error("Failed to build error envelope", zap.Error(err))
		return
	}
	out.RequestID = env.RequestID
	h.sendToClient(client, out)
}

func (h *Hub) sendToClient(client *Client, env protocol.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Failed to marshal envelope", zap.Error(err))
		return
	}
	h.deliver(client, data)
}

// broadcastToRoom fans an envelope out to every member of a room. A non-nil
// exclude skips that connection, which is how presence avoids echoing back
// to its sender.
func (h *Hub) broadcastToRoom(key string, env protocol.Envelope, exclude *Client) {
	room := h.rooms[key]
	if len(room) == 0 {
		return
	}

	// Marshal once for all clients
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Failed to marshal broadcast envelope",
			zap.Error(err),
			zap.String("messageType", string(env.Type)),
		)
		return
	}

	for client := range room {
		if client == exclude {
			continue
		}
		h.deliver(client, data)
	}
	h.metrics.MessagesRelayed.WithLabelValues(string(env.Type)).Inc()
}

// deliver queues bytes on a client's send channel, closing the connection
// if its buffer is full.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		// Client's send channel is full, drop the connection
		h.metrics.MessagesDropped.Inc()
		h.logger.Warn("Closing slow client",
			zap.String("userID", client.userID),
			zap.String("connectionID", client.id),
		)
		go func(c *Client) {
			c.conn.Close()
		}(client)
	}
}

// closeAllConnections closes all active connections during shutdown.
func (h *Hub) closeAllConnections() {
	for client := range h.clients {
		close(client.send)
		client.conn.Close()
		delete(h.clients, client)
	}
	h.rooms = make(map[string]map[*Client]bool)
	h.logger.Info("All connections closed")
}

// RoomSize returns the number of connections joined to a page.
func (h *Hub) RoomSize(projectID, pageID string) int {
	// Only safe to call from tests or before Run starts; room state is
	// owned by the hub loop.
	return len(h.rooms[roomKey(projectID, pageID)])
}
