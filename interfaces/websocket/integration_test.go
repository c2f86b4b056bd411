package websocket_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagesync/application/pages"
	"pagesync/client"
	"pagesync/domain/tree"
	"pagesync/interfaces/websocket"
	"pagesync/pkg/ratelimit"
	"pagesync/protocol"
)

const testTimeout = 5 * time.Second

// startRelay spins up a full relay on an ephemeral port. Tokens of the form
// "token-<userID>" resolve to that user.
func startRelay(t *testing.T) *httptest.Server {
	t.Helper()

	store := pages.NewStore(zap.NewNop())
	limiter := ratelimit.NewKeyedLimiter(100, 100)
	metrics := websocket.NewMetrics(prometheus.NewRegistry())
	hub := websocket.NewHub(store, limiter, metrics, zap.NewNop())
	go hub.Run()
	t.Cleanup(hub.Stop)

	validate := func(token string) (string, error) {
		userID, ok := strings.CutPrefix(token, "token-")
		if !ok || userID == "" {
			return "", errors.New("unknown token")
		}
		return userID, nil
	}
	server := websocket.NewServer(hub, validate, nil, zap.NewNop())

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newSyncedClient(t *testing.T, ts *httptest.Server, userID string) *client.Client {
	t.Helper()

	c, err := client.New(client.Options{
		URL:                   wsURL(ts),
		ProjectID:             "proj-1",
		PageID:                "page-1",
		UserID:                userID,
		UserName:              "User " + userID,
		GetToken:              func(context.Context) (string, error) { return "token-" + userID, nil },
		ReconnectBaseInterval: 50 * time.Millisecond,
		MaxReconnectInterval:  200 * time.Millisecond,
		RequestTimeout:        testTimeout,
	})
	require.NoError(t, err)
	t.Cleanup(c.Destroy)

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	require.Equal(t, client.StateSynced, c.State())
	return c
}

func TestRelay_CreateReachesEveryParticipant(t *testing.T) {
	ts := startRelay(t)
	alice := newSyncedClient(t, ts, "alice")
	bob := newSyncedClient(t, ts, "bob")

	seen := make(chan protocol.Envelope, 1)
	bob.OnBroadcast(func(env protocol.Envelope) { seen <- env })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	node, err := alice.CreateElement(ctx, protocol.CreateElementPayload{
		ID: "section-1", Kind: tree.KindSection,
	})
	require.NoError(t, err)
	assert.Equal(t, "section-1", node.ID)

	select {
	case env := <-seen:
		assert.Equal(t, protocol.MessageElementCreate, env.Type)
		assert.Equal(t, "alice", env.UserID)
	case <-time.After(testTimeout):
		t.Fatal("bob never received the broadcast")
	}

	assert.Equal(t, alice.Tree(), bob.Tree())
}

func TestRelay_OperationBeforeJoinRejected(t *testing.T) {
	ts := startRelay(t)

	conn, _, err := gws.DefaultDialer.Dial(wsURL(ts)+"?token=token-eve", nil)
	require.NoError(t, err)
	defer conn.Close()

	env, err := protocol.NewEnvelope(protocol.MessageElementCreate, "proj-1", "page-1", protocol.CreateElementPayload{
		Kind: tree.KindSection,
	})
	require.NoError(t, err)
	env.RequestID = "req-1"
	require.NoError(t, conn.WriteJSON(env))

	conn.SetReadDeadline(time.Now().Add(testTimeout))
	var reply protocol.Envelope
	require.NoError(t, conn.ReadJSON(&reply))

	assert.Equal(t, protocol.MessageError, reply.Type)
	assert.Equal(t, "req-1", reply.RequestID)

	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &payload))
	assert.Equal(t, protocol.CodeJoinRequired, payload.Code)
}

func TestRelay_RejectedTokenRefusesUpgrade(t *testing.T) {
	ts := startRelay(t)

	_, resp, err := gws.DefaultDialer.Dial(wsURL(ts)+"?token=garbage", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRelay_LateJoinerSyncsExistingTree(t *testing.T) {
	ts := startRelay(t)
	alice := newSyncedClient(t, ts, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := alice.CreateElement(ctx, protocol.CreateElementPayload{ID: "section-1", Kind: tree.KindSection})
	require.NoError(t, err)
	_, err = alice.CreateElement(ctx, protocol.CreateElementPayload{ID: "text-1", Kind: tree.KindText, ParentID: "section-1"})
	require.NoError(t, err)

	bob := newSyncedClient(t, ts, "bob")

	assert.Equal(t, alice.Tree(), bob.Tree())
	result := bob.Validate()
	assert.True(t, result.OK, "violations: %v", result.Errors)
}

func TestRelay_PresenceReachesOthersNotSender(t *testing.T) {
	ts := startRelay(t)
	alice := newSyncedClient(t, ts, "alice")
	bob := newSyncedClient(t, ts, "bob")

	require.NoError(t, alice.SendPresence(120, 80, "section-1"))

	require.Eventually(t, func() bool {
		for _, p := range bob.Presence() {
			if p.UserID == "alice" && p.CursorX == 120 {
				return true
			}
		}
		return false
	}, testTimeout, 10*time.Millisecond, "bob never saw alice's cursor")

	for _, p := range alice.Presence() {
		assert.NotEqual(t, "alice", p.UserID, "own presence must not be tracked locally")
	}
}

func TestRelay_ConcurrentMovesConvergeAcrossClients(t *testing.T) {
	ts := startRelay(t)
	alice := newSyncedClient(t, ts, "alice")
	bob := newSyncedClient(t, ts, "bob")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := alice.CreateElement(ctx, protocol.CreateElementPayload{ID: "A", Kind: tree.KindSection, Order: 0})
	require.NoError(t, err)
	_, err = alice.CreateElement(ctx, protocol.CreateElementPayload{ID: "B", Kind: tree.KindSection, Order: 1})
	require.NoError(t, err)

	// Both clients reorder at the same time; the relay serializes the two
	// moves and everyone replays them in that order.
	errA := make(chan error, 1)
	errB := make(chan error, 1)
	go func() { errA <- alice.MoveElement(ctx, protocol.MoveElementPayload{ID: "A", Order: 1}) }()
	go func() { errB <- bob.MoveElement(ctx, protocol.MoveElementPayload{ID: "B", Order: 0}) }()
	require.NoError(t, <-errA)
	require.NoError(t, <-errB)

	require.Eventually(t, func() bool {
		a, b := alice.Tree(), bob.Tree()
		if len(a) != 2 || len(b) != 2 {
			return false
		}
		return a[0].ID == b[0].ID && a[1].ID == b[1].ID
	}, testTimeout, 10*time.Millisecond, "trees never converged")

	result := alice.Validate()
	assert.True(t, result.OK, "violations: %v", result.Errors)
}

func TestRelay_ClientReconnectsAndRecoversMissedEdits(t *testing.T) {
	ts := startRelay(t)
	alice := newSyncedClient(t, ts, "alice")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := alice.CreateElement(ctx, protocol.CreateElementPayload{ID: "section-1", Kind: tree.KindSection})
	require.NoError(t, err)

	// Drop alice's socket out from under her.
	ts.CloseClientConnections()

	require.Eventually(t, func() bool {
		return alice.State() != client.StateSynced
	}, testTimeout, 5*time.Millisecond, "connection drop never observed")

	// Another participant edits while alice is offline.
	bob := newSyncedClient(t, ts, "bob")
	_, err = bob.CreateElement(ctx, protocol.CreateElementPayload{ID: "section-2", Kind: tree.KindSection})
	require.NoError(t, err)

	// Automatic backoff reconnect runs sync:page and recovers the missed edit.
	require.Eventually(t, func() bool {
		return alice.State() == client.StateSynced && len(alice.Tree()) == 2
	}, testTimeout, 10*time.Millisecond, "alice never resynced")

	assert.Equal(t, bob.Tree(), alice.Tree())
}

func TestRelay_DestroyedClientRefusesOperations(t *testing.T) {
	ts := startRelay(t)
	alice := newSyncedClient(t, ts, "alice")

	alice.Destroy()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := alice.CreateElement(ctx, protocol.CreateElementPayload{ID: "x", Kind: tree.KindSection})
	require.Error(t, err)
}
