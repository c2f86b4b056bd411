package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pagesync/domain/tree"
	"pagesync/protocol"
)

func newTestDocument(t *testing.T, nodes []tree.Node) *document {
	t.Helper()
	d := newDocument(zap.NewNop())
	d.reset(nodes)
	return d
}

func strPtr(s string) *string { return &s }

func mustEnvelope(t *testing.T, msgType protocol.MessageType, payload any) protocol.Envelope {
	t.Helper()
	env, err := protocol.NewEnvelope(msgType, "proj-1", "page-1", payload)
	require.NoError(t, err)
	return env
}

func TestDocument_ApplyCreate(t *testing.T) {
	d := newTestDocument(t, []tree.Node{
		{ID: "box-1", Kind: tree.KindBox},
	})

	d.applyCreate(tree.Node{ID: "text-1", Kind: tree.KindText, ParentID: "box-1", Order: 0})

	box, _ := tree.FindByID(d.snapshot(), "box-1")
	require.Len(t, box.Children, 1)
	assert.Equal(t, "text-1", box.Children[0].ID)
}

func TestDocument_ReplayedCreateIsIdempotent(t *testing.T) {
	d := newTestDocument(t, nil)
	node := tree.Node{ID: "box-1", Kind: tree.KindBox, Content: "v1"}

	d.applyCreate(node)
	node.Content = "v2"
	d.applyCreate(node)

	snapshot := d.snapshot()
	assert.Len(t, snapshot, 1)
	got, _ := tree.FindByID(snapshot, "box-1")
	assert.Equal(t, "v2", got.Content)
}

func TestDocument_UpdateLastWriterWins(t *testing.T) {
	d := newTestDocument(t, []tree.Node{
		{ID: "text-1", Kind: tree.KindText, Content: "original"},
	})

	// Two concurrent edits arrive in relay order; the later one fully
	// replaces the contested field.
	d.applyUpdate(protocol.UpdateElementPayload{ID: "text-1", Content: strPtr("from client A")})
	d.applyUpdate(protocol.UpdateElementPayload{ID: "text-1", Content: strPtr("from client B")})

	got, _ := tree.FindByID(d.snapshot(), "text-1")
	assert.Equal(t, "from client B", got.Content)
}

func TestDocument_DeleteWinsOverUpdate(t *testing.T) {
	d := newTestDocument(t, []tree.Node{
		{ID: "text-1", Kind: tree.KindText, Content: "original"},
	})

	d.applyDelete(protocol.DeleteElementPayload{ID: "text-1"})
	d.applyUpdate(protocol.UpdateElementPayload{ID: "text-1", Content: strPtr("too late")})

	_, ok := tree.FindByID(d.snapshot(), "text-1")
	assert.False(t, ok)
}

func TestDocument_UpdatePartialFields(t *testing.T) {
	d := newTestDocument(t, []tree.Node{
		{ID: "text-1", Kind: tree.KindText, Content: "hello", StyleClasses: "c-old"},
	})

	d.applyUpdate(protocol.UpdateElementPayload{ID: "text-1", StyleClasses: strPtr("c-new")})

	got, _ := tree.FindByID(d.snapshot(), "text-1")
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, "c-new", got.StyleClasses)
}

func TestDocument_ConcurrentMovesConverge(t *testing.T) {
	// Two clients each hold root children [A, B]. Client 1 moves A after B;
	// client 2 concurrently moves B before A. Both clients apply the two
	// broadcasts in the relay's order and must end with identical trees.
	base := []tree.Node{
		{ID: "A", Kind: tree.KindSection, Order: 0},
		{ID: "B", Kind: tree.KindSection, Order: 1},
	}
	moveA := protocol.MoveElementPayload{ID: "A", ParentID: "", Order: 1}
	moveB := protocol.MoveElementPayload{ID: "B", ParentID: "", Order: 0}

	client1 := newTestDocument(t, base)
	client2 := newTestDocument(t, base)

	for _, d := range []*document{client1, client2} {
		d.applyMove(moveA)
		d.applyMove(moveB)
	}

	assert.Equal(t, client1.snapshot(), client2.snapshot())

	result := tree.Validate(client1.snapshot())
	assert.True(t, result.OK, "violations: %v", result.Errors)
}

func TestDocument_ApplyRemoteDispatch(t *testing.T) {
	d := newTestDocument(t, []tree.Node{
		{ID: "box-1", Kind: tree.KindBox},
	})

	createEnv := mustEnvelope(t, protocol.MessageElementCreate, protocol.ElementBroadcastPayload{
		Element: tree.Node{ID: "text-1", Kind: tree.KindText, ParentID: "box-1"},
	})
	require.NoError(t, d.applyRemote(createEnv))

	updateEnv := mustEnvelope(t, protocol.MessageElementUpdate, protocol.UpdateElementPayload{
		ID: "text-1", Content: strPtr("hi"),
	})
	require.NoError(t, d.applyRemote(updateEnv))

	moveEnv := mustEnvelope(t, protocol.MessageElementMove, protocol.MoveElementPayload{
		ID: "text-1", ParentID: "", Order: 0,
	})
	require.NoError(t, d.applyRemote(moveEnv))

	deleteEnv := mustEnvelope(t, protocol.MessageElementDelete, protocol.DeleteElementPayload{ID: "box-1"})
	require.NoError(t, d.applyRemote(deleteEnv))

	snapshot := d.snapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, "text-1", snapshot[0].ID)
	assert.Equal(t, "hi", snapshot[0].Content)
}
