package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleTree builds:
//
//	section-1
//	  box-1
//	    text-1
//	    text-2
//	  image-1
//	section-2
//	  text-3
func sampleTree() []Node {
	return []Node{
		{
			ID: "section-1", Kind: KindSection, Order: 0,
			Children: []Node{
				{
					ID: "box-1", Kind: KindBox, ParentID: "section-1", Order: 0,
					Children: []Node{
						{ID: "text-1", Kind: KindText, ParentID: "box-1", Order: 0, Content: "hello"},
						{ID: "text-2", Kind: KindText, ParentID: "box-1", Order: 1, Content: "world"},
					},
				},
				{ID: "image-1", Kind: KindImage, ParentID: "section-1", Order: 1},
			},
		},
		{
			ID: "section-2", Kind: KindSection, Order: 1,
			Children: []Node{
				{ID: "text-3", Kind: KindText, ParentID: "section-2", Order: 0},
			},
		},
	}
}

func ids(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestFindByID_DepthFirstOrder(t *testing.T) {
	tr := sampleTree()

	node, ok := FindByID(tr, "text-2")
	require.True(t, ok)
	assert.Equal(t, "world", node.Content)
	assert.Equal(t, "box-1", node.ParentID)

	_, ok = FindByID(tr, "missing")
	assert.False(t, ok)
}

func TestUpdateByID_IdentityYieldsEqualTree(t *testing.T) {
	tr := sampleTree()

	updated := UpdateByID(tr, "text-1", func(n Node) Node { return n })

	assert.Equal(t, tr, updated)
}

func TestUpdateByID_DoesNotMutateInput(t *testing.T) {
	tr := sampleTree()

	updated := UpdateByID(tr, "text-1", func(n Node) Node {
		n.Content = "changed"
		return n
	})

	original, _ := FindByID(tr, "text-1")
	changed, _ := FindByID(updated, "text-1")
	assert.Equal(t, "hello", original.Content)
	assert.Equal(t, "changed", changed.Content)
}

func TestUpdateByID_AbsentIDIsNoOp(t *testing.T) {
	tr := sampleTree()

	updated := UpdateByID(tr, "missing", func(n Node) Node {
		n.Content = "changed"
		return n
	})

	assert.Equal(t, tr, updated)
}

func TestDeleteByID_RemovesEntireSubtree(t *testing.T) {
	tr := sampleTree()

	updated := DeleteByID(tr, "box-1")

	flat := ids(Flatten(updated))
	assert.NotContains(t, flat, "box-1")
	assert.NotContains(t, flat, "text-1")
	assert.NotContains(t, flat, "text-2")
	assert.Contains(t, flat, "image-1")

	section, _ := FindByID(updated, "section-1")
	assert.Len(t, section.Children, 1)
}

func TestInsertAfterID_InsertsAsNextSibling(t *testing.T) {
	tr := sampleTree()

	updated := InsertAfterID(tr, "text-1", Node{ID: "text-new", Kind: KindText})

	box, _ := FindByID(updated, "box-1")
	assert.Equal(t, []string{"text-1", "text-new", "text-2"}, ids(box.Children))

	inserted, _ := FindByID(updated, "text-new")
	assert.Equal(t, "box-1", inserted.ParentID)
}

func TestAddChildByID(t *testing.T) {
	tr := sampleTree()

	t.Run("empty parent appends to root", func(t *testing.T) {
		updated := AddChildByID(tr, "", Node{ID: "section-3", Kind: KindSection})
		assert.Equal(t, []string{"section-1", "section-2", "section-3"}, ids(updated))
	})

	t.Run("container parent appends to children", func(t *testing.T) {
		updated := AddChildByID(tr, "box-1", Node{ID: "text-new", Kind: KindText})
		box, _ := FindByID(updated, "box-1")
		assert.Equal(t, []string{"text-1", "text-2", "text-new"}, ids(box.Children))
	})

	t.Run("leaf parent is a no-op", func(t *testing.T) {
		updated := AddChildByID(tr, "text-1", Node{ID: "text-new", Kind: KindText})
		assert.Equal(t, tr, updated)
	})
}

func TestSwapChildrenByID_IsItsOwnInverse(t *testing.T) {
	tr := sampleTree()

	once := SwapChildrenByID(tr, "box-1", "text-1", "text-2")
	twice := SwapChildrenByID(once, "box-1", "text-1", "text-2")

	box, _ := FindByID(once, "box-1")
	assert.Equal(t, []string{"text-2", "text-1"}, ids(box.Children))
	assert.Equal(t, tr, twice)
}

func TestSwapChildrenByID_NonSiblingsIsNoOp(t *testing.T) {
	tr := sampleTree()

	updated := SwapChildrenByID(tr, "box-1", "text-1", "text-3")

	assert.Equal(t, tr, updated)
}

func TestInsertAt_ClampsPosition(t *testing.T) {
	children := []Node{{ID: "a", Kind: KindText}, {ID: "b", Kind: KindText}}

	assert.Equal(t, []string{"c", "a", "b"}, ids(InsertAt(children, Node{ID: "c", Kind: KindText}, 0)))
	assert.Equal(t, []string{"a", "c", "b"}, ids(InsertAt(children, Node{ID: "c", Kind: KindText}, 1)))
	assert.Equal(t, []string{"a", "b", "c"}, ids(InsertAt(children, Node{ID: "c", Kind: KindText}, 5)))
	assert.Equal(t, []string{"a", "b", "c"}, ids(InsertAt(children, Node{ID: "c", Kind: KindText}, -1)))
}

func TestMoveByID(t *testing.T) {
	t.Run("reparents under another container", func(t *testing.T) {
		tr := sampleTree()
		updated := MoveByID(tr, "text-3", "box-1", 1)

		box, _ := FindByID(updated, "box-1")
		assert.Equal(t, []string{"text-1", "text-3", "text-2"}, ids(box.Children))

		moved, _ := FindByID(updated, "text-3")
		assert.Equal(t, "box-1", moved.ParentID)

		section, _ := FindByID(updated, "section-2")
		assert.Empty(t, section.Children)
	})

	t.Run("move under own descendant is a no-op", func(t *testing.T) {
		tr := sampleTree()
		updated := MoveByID(tr, "section-1", "box-1", 0)
		assert.Equal(t, tr, updated)
	})

	t.Run("move under leaf is a no-op", func(t *testing.T) {
		tr := sampleTree()
		updated := MoveByID(tr, "box-1", "text-3", 0)
		assert.Equal(t, tr, updated)
	})

	t.Run("missing id is a no-op", func(t *testing.T) {
		tr := sampleTree()
		updated := MoveByID(tr, "missing", "", 0)
		assert.Equal(t, tr, updated)
	})
}

func TestFlatten_PreOrder(t *testing.T) {
	tr := sampleTree()

	flat := ids(Flatten(tr))

	assert.Equal(t, []string{"section-1", "box-1", "text-1", "text-2", "image-1", "section-2", "text-3"}, flat)
}

func TestDepthAndPath(t *testing.T) {
	tr := sampleTree()

	assert.Equal(t, 0, Depth(tr, "section-1"))
	assert.Equal(t, 2, Depth(tr, "text-2"))
	assert.Equal(t, -1, Depth(tr, "missing"))

	assert.Equal(t, []string{"section-1", "box-1", "text-2"}, Path(tr, "text-2"))
	assert.Empty(t, Path(tr, "missing"))
}

func TestOperationSequences_PreserveInvariants(t *testing.T) {
	tr := sampleTree()

	tr = InsertAfterID(tr, "image-1", Node{ID: "button-1", Kind: KindButton, Order: 2})
	tr = AddChildByID(tr, "section-2", Node{ID: "box-2", Kind: KindBox, Order: 1})
	tr = MoveByID(tr, "text-1", "box-2", 0)
	tr = SwapChildrenByID(tr, "section-1", "box-1", "image-1")
	tr = DeleteByID(tr, "text-2")
	tr = BringToFront(tr, "button-1")
	tr = SendToBack(tr, "section-2")

	result := Validate(tr)
	assert.True(t, result.OK, "invariant violations: %v", result.Errors)
}

func TestBringToFrontAndSendToBack(t *testing.T) {
	tr := sampleTree()

	front := BringToFront(tr, "text-1")
	box, _ := FindByID(front, "box-1")
	assert.Equal(t, []string{"text-2", "text-1"}, ids(box.Children))

	back := SendToBack(tr, "text-2")
	box, _ = FindByID(back, "box-1")
	assert.Equal(t, []string{"text-2", "text-1"}, ids(box.Children))
}
