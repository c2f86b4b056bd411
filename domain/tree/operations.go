package tree

// FindByID returns the node with the given id, searching depth-first in
// root-to-leaf order. The second return value reports whether it was found.
func FindByID(tree []Node, id string) (Node, bool) {
	for i := range tree {
		if tree[i].ID == id {
			return tree[i], true
		}
		if found, ok := FindByID(tree[i].Children, id); ok {
			return found, true
		}
	}
	return Node{}, false
}

// UpdateByID replaces exactly the node matching id with fn(node), recursing
// into containers. The input tree is returned unchanged when the id is absent.
func UpdateByID(tree []Node, id string, fn func(Node) Node) []Node {
	out, _ := updateByID(tree, id, fn)
	return out
}

func updateByID(tree []Node, id string, fn func(Node) Node) ([]Node, bool) {
	for i := range tree {
		if tree[i].ID == id {
			out := make([]Node, len(tree))
			copy(out, tree)
			out[i] = fn(tree[i])
			return out, true
		}
		if children, changed := updateByID(tree[i].Children, id, fn); changed {
			out := make([]Node, len(tree))
			copy(out, tree)
			out[i].Children = children
			return out, true
		}
	}
	return tree, false
}

// DeleteByID removes the node and its entire subtree from wherever it lives.
func DeleteByID(tree []Node, id string) []Node {
	out, _, _ := takeByID(tree, id)
	return out
}

// takeByID removes the node matching id and returns the remaining tree, the
// removed node, and whether it was found.
func takeByID(tree []Node, id string) ([]Node, Node, bool) {
	for i := range tree {
		if tree[i].ID == id {
			out := make([]Node, 0, len(tree)-1)
			out = append(out, tree[:i]...)
			out = append(out, tree[i+1:]...)
			return out, tree[i], true
		}
		if children, taken, ok := takeByID(tree[i].Children, id); ok {
			out := make([]Node, len(tree))
			copy(out, tree)
			out[i].Children = children
			return out, taken, true
		}
	}
	return tree, Node{}, false
}

// InsertAfterID inserts newNode as the next sibling of targetID at the same
// nesting level, recursing into containers when the target is not at this
// level. The tree is returned unchanged when the target id is absent.
func InsertAfterID(tree []Node, targetID string, newNode Node) []Node {
	out, _ := insertAfterID(tree, targetID, newNode)
	return out
}

func insertAfterID(tree []Node, targetID string, newNode Node) ([]Node, bool) {
	for i := range tree {
		if tree[i].ID == targetID {
			newNode.ParentID = tree[i].ParentID
			out := make([]Node, 0, len(tree)+1)
			out = append(out, tree[:i+1]...)
			out = append(out, newNode)
			out = append(out, tree[i+1:]...)
			return out, true
		}
		if children, changed := insertAfterID(tree[i].Children, targetID, newNode); changed {
			out := make([]Node, len(tree))
			copy(out, tree)
			out[i].Children = children
			return out, true
		}
	}
	return tree, false
}

// AddChildByID appends child to the root sequence when parentID is empty,
// otherwise to the named container's children. When the target exists but is
// not a container the tree is returned unchanged.
func AddChildByID(tree []Node, parentID string, child Node) []Node {
	if parentID == "" {
		child.ParentID = ""
		out := make([]Node, 0, len(tree)+1)
		out = append(out, tree...)
		return append(out, child)
	}
	return UpdateByID(tree, parentID, func(parent Node) Node {
		if !parent.Kind.IsContainer() {
			return parent
		}
		child.ParentID = parent.ID
		children := make([]Node, 0, len(parent.Children)+1)
		children = append(children, parent.Children...)
		parent.Children = append(children, child)
		return parent
	})
}

// SwapChildrenByID exchanges the positions (and order values) of two siblings
// under the same parent; parentID empty addresses the root sequence. It is a
// no-op when either id is missing or the two are not siblings there.
func SwapChildrenByID(tree []Node, parentID, idA, idB string) []Node {
	if parentID == "" {
		return swapSiblings(tree, idA, idB)
	}
	return UpdateByID(tree, parentID, func(parent Node) Node {
		parent.Children = swapSiblings(parent.Children, idA, idB)
		return parent
	})
}

func swapSiblings(siblings []Node, idA, idB string) []Node {
	ia, ib := -1, -1
	for i := range siblings {
		switch siblings[i].ID {
		case idA:
			ia = i
		case idB:
			ib = i
		}
	}
	if ia < 0 || ib < 0 {
		return siblings
	}
	out := make([]Node, len(siblings))
	copy(out, siblings)
	out[ia], out[ib] = out[ib], out[ia]
	out[ia].Order, out[ib].Order = out[ib].Order, out[ia].Order
	return out
}

// InsertAt inserts node into children at position, clamped to the sequence
// bounds. A negative or out-of-range position appends.
func InsertAt(children []Node, node Node, position int) []Node {
	if position < 0 || position > len(children) {
		position = len(children)
	}
	out := make([]Node, 0, len(children)+1)
	out = append(out, children[:position]...)
	out = append(out, node)
	return append(out, children[position:]...)
}

// MoveByID detaches the node and reattaches it under parentID (empty for the
// page root) at the given order position. The move is a no-op when the node is
// missing, the target parent is missing or not a container, or the target is
// inside the node's own subtree.
func MoveByID(tree []Node, id, parentID string, order int) []Node {
	rest, node, ok := takeByID(tree, id)
	if !ok {
		return tree
	}
	if parentID != "" {
		// Reject moves that would make a node its own ancestor.
		if _, inSubtree := FindByID(node.Children, parentID); inSubtree || parentID == id {
			return tree
		}
		parent, found := FindByID(rest, parentID)
		if !found || !parent.Kind.IsContainer() {
			return tree
		}
	}
	node.ParentID = parentID
	node.Order = order
	if parentID == "" {
		return InsertAt(rest, node, order)
	}
	return UpdateByID(rest, parentID, func(parent Node) Node {
		parent.Children = InsertAt(parent.Children, node, order)
		return parent
	})
}

// Flatten returns all nodes of the tree in pre-order.
func Flatten(tree []Node) []Node {
	var out []Node
	for i := range tree {
		out = append(out, tree[i])
		out = append(out, Flatten(tree[i].Children)...)
	}
	return out
}

// Depth returns the nesting depth of the node with the given id, with root
// nodes at depth 0, or -1 when the id is absent.
func Depth(tree []Node, id string) int {
	for i := range tree {
		if tree[i].ID == id {
			return 0
		}
		if d := Depth(tree[i].Children, id); d >= 0 {
			return d + 1
		}
	}
	return -1
}

// Path returns the ancestor chain of ids from the root down to and including
// the node, or an empty slice when the id is absent.
func Path(tree []Node, id string) []string {
	for i := range tree {
		if tree[i].ID == id {
			return []string{tree[i].ID}
		}
		if rest := Path(tree[i].Children, id); len(rest) > 0 {
			return append([]string{tree[i].ID}, rest...)
		}
	}
	return nil
}
