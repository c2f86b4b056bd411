package tree

// Editor commands composed from the engine primitives. These take the tree
// and the selected node id explicitly instead of reaching into shared editor
// state, so they stay independently testable.

// BringToFront moves the node to the end of its sibling list with an order
// value one past the current maximum. No-op when the id is absent.
func BringToFront(tree []Node, id string) []Node {
	node, ok := FindByID(tree, id)
	if !ok {
		return tree
	}
	siblings := siblingsOf(tree, node.ParentID)
	maxOrder := 0
	for i := range siblings {
		if siblings[i].Order > maxOrder {
			maxOrder = siblings[i].Order
		}
	}
	return MoveByID(tree, id, node.ParentID, maxOrder+1)
}

// SendToBack moves the node to the front of its sibling list at order 0.
// No-op when the id is absent.
func SendToBack(tree []Node, id string) []Node {
	node, ok := FindByID(tree, id)
	if !ok {
		return tree
	}
	return MoveByID(tree, id, node.ParentID, 0)
}

func siblingsOf(tree []Node, parentID string) []Node {
	if parentID == "" {
		return tree
	}
	parent, ok := FindByID(tree, parentID)
	if !ok {
		return nil
	}
	return parent.Children
}
