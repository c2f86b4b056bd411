package client

import (
	"sync"

	"go.uber.org/zap"

	"pagesync/domain/tree"
	"pagesync/protocol"
)

// document owns the client's local copy of the page tree. Local commands
// apply here optimistically before the relay acknowledges; remote broadcasts
// apply in arrival order.
//
// Conflict resolution is deliberately coarse, at node granularity:
//
//   - update/update: the later arrival fully replaces the node's mutable
//     fields (last-relayed-wins, never the client timestamp)
//   - delete/update: delete wins; an update for a missing node is a no-op
//   - move/move: the node lands wherever the last applied move put it
type document struct {
	mu     sync.RWMutex
	nodes  []tree.Node
	logger *zap.Logger
}

func newDocument(logger *zap.Logger) *document {
	return &document{logger: logger}
}

// snapshot returns a deep copy of the current tree.
func (d *document) snapshot() []tree.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return tree.CloneTree(d.nodes)
}

// reset replaces the whole tree with the relay's authoritative elements.
func (d *document) reset(elements []tree.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = tree.CloneTree(elements)
	if result := tree.Validate(d.nodes); !result.OK {
		// Never auto-corrected; reported for the caller to act on.
		d.logger.Warn("Synced tree fails validation", zap.Strings("violations", result.Errors))
	}
}

// applyCreate inserts the node under its parent at its order position. A
// node with a known id is replaced in place, which makes replaying our own
// acknowledged create idempotent.
func (d *document) applyCreate(node tree.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := tree.FindByID(d.nodes, node.ID); exists {
		d.replaceLocked(node)
		return
	}
	if node.ParentID == "" {
		d.nodes = tree.InsertAt(d.nodes, node, node.Order)
		return
	}
	if parent, ok := tree.FindByID(d.nodes, node.ParentID); !ok || !parent.Kind.IsContainer() {
		d.logger.Debug("Dropping create for missing or leaf parent",
			zap.String("nodeID", node.ID),
			zap.String("parentID", node.ParentID),
		)
		return
	}
	order := node.Order
	d.nodes = tree.UpdateByID(d.nodes, node.ParentID, func(parent tree.Node) tree.Node {
		parent.Children = tree.InsertAt(parent.Children, node, order)
		return parent
	})
}

// replaceLocked swaps a node's mutable fields for the incoming ones, keeping
// its position and children. Caller holds the lock.
func (d *document) replaceLocked(node tree.Node) {
	d.nodes = tree.UpdateByID(d.nodes, node.ID, func(existing tree.Node) tree.Node {
		existing.Kind = node.Kind
		existing.Content = node.Content
		existing.Settings = node.Settings
		existing.Styles = node.Styles
		existing.StyleClasses = node.StyleClasses
		return existing
	})
}

// applyUpdate applies a partial field update. Missing target means the node
// was deleted concurrently: delete wins and the update is a no-op.
func (d *document) applyUpdate(p protocol.UpdateElementPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := tree.FindByID(d.nodes, p.ID); !ok {
		d.logger.Debug("Dropping update for deleted node", zap.String("nodeID", p.ID))
		return
	}
	d.nodes = tree.UpdateByID(d.nodes, p.ID, func(node tree.Node) tree.Node {
		if p.Settings != nil {
			node.Settings = *p.Settings
		}
		if p.Styles != nil {
			node.Styles = *p.Styles
		}
		if p.Content != nil {
			node.Content = *p.Content
		}
		if p.StyleClasses != nil {
			node.StyleClasses = *p.StyleClasses
		}
		return node
	})
}

// applyMove reattaches the node; the engine's id-addressed move keeps this
// well-defined even when two moves raced.
func (d *document) applyMove(p protocol.MoveElementPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = tree.MoveByID(d.nodes, p.ID, p.ParentID, p.Order)
}

// applyDelete removes the node and its subtree. Already gone is fine.
func (d *document) applyDelete(p protocol.DeleteElementPayload) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nodes = tree.DeleteByID(d.nodes, p.ID)
}

// applyRemote dispatches a decoded element broadcast onto the local tree.
func (d *document) applyRemote(env protocol.Envelope) error {
	switch env.Type {
	case protocol.MessageElementCreate:
		payload, err := protocol.DecodePayload[protocol.ElementBroadcastPayload](env)
		if err != nil {
			return err
		}
		d.applyCreate(payload.Element)
	case protocol.MessageElementUpdate:
		payload, err := protocol.DecodePayload[protocol.UpdateElementPayload](env)
		if err != nil {
			return err
		}
		d.applyUpdate(payload)
	case protocol.MessageElementMove:
		payload, err := protocol.DecodePayload[protocol.MoveElementPayload](env)
		if err != nil {
			return err
		}
		d.applyMove(payload)
	case protocol.MessageElementDelete:
		payload, err := protocol.DecodePayload[protocol.DeleteElementPayload](env)
		if err != nil {
			return err
		}
		d.applyDelete(payload)
	}
	return nil
}
