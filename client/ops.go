package client

import (
	"context"

	"github.com/google/uuid"

	"pagesync/domain/tree"
	"pagesync/protocol"
)

// Element operations. Each applies to the local tree immediately so the UI
// stays responsive, then sends the operation over the wire; the relay's
// broadcast reconciles the optimistic state against relay order.

// CreateElement creates a node and returns the acknowledged element. The id
// is assigned locally so the optimistic node and the broadcast agree.
func (c *Client) CreateElement(ctx context.Context, p protocol.CreateElementPayload) (tree.Node, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	node := tree.Node{
		ID:       p.ID,
		Kind:     p.Kind,
		ParentID: p.ParentID,
		Order:    p.Order,
		Content:  p.Content,
		Settings: p.Settings,
		Styles:   p.Styles,
	}
	c.doc.applyCreate(node)

	reply, err := c.Request(ctx, protocol.MessageElementCreate, p)
	if err != nil {
		return tree.Node{}, err
	}
	payload, err := protocol.DecodePayload[protocol.ElementBroadcastPayload](reply)
	if err != nil {
		return tree.Node{}, err
	}
	return payload.Element, nil
}

// UpdateElement applies a partial field update to a node.
func (c *Client) UpdateElement(ctx context.Context, p protocol.UpdateElementPayload) error {
	c.doc.applyUpdate(p)
	_, err := c.Request(ctx, protocol.MessageElementUpdate, p)
	return err
}

// MoveElement reparents or reorders a node; an empty ParentID targets the
// page root.
func (c *Client) MoveElement(ctx context.Context, p protocol.MoveElementPayload) error {
	c.doc.applyMove(p)
	_, err := c.Request(ctx, protocol.MessageElementMove, p)
	return err
}

// DeleteElement removes a node and its subtree.
func (c *Client) DeleteElement(ctx context.Context, p protocol.DeleteElementPayload) error {
	c.doc.applyDelete(p)
	_, err := c.Request(ctx, protocol.MessageElementDelete, p)
	return err
}

// Validate re-checks the local tree's structural invariants. Violations are
// reported, never auto-corrected; a caller seeing them typically forces a
// SyncPage.
func (c *Client) Validate() tree.ValidationResult {
	return tree.Validate(c.Tree())
}
