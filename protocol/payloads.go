package protocol

import (
	"pagesync/domain/tree"
)

// JoinPayload is sent once per page before any element operation.
type JoinPayload struct {
	PageID   string `json:"pageId" validate:"required"`
	UserName string `json:"userName,omitempty"`
}

// PresencePayload carries ephemeral per-user awareness state. Presence is
// fire-and-forget: never correlated, queued, retried, or rate limited.
type PresencePayload struct {
	UserID    string  `json:"userId" validate:"required"`
	UserName  string  `json:"userName,omitempty"`
	CursorX   float64 `json:"cursorX"`
	CursorY   float64 `json:"cursorY"`
	ElementID string  `json:"elementId,omitempty"`
}

// CreateElementPayload is the client request body for element:create. The
// relay assigns the id when the request omits one.
type CreateElementPayload struct {
	ID       string                     `json:"id,omitempty"`
	Kind     tree.Kind                  `json:"type" validate:"required"`
	Settings map[string]any             `json:"settings,omitempty"`
	Styles   map[string]tree.StyleProps `json:"styles,omitempty"`
	Order    int                        `json:"order"`
	ParentID string                     `json:"parentId,omitempty"`
	Content  string                     `json:"content,omitempty"`
}

// ElementBroadcastPayload is the relay's broadcast body for element:create,
// carrying the full created node.
type ElementBroadcastPayload struct {
	Element tree.Node `json:"element" validate:"required"`
}

// UpdateElementPayload carries a partial update of a node's mutable fields.
// Nil fields are left untouched; non-nil fields fully replace their target.
type UpdateElementPayload struct {
	ID           string                      `json:"id" validate:"required"`
	Settings     *map[string]any             `json:"settings,omitempty"`
	Styles       *map[string]tree.StyleProps `json:"styles,omitempty"`
	Content      *string                     `json:"content,omitempty"`
	StyleClasses *string                     `json:"computedStyleClasses,omitempty"`
}

// MoveElementPayload reparents or reorders a node. An empty parentId targets
// the page root.
type MoveElementPayload struct {
	ID       string `json:"id" validate:"required"`
	ParentID string `json:"parentId,omitempty"`
	Order    int    `json:"order"`
}

// DeleteElementPayload removes a node and its subtree.
type DeleteElementPayload struct {
	ID string `json:"id" validate:"required"`
}

// SyncUser describes a user currently present on the page.
type SyncUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// SyncPagePayload is the relay's reply to a sync:page pull. It carries the
// full authoritative node list and the users currently on the page; issuing
// sync:page after reconnect is the only recovery path for missed updates.
type SyncPagePayload struct {
	Elements []tree.Node `json:"elements"`
	Users    []SyncUser  `json:"users"`
	// PresenceTTLSeconds is the relay's presence eviction window. Zero means
	// the relay did not advertise one and the client keeps its own default.
	PresenceTTLSeconds int `json:"presenceTtlSeconds,omitempty"`
}
