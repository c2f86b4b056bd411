// Package pages holds the relay's authoritative in-memory state for every
// open page. Persistence beyond process lifetime is out of scope here;
// clients recover through sync:page, never through the store's history.
package pages

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pagesync/domain/tree"
	apperrors "pagesync/pkg/errors"
	"pagesync/protocol"
)

// Store owns the document tree and present-user set per (project, page).
type Store struct {
	mu     sync.RWMutex
	pages  map[string]*pageState
	logger *zap.Logger
}

type pageState struct {
	elements []tree.Node
	users    map[string]protocol.SyncUser
}

// NewStore creates an empty page store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		pages:  make(map[string]*pageState),
		logger: logger,
	}
}

func pageKey(projectID, pageID string) string {
	return projectID + "/" + pageID
}

func (s *Store) page(projectID, pageID string) *pageState {
	key := pageKey(projectID, pageID)
	p, ok := s.pages[key]
	if !ok {
		p = &pageState{users: make(map[string]protocol.SyncUser)}
		s.pages[key] = p
	}
	return p
}

// Join records a user as present on the page.
func (s *Store) Join(projectID, pageID string, user protocol.SyncUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page(projectID, pageID).users[user.UserID] = user
}

// Leave removes a user from the page's present set.
func (s *Store) Leave(projectID, pageID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[pageKey(projectID, pageID)]; ok {
		delete(p.users, userID)
	}
}

// Snapshot returns the full sync:page reply body for a page.
func (s *Store) Snapshot(projectID, pageID string) protocol.SyncPagePayload {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[pageKey(projectID, pageID)]
	if !ok {
		return protocol.SyncPagePayload{Elements: []tree.Node{}, Users: []protocol.SyncUser{}}
	}
	users := make([]protocol.SyncUser, 0, len(p.users))
	for _, u := range p.users {
		users = append(users, u)
	}
	return protocol.SyncPagePayload{
		Elements: tree.CloneTree(p.elements),
		Users:    users,
	}
}

// Apply validates and applies one element operation to the page tree and
// returns the envelope to broadcast to every participant. The returned
// envelope preserves the request id so the originator's pending future
// settles off the same broadcast everyone else receives.
func (s *Store) Apply(env protocol.Envelope) (protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.page(env.ProjectID, env.PageID)

	var (
		next      []tree.Node
		broadcast protocol.Envelope
		err       error
	)
	switch env.Type {
	case protocol.MessageElementCreate:
		next, broadcast, err = s.applyCreate(p, env)
	case protocol.MessageElementUpdate:
		next, broadcast, err = s.applyUpdate(p, env)
	case protocol.MessageElementMove:
		next, broadcast, err = s.applyMove(p, env)
	case protocol.MessageElementDelete:
		next, broadcast, err = s.applyDelete(p, env)
	default:
		return protocol.Envelope{}, apperrors.NewValidation(fmt.Sprintf("%s is not an element operation", env.Type))
	}
	if err != nil {
		return protocol.Envelope{}, err
	}

	// The store never lets an accepted operation break the tree invariants.
	if result := tree.Validate(next); !result.OK {
		s.logger.Error("Operation would corrupt page tree",
			zap.String("type", string(env.Type)),
			zap.Strings("violations", result.Errors),
		)
		return protocol.Envelope{}, apperrors.NewValidation("operation violates tree invariants")
	}

	p.elements = next
	broadcast.RequestID = env.RequestID
	broadcast.UserID = env.UserID
	return broadcast, nil
}

func (s *Store) applyCreate(p *pageState, env protocol.Envelope) ([]tree.Node, protocol.Envelope, error) {
	payload, err := protocol.DecodePayload[protocol.CreateElementPayload](env)
	if err != nil {
		return nil, protocol.Envelope{}, apperrors.NewValidation(err.Error())
	}
	if payload.ID == "" {
		payload.ID = uuid.New().String()
	}
	if _, exists := tree.FindByID(p.elements, payload.ID); exists {
		return nil, protocol.Envelope{}, apperrors.NewValidation(fmt.Sprintf("element %s already exists", payload.ID))
	}
	if payload.ParentID != "" {
		parent, ok := tree.FindByID(p.elements, payload.ParentID)
		if !ok {
			return nil, protocol.Envelope{}, apperrors.NewNotFound(fmt.Sprintf("parent %s not found", payload.ParentID))
		}
		if !parent.Kind.IsContainer() {
			return nil, protocol.Envelope{}, apperrors.NewValidation(fmt.Sprintf("parent %s is not a container", payload.ParentID))
		}
	}

	node := tree.Node{
		ID:       payload.ID,
		Kind:     payload.Kind,
		ParentID: payload.ParentID,
		Order:    payload.Order,
		Content:  payload.Content,
		Settings: payload.Settings,
		Styles:   payload.Styles,
	}
	var next []tree.Node
	if node.ParentID == "" {
		next = tree.InsertAt(p.elements, node, node.Order)
	} else {
		order := node.Order
		next = tree.UpdateByID(p.elements, node.ParentID, func(parent tree.Node) tree.Node {
			parent.Children = tree.InsertAt(parent.Children, node, order)
			return parent
		})
	}

	broadcast, err := protocol.NewEnvelope(env.Type, env.ProjectID, env.PageID, protocol.ElementBroadcastPayload{Element: node})
	return next, broadcast, err
}

func (s *Store) applyUpdate(p *pageState, env protocol.Envelope) ([]tree.Node, protocol.Envelope, error) {
	payload, err := protocol.DecodePayload[protocol.UpdateElementPayload](env)
	if err != nil {
		return nil, protocol.Envelope{}, apperrors.NewValidation(err.Error())
	}
	if _, ok := tree.FindByID(p.elements, payload.ID); !ok {
		return nil, protocol.Envelope{}, apperrors.NewNotFound(fmt.Sprintf("element %s not found", payload.ID))
	}
	next := tree.UpdateByID(p.elements, payload.ID, func(node tree.Node) tree.Node {
		if payload.Settings != nil {
			node.Settings = *payload.Settings
		}
		if payload.Styles != nil {
			node.Styles = *payload.Styles
		}
		if payload.Content != nil {
			node.Content = *payload.Content
		}
		if payload.StyleClasses != nil {
			node.StyleClasses = *payload.StyleClasses
		}
		return node
	})

	broadcast, err := protocol.NewEnvelope(env.Type, env.ProjectID, env.PageID, payload)
	return next, broadcast, err
}

func (s *Store) applyMove(p *pageState, env protocol.Envelope) ([]tree.Node, protocol.Envelope, error) {
	payload, err := protocol.DecodePayload[protocol.MoveElementPayload](env)
	if err != nil {
		return nil, protocol.Envelope{}, apperrors.NewValidation(err.Error())
	}
	node, ok := tree.FindByID(p.elements, payload.ID)
	if !ok {
		return nil, protocol.Envelope{}, apperrors.NewNotFound(fmt.Sprintf("element %s not found", payload.ID))
	}
	if payload.ParentID != "" {
		if payload.ParentID == payload.ID {
			return nil, protocol.Envelope{}, apperrors.NewValidation("element cannot be its own parent")
		}
		if _, inside := tree.FindByID(node.Children, payload.ParentID); inside {
			return nil, protocol.Envelope{}, apperrors.NewValidation("element cannot move under its own descendant")
		}
		parent, ok := tree.FindByID(p.elements, payload.ParentID)
		if !ok {
			return nil, protocol.Envelope{}, apperrors.NewNotFound(fmt.Sprintf("parent %s not found", payload.ParentID))
		}
		if !parent.Kind.IsContainer() {
			return nil, protocol.Envelope{}, apperrors.NewValidation(fmt.Sprintf("parent %s is not a container", payload.ParentID))
		}
	}
	next := tree.MoveByID(p.elements, payload.ID, payload.ParentID, payload.Order)

	broadcast, err := protocol.NewEnvelope(env.Type, env.ProjectID, env.PageID, payload)
	return next, broadcast, err
}

func (s *Store) applyDelete(p *pageState, env protocol.Envelope) ([]tree.Node, protocol.Envelope, error) {
	payload, err := protocol.DecodePayload[protocol.DeleteElementPayload](env)
	if err != nil {
		return nil, protocol.Envelope{}, apperrors.NewValidation(err.Error())
	}
	if _, ok := tree.FindByID(p.elements, payload.ID); !ok {
		return nil, protocol.Envelope{}, apperrors.NewNotFound(fmt.Sprintf("element %s not found", payload.ID))
	}
	next := tree.DeleteByID(p.elements, payload.ID)

	broadcast, err := protocol.NewEnvelope(env.Type, env.ProjectID, env.PageID, payload)
	return next, broadcast, err
}
