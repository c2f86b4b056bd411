// Package protocol defines the wire messages exchanged between sync clients
// and the relay. Every message travels inside an Envelope; the payload shape
// is determined by the envelope type.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// MessageType discriminates the kind of an envelope.
type MessageType string

const (
	MessageJoin          MessageType = "join"
	MessagePresence      MessageType = "presence"
	MessageElementCreate MessageType = "element:create"
	MessageElementUpdate MessageType = "element:update"
	MessageElementMove   MessageType = "element:move"
	MessageElementDelete MessageType = "element:delete"
	MessageSyncPage      MessageType = "sync:page"
	MessageError         MessageType = "error"
)

// IsElementOp reports whether the type is one of the element operations that
// mutate the document tree. Element ops require a completed join and are
// subject to outbound rate limiting.
func (t MessageType) IsElementOp() bool {
	switch t {
	case MessageElementCreate, MessageElementUpdate, MessageElementMove, MessageElementDelete:
		return true
	}
	return false
}

// Envelope is the uniform wire-message wrapper.
//
// RequestID is present only on messages expecting a reply. Timestamp is the
// sender's local clock in unix milliseconds and is never used for ordering;
// conflict resolution goes by relay delivery order.
type Envelope struct {
	Type      MessageType     `json:"type" validate:"required"`
	ProjectID string          `json:"projectId" validate:"required"`
	PageID    string          `json:"pageId" validate:"required"`
	UserID    string          `json:"userId,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

var validate = validator.New()

// NewEnvelope builds an envelope of the given type, marshalling payload into
// the wire body. A nil payload produces an empty body (used by sync:page).
func NewEnvelope(msgType MessageType, projectID, pageID string, payload any) (Envelope, error) {
	env := Envelope{
		Type:      msgType,
		ProjectID: projectID,
		PageID:    pageID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		body, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", msgType, err)
		}
		env.Payload = body
	}
	return env, nil
}

// DecodePayload unmarshals the envelope body into T and validates it against
// the payload's struct tags.
func DecodePayload[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return payload, fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
		}
	}
	if err := validate.Struct(&payload); err != nil {
		return payload, fmt.Errorf("invalid %s payload: %w", env.Type, err)
	}
	return payload, nil
}

// ValidateEnvelope checks the envelope's own required fields.
func ValidateEnvelope(env Envelope) error {
	if err := validate.Struct(&env); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	return nil
}
