package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode"
)

const (
	maxPayloadSize = 1024 * 1024 // 1MB max frame size
	maxIDLength    = 128
)

var (
	ErrEmptyFrame  = errors.New("empty frame")
	ErrMissingType = errors.New("frame has no type")
)

// Inbound is a frame received from a client. Only the fields relevant to its Type
// are populated.
type Inbound struct {
	Type string `json:"type"`

	Timestamp int64 `json:"timestamp,omitempty"`

	// Direct messages and typing.
	ReceiverID     string          `json:"receiverId,omitempty"`
	RelationshipID string          `json:"relationshipId,omitempty"`
	Content        string          `json:"content,omitempty"`
	Attachments    json.RawMessage `json:"attachments,omitempty"`
	MessageID      string          `json:"messageId,omitempty"`
	SenderID       string          `json:"senderId,omitempty"`

	// Game relay. Data is passed through verbatim.
	GameSessionID string          `json:"gameSessionId,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Encode marshals an outbound message into a JSON frame.
func Encode(msg any) ([]byte, error) {
	out, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	if len(out) > maxPayloadSize {
		return nil, fmt.Errorf("payload size %d exceeds maximum %d bytes", len(out), maxPayloadSize)
	}
	return out, nil
}

// Decode parses a client frame. The frame must be a JSON object with a non-empty type.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if len(data) == 0 {
		return in, ErrEmptyFrame
	}
	if len(data) > maxPayloadSize {
		return in, fmt.Errorf("payload size %d exceeds maximum %d bytes", len(data), maxPayloadSize)
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, fmt.Errorf("invalid frame: %w", err)
	}
	if in.Type == "" {
		return in, ErrMissingType
	}
	return in, nil
}

// ValidID reports whether s can be used as a user or game session id.
func ValidID(s string) bool {
	if s == "" || len(s) > maxIDLength {
		return false
	}
	for _, r := range s {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// HasData reports whether an opaque payload carries a value other than null.
func HasData(data json.RawMessage) bool {
	return len(data) > 0 && string(data) != "null"
}
