package protocol

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Protocol constants
const (
	// Protocol version
	ProtocolVersion uint16 = 0x0001

	// Maximum message body size (64 KiB)
	MaxBodySize = 64 * 1024

	// Maximum sender identity size
	MaxSenderSize = 255
)

var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrInvalidEnvelope    = errors.New("invalid envelope")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrMessageTooLarge    = errors.New("message exceeds size limits")
)

// MessageType represents the kind of chat message
type MessageType uint8

const (
	MessageTypeText     MessageType = 0x00
	MessageTypeSystem   MessageType = 0x01
	MessageTypePresence MessageType = 0x02
)

// String returns the string representation of MessageType
func (t MessageType) String() string {
	switch t {
	case MessageTypeText:
		return "TEXT"
	case MessageTypeSystem:
		return "SYSTEM"
	case MessageTypePresence:
		return "PRESENCE"
	default:
		return "UNKNOWN"
	}
}

// known reports whether the type is one this client version understands.
func (t MessageType) known() bool {
	switch t {
	case MessageTypeText, MessageTypeSystem, MessageTypePresence:
		return true
	}
	return false
}

// ChatMessage is one logical chat record. Values are immutable after
// creation; construct outgoing messages with NewTextMessage or friends.
type ChatMessage struct {
	ID        uuid.UUID
	Type      MessageType
	Timestamp time.Time
	Sender    string
	Body      string
}

// NewTextMessage creates an outgoing text message stamped with a fresh ID
// and the current time.
func NewTextMessage(sender, body string) ChatMessage {
	return newMessage(MessageTypeText, sender, body)
}

// NewSystemMessage creates a system message.
func NewSystemMessage(sender, body string) ChatMessage {
	return newMessage(MessageTypeSystem, sender, body)
}

// NewPresenceMessage creates a presence message.
func NewPresenceMessage(sender, body string) ChatMessage {
	return newMessage(MessageTypePresence, sender, body)
}

func newMessage(t MessageType, sender, body string) ChatMessage {
	return ChatMessage{
		ID:        uuid.New(),
		Type:      t,
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
		Sender:    sender,
		Body:      body,
	}
}
