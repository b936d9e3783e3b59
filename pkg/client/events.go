package client

import "github.com/termchat/termchat-client/pkg/protocol"

// EventKind classifies connection events.
type EventKind int

const (
	// EventStateChanged reports a ConnectionState transition. Err carries
	// the terminal reason when the new state is StateClosed.
	EventStateChanged EventKind = iota

	// EventDecodeError reports a frame that failed integrity or layout
	// checks. The frame is skipped; the connection stays up.
	EventDecodeError
)

// Event is delivered to the OnEvent callback.
type Event struct {
	Kind  EventKind
	State ConnectionState
	Err   error
}

// MessageHandler receives decoded inbound messages in arrival order.
type MessageHandler func(protocol.ChatMessage)

// EventHandler receives state transitions and per-frame decode errors. It
// may be called from the connection's internal goroutines.
type EventHandler func(Event)
