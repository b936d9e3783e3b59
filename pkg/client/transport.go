package client

import (
	"context"
	"errors"
)

// ErrPeerClosed reports that the far end ended the session with an explicit
// close signal. Unlike a transport fault it does not trigger reconnection.
var ErrPeerClosed = errors.New("peer closed connection")

// Dialer opens transport connections to the relay endpoint. The production
// implementation is WebSocketDialer; tests substitute a deterministic
// in-memory dialer without touching the connection logic.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is one established message-oriented connection. Send and Receive
// carry whole frames; implementations apply their own write timeouts and
// report them as net.Error timeouts.
type Conn interface {
	// Send writes one frame.
	Send(data []byte) error

	// Receive blocks until the next frame arrives or the connection fails.
	Receive() ([]byte, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}
