// Package client implements the chat client's relay connection: a single
// logical, automatically reconnecting connection that encrypts everything it
// sends and decrypts everything it receives.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/termchat/termchat-client/pkg/config"
	"github.com/termchat/termchat-client/pkg/crypto"
	"github.com/termchat/termchat-client/pkg/protocol"
)

var (
	ErrNotConnected     = errors.New("not connected")
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendFailed       = errors.New("send failed")
	ErrSendTimeout      = errors.New("send timed out")
)

// MessageStore persists messages as they flow through the connection. The
// storage package provides the canonical implementation.
type MessageStore interface {
	Save(msg protocol.ChatMessage, outgoing bool) error
}

// ChatConnection drives one encrypted connection to the relay endpoint. It
// owns its Transport handle, its state, and the session key it was given;
// the key is destroyed when the connection closes.
//
// Set OnMessage and OnEvent before calling Connect; they are invoked from
// the connection's internal goroutines.
type ChatConnection struct {
	// OnMessage receives every successfully decoded inbound message, in
	// strict arrival order.
	OnMessage MessageHandler

	// OnEvent receives state transitions and per-frame decode errors.
	OnEvent EventHandler

	url            string
	policy         ReconnectPolicy
	autoReconnect  bool
	connectTimeout time.Duration

	key   *crypto.Key
	codec *protocol.Codec

	dialer Dialer
	log    zerolog.Logger

	store MessageStore

	state atomic.Int32

	mu          sync.Mutex
	conn        Conn
	gen         uint64 // connection generation; stale receive loops detect replacement
	terminalErr error
	stateWait   chan struct{} // closed and replaced on every state change

	closed    chan struct{}
	closeOnce sync.Once
}

// NewChatConnection creates a connection from a resolved configuration and a
// session key. The configuration is captured at construction; the default
// transport is WebSocket.
func NewChatConnection(cfg config.Config, key *crypto.Key, logger zerolog.Logger) *ChatConnection {
	c := &ChatConnection{
		url:            cfg.ServerURL,
		policy:         policyFromConfig(cfg),
		autoReconnect:  cfg.AutoReconnect,
		connectTimeout: cfg.ConnectTimeout.Std(),
		key:            key,
		codec:          protocol.NewCodec(key),
		log:            logger.With().Str("component", "connection").Logger(),
		dialer: &WebSocketDialer{
			HandshakeTimeout: cfg.ConnectTimeout.Std(),
			WriteTimeout:     cfg.WriteTimeout.Std(),
			PingInterval:     cfg.PingInterval.Std(),
		},
		closed:    make(chan struct{}),
		stateWait: make(chan struct{}),
	}
	c.state.Store(int32(StateDisconnected))
	return c
}

// SetDialer replaces the transport dialer. Must be called before Connect.
func (c *ChatConnection) SetDialer(d Dialer) {
	c.dialer = d
}

// AttachStore attaches a message store that records traffic as it flows.
func (c *ChatConnection) AttachStore(s MessageStore) {
	c.store = s
}

// State returns the current connection state.
func (c *ChatConnection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Connected reports whether the connection is currently established.
func (c *ChatConnection) Connected() bool {
	return c.State() == StateConnected
}

// Connect establishes the connection. It returns immediately when already
// Connected or Connecting, and otherwise blocks until the connection is
// established or the reconnect budget is spent. While a background redial
// is in flight, Connect waits for that episode's outcome instead of
// reporting success early. A spent budget, or Connect after Close, fails
// with ErrConnectionClosed.
func (c *ChatConnection) Connect(ctx context.Context) error {
	for {
		switch c.State() {
		case StateClosed:
			return c.closedError()
		case StateConnected, StateConnecting:
			return nil
		case StateReconnecting:
			settled, err := c.awaitOutcome(ctx)
			if err != nil {
				return err
			}
			switch settled {
			case StateConnected:
				return nil
			case StateClosed:
				return c.closedError()
			}
			// The episode ended back at Disconnected; re-examine
		case StateDisconnected:
			if c.transition(StateDisconnected, StateConnecting) {
				return c.establish(ctx)
			}
			// Lost a race with another caller; re-examine
		}
	}
}

// awaitOutcome blocks until the in-flight connect or reconnect episode
// settles: Connected, Closed, or back at Disconnected after a cancelled
// initial connect.
func (c *ChatConnection) awaitOutcome(ctx context.Context) (ConnectionState, error) {
	for {
		c.mu.Lock()
		ch := c.stateWait
		c.mu.Unlock()

		switch s := c.State(); s {
		case StateConnected, StateClosed, StateDisconnected:
			return s, nil
		}

		select {
		case <-ch:
		case <-c.closed:
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
}

// establish drives Connecting→Connected, retrying with backoff under the
// policy. The caller has already moved the state to Connecting.
func (c *ChatConnection) establish(ctx context.Context) error {
	failures := 0

	for {
		conn, err := c.dialOnce(ctx)
		if err == nil {
			if !c.install(conn) {
				return c.closedError()
			}
			return nil
		}

		failures++
		c.log.Warn().Err(err).Int("attempt", failures).Msg("connect failed")

		if c.policy.exhausted(failures) {
			reason := fmt.Errorf("%w: %d connect attempts failed, last error: %v",
				ErrConnectionClosed, failures, err)
			c.closeWithReason(reason)
			return reason
		}

		if !c.setState(StateReconnecting) {
			return c.closedError()
		}

		select {
		case <-time.After(c.policy.delay(failures - 1)):
		case <-c.closed:
			return c.closedError()
		case <-ctx.Done():
			c.setState(StateDisconnected)
			return ctx.Err()
		}

		if !c.setState(StateConnecting) {
			return c.closedError()
		}
	}
}

// redial re-establishes the connection after an unexpected drop. Runs in its
// own goroutine; the state is already Reconnecting.
func (c *ChatConnection) redial() {
	failures := 0

	for {
		select {
		case <-time.After(c.policy.delay(failures)):
		case <-c.closed:
			return
		}

		if !c.setState(StateConnecting) {
			return
		}

		conn, err := c.dialOnce(context.Background())
		if err == nil {
			if c.install(conn) {
				c.log.Info().Msg("reconnected")
			}
			return
		}

		failures++
		c.log.Warn().Err(err).Int("attempt", failures).Msg("reconnect failed")

		if c.policy.exhausted(failures) {
			c.closeWithReason(fmt.Errorf("%w: %d reconnect attempts failed, last error: %v",
				ErrConnectionClosed, failures, err))
			return
		}

		if !c.setState(StateReconnecting) {
			return
		}
	}
}

func (c *ChatConnection) dialOnce(ctx context.Context) (Conn, error) {
	if c.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()
	}
	return c.dialer.Dial(ctx, c.url)
}

// install makes conn the live transport and starts its receive loop.
// Returns false when the connection was closed concurrently, in which case
// conn is released.
func (c *ChatConnection) install(conn Conn) bool {
	c.mu.Lock()
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	if !c.setState(StateConnected) {
		conn.Close()
		return false
	}

	go c.receiveLoop(conn, gen)

	c.log.Info().Str("url", c.url).Msg("connected to relay")
	return true
}

// receiveLoop reads, decodes, and delivers inbound frames until the
// transport fails or the connection closes. Decode failures are reported
// and skipped; only transport-level read failures end the loop.
func (c *ChatConnection) receiveLoop(conn Conn, gen uint64) {
	for {
		frame, err := conn.Receive()
		if err != nil {
			select {
			case <-c.closed:
			default:
				if errors.Is(err, ErrPeerClosed) {
					c.closeWithReason(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
				} else {
					c.handleTransportFailure(conn, gen, err)
				}
			}
			return
		}

		msg, err := c.codec.DecodeFrame(frame)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping undecodable frame")
			c.emit(Event{Kind: EventDecodeError, State: c.State(), Err: err})
			continue
		}

		if c.store != nil {
			if err := c.store.Save(msg, false); err != nil {
				c.log.Warn().Err(err).Msg("failed to store inbound message")
			}
		}

		if c.OnMessage != nil {
			c.OnMessage(msg)
		}
	}
}

// Send encrypts and writes one message. It fails with ErrNotConnected
// outside the Connected state and never retries: a transport failure
// surfaces as ErrSendFailed or ErrSendTimeout and moves the connection to
// Reconnecting, leaving any resend decision to the caller.
func (c *ChatConnection) Send(msg protocol.ChatMessage) error {
	switch c.State() {
	case StateConnected:
	case StateClosed:
		return c.closedError()
	default:
		return ErrNotConnected
	}

	frame, err := c.codec.EncodeFrame(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn, gen := c.conn, c.gen
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	if err := conn.Send(frame); err != nil {
		c.handleTransportFailure(conn, gen, err)
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrSendTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	if c.store != nil {
		if err := c.store.Save(msg, true); err != nil {
			c.log.Warn().Err(err).Msg("failed to store outbound message")
		}
	}

	return nil
}

// handleTransportFailure tears down the failed transport and, when policy
// allows, starts the reconnect path. Duplicate reports for the same or an
// already-replaced connection are ignored.
func (c *ChatConnection) handleTransportFailure(conn Conn, gen uint64, err error) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.mu.Unlock()

	conn.Close()

	if !c.transition(StateConnected, StateReconnecting) {
		return
	}

	if !c.autoReconnect {
		c.closeWithReason(fmt.Errorf("%w: transport failed and reconnect is disabled: %v",
			ErrConnectionClosed, err))
		return
	}

	c.log.Warn().Err(err).Msg("connection lost, reconnecting")
	go c.redial()
}

// Close shuts the connection down from any state. It is idempotent, cancels
// any pending backoff wait, releases the transport, and destroys the
// session key.
func (c *ChatConnection) Close() error {
	c.closeWithReason(nil)
	return nil
}

func (c *ChatConnection) closeWithReason(reason error) {
	c.closeOnce.Do(func() {
		old := ConnectionState(c.state.Swap(int32(StateClosed)))

		c.mu.Lock()
		c.terminalErr = reason
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		close(c.closed)

		if conn != nil {
			conn.Close()
		}

		c.key.Destroy()

		if old != StateClosed {
			c.emit(Event{Kind: EventStateChanged, State: StateClosed, Err: reason})
		}

		evt := c.log.Info()
		if reason != nil {
			evt = c.log.Warn().Err(reason)
		}
		evt.Msg("connection closed")
	})
}

// closedError returns the terminal reason when one was recorded, otherwise
// plain ErrConnectionClosed.
func (c *ChatConnection) closedError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminalErr != nil {
		return c.terminalErr
	}
	return ErrConnectionClosed
}

// setState moves to the given state unless the connection is Closed.
// Returns false once Closed; Closed is terminal and never overwritten.
func (c *ChatConnection) setState(to ConnectionState) bool {
	for {
		cur := c.state.Load()
		if ConnectionState(cur) == StateClosed {
			return false
		}
		if c.state.CompareAndSwap(cur, int32(to)) {
			if ConnectionState(cur) != to {
				c.notifyStateChange()
				c.emit(Event{Kind: EventStateChanged, State: to})
			}
			return true
		}
	}
}

// transition moves from one specific state to another.
func (c *ChatConnection) transition(from, to ConnectionState) bool {
	if c.state.CompareAndSwap(int32(from), int32(to)) {
		c.notifyStateChange()
		c.emit(Event{Kind: EventStateChanged, State: to})
		return true
	}
	return false
}

// notifyStateChange wakes every awaitOutcome waiter. Waiters capture the
// channel before reading the state, so a change between those two steps is
// never missed.
func (c *ChatConnection) notifyStateChange() {
	c.mu.Lock()
	close(c.stateWait)
	c.stateWait = make(chan struct{})
	c.mu.Unlock()
}

func (c *ChatConnection) emit(e Event) {
	if c.OnEvent != nil {
		c.OnEvent(e)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
