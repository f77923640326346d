// Package realtime owns the client's single multiplexed websocket: one
// connection per session, reconnected unconditionally after loss, with
// inbound envelopes fanned out through a typed router.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// DefaultReconnectDelay is the fixed delay before redialing after a close.
// The retry policy is unconditional (no backoff), bounded only by the
// session's lifetime: a cleared credential parks the channel at Idle.
const DefaultReconnectDelay = 3 * time.Second

// maxReadSize caps websocket frames at 1 MB. Chat envelopes are small JSON;
// anything larger is likely malformed.
const maxReadSize = 1 << 20

// ErrNotOpen is returned by Send when the channel is not Open. Sends are
// best-effort; callers that treat delivery as optional may ignore it.
var ErrNotOpen = errors.New("realtime channel is not open")

// State is the channel's connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// TokenSource supplies a valid credential for dialing. Implemented by
// *session.Broker.
type TokenSource interface {
	EnsureValid(ctx context.Context) (string, error)
}

// Channel owns the realtime socket. Exactly one live connection exists at
// a time; a dropped connection is destroyed and recreated, never reused.
type Channel struct {
	tokens TokenSource
	urlFor func(token string) string
	router *Router

	// ReconnectDelay may be lowered in tests. Read once per schedule.
	ReconnectDelay time.Duration

	mu             sync.Mutex
	state          State
	conn           *websocket.Conn
	readCancel     context.CancelFunc
	reconnectTimer *time.Timer
	shutdown       bool
	nextWatcherID  uint64
	watchers       []stateWatcher
}

type stateWatcher struct {
	id uint64
	fn func(State)
}

// NewChannel creates a Channel. urlFor renders the dial URL for a given
// access token (typically (*api.Client).WebSocketURL).
func NewChannel(tokens TokenSource, urlFor func(token string) string, router *Router) *Channel {
	return &Channel{
		tokens:         tokens,
		urlFor:         urlFor,
		router:         router,
		ReconnectDelay: DefaultReconnectDelay,
		state:          StateIdle,
	}
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// OnStateChange registers a callback invoked on every state transition and
// returns a function that unregisters it. Callbacks run outside the
// channel's lock.
func (c *Channel) OnStateChange(fn func(State)) (remove func()) {
	c.mu.Lock()
	c.nextWatcherID++
	id := c.nextWatcherID
	c.watchers = append(c.watchers, stateWatcher{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, w := range c.watchers {
			if w.id == id {
				c.watchers = append(c.watchers[:i:i], c.watchers[i+1:]...)
				return
			}
		}
	}
}

// snapshotWatchers copies the watcher list. Callers hold the lock.
func (c *Channel) snapshotWatchers() []stateWatcher {
	watchers := make([]stateWatcher, len(c.watchers))
	copy(watchers, c.watchers)
	return watchers
}

// setState transitions the state and notifies watchers. Must be called
// without the lock held.
func (c *Channel) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	watchers := c.snapshotWatchers()
	c.mu.Unlock()

	for _, w := range watchers {
		w.fn(s)
	}
}

// Connect opens the socket. It is a no-op when already Open or Connecting.
// Without a valid credential the channel stays Idle until one reappears.
// Dial failures follow the same recovery path as a dropped connection.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.shutdown || c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	watchers := c.snapshotWatchers()
	c.mu.Unlock()
	for _, w := range watchers {
		w.fn(StateConnecting)
	}

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil || token == "" {
		c.setState(StateIdle)
		if err != nil {
			return fmt.Errorf("no valid credential: %w", err)
		}
		return nil
	}

	conn, _, err := websocket.Dial(ctx, c.urlFor(token), nil)
	if err != nil {
		slog.Debug("realtime dial failed", "error", err)
		c.setState(StateClosed)
		c.scheduleReconnect()
		return fmt.Errorf("dial: %w", err)
	}
	conn.SetReadLimit(maxReadSize)

	readCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		cancel()
		_ = conn.CloseNow()
		return nil
	}
	c.conn = conn
	c.readCancel = cancel
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	c.setState(StateOpen)
	go c.readLoop(readCtx, conn)
	return nil
}

// readLoop decodes inbound frames and forwards them to the router. A frame
// that fails to decode is dropped and logged; it never takes the channel
// down. Any read error ends this connection's life.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.connectionLost(conn, err)
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			slog.Warn("dropping malformed realtime frame", "error", err)
			continue
		}
		c.router.Dispatch(env.Type, env.Payload)
	}
}

// connectionLost tears down one connection and schedules the redial. Stale
// notifications from an already-replaced connection are ignored.
func (c *Channel) connectionLost(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	shutdown := c.shutdown
	c.mu.Unlock()

	_ = conn.CloseNow()
	if shutdown {
		return
	}

	slog.Debug("realtime connection lost", "error", err)
	c.setState(StateClosed)
	c.scheduleReconnect()
}

// scheduleReconnect arms the redial timer unless one is already pending or
// the channel is shut down.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown || c.reconnectTimer != nil {
		return
	}
	delay := c.ReconnectDelay
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		c.mu.Unlock()
		_ = c.Connect(context.Background())
	})
}

// Send encodes one envelope and writes it. Only an Open channel writes;
// otherwise ErrNotOpen is returned and nothing is sent. Callers must not
// assume delivery.
func (c *Channel) Send(ctx context.Context, eventType string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()
	if !open || conn == nil {
		return ErrNotOpen
	}

	data, err := json.Marshal(struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}{Type: eventType, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("write %s: %w", eventType, err)
	}
	return nil
}

// Disconnect closes the socket and parks the channel at Idle without
// ending the session. Used when the credential is cleared; a later
// Connect restarts the machine.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.readCancel != nil {
		c.readCancel()
		c.readCancel = nil
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
	c.setState(StateIdle)
}

// Close tears the channel down for good: the socket is closed and the
// reconnect timer cleared, so no zombie timer can recreate a connection
// after intentional shutdown.
func (c *Channel) Close() {
	c.mu.Lock()
	c.shutdown = true
	c.mu.Unlock()
	c.Disconnect()
}
