// Package conversation manages one room's lifecycle over the shared
// realtime channel: slug resolution, join/leave pairing, and filtering of
// the multiplexed event stream down to this room.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/lunar-chat/lunar-cli/internal/api"
	"github.com/lunar-chat/lunar-cli/internal/realtime"
)

// ErrEmptyMessage rejects blank or whitespace-only outbound messages.
var ErrEmptyMessage = errors.New("message content is empty")

// excessNewlines collapses runs of three or more newlines to a double
// newline before sending (display normalization).
var excessNewlines = regexp.MustCompile(`\n{3,}`)

// RoomResolver resolves a human-readable slug to the Room entity.
// Implemented by *api.Client.
type RoomResolver interface {
	ResolveRoom(ctx context.Context, slug string) (*api.Room, error)
}

// Session is one conversation view's membership: Resolving -> Joined ->
// Left. Membership is per-connection on the server, so the join control
// message goes out once per connection (replayed after a reconnect), and a
// leave is sent if and only if a join went out on the live connection.
type Session struct {
	channel  *realtime.Channel
	router   *realtime.Router
	resolver RoomResolver

	mu        sync.Mutex
	room      *api.Room
	joined    bool
	closed    bool
	sub       *realtime.Subscription
	stopWatch func()
	onMessage func(api.Message)
}

// NewSession creates a Session over the shared channel and router.
func NewSession(channel *realtime.Channel, router *realtime.Router, resolver RoomResolver) *Session {
	return &Session{channel: channel, router: router, resolver: resolver}
}

// OnMessage sets the consumer for live messages belonging to this room.
// Must be called before Open.
func (s *Session) OnMessage(fn func(api.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = fn
}

// Open resolves the slug and joins the room. An unknown slug returns
// api.ErrNotFound and the session never joins. Events for other rooms
// delivered on the shared channel are silently ignored: the socket is
// multiplexed across every room the user has joined historically, so
// filtering on the resolved id is a correctness requirement.
func (s *Session) Open(ctx context.Context, slug string) (*api.Room, error) {
	room, err := s.resolver.ResolveRoom(ctx, slug)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("session already closed")
	}
	s.room = room
	s.sub = s.router.Subscribe(realtime.TypeNewMessage, s.handleNewMessage)
	s.mu.Unlock()

	// Join as soon as the channel is open. The server's room subscription
	// dies with the connection, so a drop resets the joined flag and the
	// next Open replays the join on the fresh socket.
	stopWatch := s.channel.OnStateChange(func(state realtime.State) {
		switch state {
		case realtime.StateOpen:
			s.tryJoin(context.Background())
		case realtime.StateClosed, realtime.StateIdle:
			s.mu.Lock()
			s.joined = false
			s.mu.Unlock()
		}
	})
	s.mu.Lock()
	s.stopWatch = stopWatch
	s.mu.Unlock()

	s.tryJoin(ctx)

	return room, nil
}

// Room returns the resolved room, nil before Open succeeds.
func (s *Session) Room() *api.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// tryJoin sends the join control message once per connection. The joined
// flag is set only when the send succeeds and is reset when the connection
// drops, keeping join/leave paired per connection epoch.
func (s *Session) tryJoin(ctx context.Context) {
	s.mu.Lock()
	if s.joined || s.closed || s.room == nil {
		s.mu.Unlock()
		return
	}
	room := s.room
	s.mu.Unlock()

	err := s.channel.Send(ctx, realtime.TypeJoinRoom, realtime.JoinRoomPayload{RoomID: room.ID.String()})
	if err != nil {
		if !errors.Is(err, realtime.ErrNotOpen) {
			slog.Debug("join send failed", "room", room.Slug, "error", err)
		}
		return
	}

	s.mu.Lock()
	s.joined = true
	s.mu.Unlock()
}

// handleNewMessage filters the shared new_message stream to this room.
func (s *Session) handleNewMessage(payload json.RawMessage) {
	var msg api.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		slog.Warn("dropping undecodable message payload", "error", err)
		return
	}

	s.mu.Lock()
	room := s.room
	onMessage := s.onMessage
	s.mu.Unlock()

	if room == nil || msg.RoomID != room.ID || onMessage == nil {
		return
	}
	onMessage(msg)
}

// SendMessage normalizes and sends a chat message to the room. Blank
// content is rejected; runs of 3+ newlines collapse to a double newline.
func (s *Session) SendMessage(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}
	content = excessNewlines.ReplaceAllString(content, "\n\n")

	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == nil {
		return fmt.Errorf("no room joined")
	}

	return s.channel.Send(ctx, realtime.TypeChatMessage, realtime.ChatMessagePayload{
		RoomID:  room.ID.String(),
		Content: content,
	})
}

// Close leaves the room and unsubscribes. The leave control message goes
// out only if the join did; it is best-effort and may be a no-op when the
// channel is currently closed. Close is idempotent.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	room := s.room
	wasJoined := s.joined
	s.joined = false
	sub := s.sub
	s.sub = nil
	stopWatch := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	if stopWatch != nil {
		stopWatch()
	}
	if wasJoined && room != nil {
		err := s.channel.Send(ctx, realtime.TypeLeaveRoom, realtime.LeaveRoomPayload{RoomID: room.ID.String()})
		if err != nil && !errors.Is(err, realtime.ErrNotOpen) {
			slog.Debug("leave send failed", "room", room.Slug, "error", err)
		}
	}
	if sub != nil {
		s.router.Unsubscribe(sub)
	}
}
