package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/lunar-chat/lunar-cli/internal/api"
	"github.com/lunar-chat/lunar-cli/internal/realtime"
)

type stubResolver map[string]*api.Room

func (r stubResolver) ResolveRoom(ctx context.Context, slug string) (*api.Room, error) {
	if room, ok := r[slug]; ok {
		return room, nil
	}
	return nil, fmt.Errorf("resolve room %q: %w", slug, api.ErrNotFound)
}

type staticTokens struct{ token string }

func (s *staticTokens) EnsureValid(ctx context.Context) (string, error) {
	return s.token, nil
}

// testBackend is a mock realtime server that records inbound envelopes and
// can push frames to the client. It accepts any number of consecutive
// connections; frames and pushes always target the most recent one.
type testBackend struct {
	t       *testing.T
	srv     *httptest.Server
	mu      sync.Mutex
	conn    *websocket.Conn
	accepts int
	frames  []realtime.Envelope
	ready   chan struct{}
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{t: t, ready: make(chan struct{})}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		b.mu.Lock()
		b.conn = conn
		b.accepts++
		if b.accepts == 1 {
			close(b.ready)
		}
		b.mu.Unlock()
		ctx := r.Context()
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			var env realtime.Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Errorf("server got invalid frame: %v", err)
				continue
			}
			b.mu.Lock()
			b.frames = append(b.frames, env)
			b.mu.Unlock()
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBackend) urlFor(token string) string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/?token=" + token
}

func (b *testBackend) push(t *testing.T, env any) {
	t.Helper()
	select {
	case <-b.ready:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted a connection")
	}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if err := conn.Write(context.Background(), websocket.MessageText, data); err != nil {
		t.Fatalf("push: %v", err)
	}
}

// drop closes the current connection from the server side, simulating a
// network failure.
func (b *testBackend) drop() {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusGoingAway, "drop")
	}
}

func (b *testBackend) connections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.accepts
}

func (b *testBackend) waitConnections(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.connections() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server never accepted %d connections (got %d)", n, b.connections())
}

func (b *testBackend) sent(eventType string) []realtime.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []realtime.Envelope
	for _, f := range b.frames {
		if f.Type == eventType {
			out = append(out, f)
		}
	}
	return out
}

func (b *testBackend) waitFor(t *testing.T, eventType string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(b.sent(eventType)) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("server never saw %d %s frames (got %d)", n, eventType, len(b.sent(eventType)))
}

func openChannel(t *testing.T, b *testBackend) (*realtime.Channel, *realtime.Router) {
	t.Helper()
	router := realtime.NewRouter()
	ch := realtime.NewChannel(&staticTokens{token: "tok"}, b.urlFor, router)
	t.Cleanup(ch.Close)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != realtime.StateOpen {
		if time.Now().After(deadline) {
			t.Fatal("channel never opened")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return ch, router
}

func TestOpenNotFound(t *testing.T) {
	b := newTestBackend(t)
	ch, router := openChannel(t, b)

	sess := NewSession(ch, router, stubResolver{})
	_, err := sess.Open(context.Background(), "nope")
	if !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// A session that never resolved must not have joined anything.
	sess.Close(context.Background())
	time.Sleep(20 * time.Millisecond)
	if got := len(b.sent(realtime.TypeJoinRoom)); got != 0 {
		t.Errorf("join frames sent for unresolved session: %d", got)
	}
	if got := len(b.sent(realtime.TypeLeaveRoom)); got != 0 {
		t.Errorf("leave frames sent for unresolved session: %d", got)
	}
}

func TestJoinLeavePairing(t *testing.T) {
	b := newTestBackend(t)
	ch, router := openChannel(t, b)

	roomID := uuid.New()
	resolver := stubResolver{"general": {ID: roomID, Slug: "general", Name: "General"}}

	sess := NewSession(ch, router, resolver)
	if _, err := sess.Open(context.Background(), "general"); err != nil {
		t.Fatalf("open: %v", err)
	}
	b.waitFor(t, realtime.TypeJoinRoom, 1)

	var join realtime.JoinRoomPayload
	if err := json.Unmarshal(b.sent(realtime.TypeJoinRoom)[0].Payload, &join); err != nil {
		t.Fatal(err)
	}
	if join.RoomID != roomID.String() {
		t.Errorf("join payload room: got %q, want %q", join.RoomID, roomID)
	}

	sess.Close(context.Background())
	sess.Close(context.Background()) // idempotent
	b.waitFor(t, realtime.TypeLeaveRoom, 1)

	joins := len(b.sent(realtime.TypeJoinRoom))
	leaves := len(b.sent(realtime.TypeLeaveRoom))
	if joins != 1 || leaves != 1 {
		t.Errorf("join/leave pairing: %d joins, %d leaves", joins, leaves)
	}
}

func TestFilteringAcrossSessions(t *testing.T) {
	b := newTestBackend(t)
	ch, router := openChannel(t, b)

	roomA := uuid.New()
	roomB := uuid.New()
	resolver := stubResolver{
		"alpha": {ID: roomA, Slug: "alpha", Name: "Alpha"},
		"beta":  {ID: roomB, Slug: "beta", Name: "Beta"},
	}

	gotA := make(chan api.Message, 1)
	gotB := make(chan api.Message, 1)

	sessA := NewSession(ch, router, resolver)
	sessA.OnMessage(func(m api.Message) { gotA <- m })
	if _, err := sessA.Open(context.Background(), "alpha"); err != nil {
		t.Fatal(err)
	}
	defer sessA.Close(context.Background())

	sessB := NewSession(ch, router, resolver)
	sessB.OnMessage(func(m api.Message) { gotB <- m })
	if _, err := sessB.Open(context.Background(), "beta"); err != nil {
		t.Fatal(err)
	}
	defer sessB.Close(context.Background())

	b.push(t, map[string]any{
		"type": realtime.TypeNewMessage,
		"payload": api.Message{
			ID:        uuid.New(),
			RoomID:    roomA,
			Content:   "hi",
			CreatedAt: time.Now(),
		},
	})

	select {
	case m := <-gotA:
		if m.Content != "hi" {
			t.Errorf("content: got %q", m.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("room A subscriber never received its message")
	}

	select {
	case m := <-gotB:
		t.Errorf("room B subscriber received a message for room A: %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRejoinAndDeliveryAfterReconnect(t *testing.T) {
	b := newTestBackend(t)
	router := realtime.NewRouter()
	ch := realtime.NewChannel(&staticTokens{token: "tok"}, b.urlFor, router)
	ch.ReconnectDelay = 10 * time.Millisecond
	t.Cleanup(ch.Close)
	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	roomID := uuid.New()
	resolver := stubResolver{"general": {ID: roomID, Slug: "general", Name: "General"}}

	got := make(chan api.Message, 1)
	sess := NewSession(ch, router, resolver)
	sess.OnMessage(func(m api.Message) { got <- m })
	if _, err := sess.Open(context.Background(), "general"); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer sess.Close(context.Background())
	b.waitFor(t, realtime.TypeJoinRoom, 1)

	// Server kills the connection; the channel redials and the session
	// must replay its join on the fresh socket.
	b.drop()
	b.waitConnections(t, 2)
	b.waitFor(t, realtime.TypeJoinRoom, 2)

	b.push(t, map[string]any{
		"type": realtime.TypeNewMessage,
		"payload": api.Message{
			ID:        uuid.New(),
			RoomID:    roomID,
			Content:   "back online",
			CreatedAt: time.Now(),
		},
	})

	select {
	case m := <-got:
		if m.Content != "back online" {
			t.Errorf("content: got %q", m.Content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered after reconnect")
	}
}

func TestJoinDeferredUntilChannelOpens(t *testing.T) {
	b := newTestBackend(t)
	router := realtime.NewRouter()
	ch := realtime.NewChannel(&staticTokens{token: "tok"}, b.urlFor, router)
	t.Cleanup(ch.Close)

	roomID := uuid.New()
	resolver := stubResolver{"general": {ID: roomID, Slug: "general", Name: "General"}}

	// Resolve while the channel is still idle: the join must wait.
	sess := NewSession(ch, router, resolver)
	if _, err := sess.Open(context.Background(), "general"); err != nil {
		t.Fatal(err)
	}
	if got := len(b.sent(realtime.TypeJoinRoom)); got != 0 {
		t.Fatalf("join sent before the channel opened")
	}

	if err := ch.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	b.waitFor(t, realtime.TypeJoinRoom, 1)

	sess.Close(context.Background())
	b.waitFor(t, realtime.TypeLeaveRoom, 1)
}

func TestSendMessageNormalization(t *testing.T) {
	b := newTestBackend(t)
	ch, router := openChannel(t, b)

	roomID := uuid.New()
	resolver := stubResolver{"general": {ID: roomID, Slug: "general", Name: "General"}}
	sess := NewSession(ch, router, resolver)
	if _, err := sess.Open(context.Background(), "general"); err != nil {
		t.Fatal(err)
	}
	defer sess.Close(context.Background())

	if err := sess.SendMessage(context.Background(), "   \n\t "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank message: got %v, want ErrEmptyMessage", err)
	}

	if err := sess.SendMessage(context.Background(), "a\n\n\n\nb\n\nc"); err != nil {
		t.Fatalf("send: %v", err)
	}
	b.waitFor(t, realtime.TypeChatMessage, 1)

	var payload realtime.ChatMessagePayload
	if err := json.Unmarshal(b.sent(realtime.TypeChatMessage)[0].Payload, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Content != "a\n\nb\n\nc" {
		t.Errorf("normalized content: got %q", payload.Content)
	}
	if payload.RoomID != roomID.String() {
		t.Errorf("room tag: got %q", payload.RoomID)
	}
}
