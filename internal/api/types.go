package api

import (
	"time"

	"github.com/google/uuid"
)

// User is the authenticated account as returned by /users/me and
// embedded as the sender of messages.
type User struct {
	ID            uuid.UUID `json:"id"`
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"emailVerified,omitempty"`
	AvatarURL     *string   `json:"avatarUrl,omitempty"`
}

// Room is a conversation entity. Slug is the human-readable identifier
// used in URLs; ID is the durable identifier used on the realtime wire.
type Room struct {
	ID   uuid.UUID `json:"id"`
	Slug string    `json:"slug"`
	Name string    `json:"name"`
}

// Message is a single chat message. RoomID tags which room the message
// belongs to; realtime delivery is multiplexed across rooms, so consumers
// must filter on it.
type Message struct {
	ID        uuid.UUID `json:"id"`
	RoomID    uuid.UUID `json:"roomID"`
	Content   string    `json:"content"`
	Sender    User      `json:"sender"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessagePage is one page of history, newest first. NextCursor is opaque;
// empty means no older page remains.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"nextCursor"`
}

// TokenResponse is returned by the auth endpoints that mint an access token.
// RefreshToken is also set as an HttpOnly cookie by the server; it is kept
// here so a CLI process can persist the session across invocations.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
