package realtime

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Envelope is the wire unit exchanged over the realtime channel.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Client -> server event types.
const (
	TypeJoinRoom    = "join_room"
	TypeLeaveRoom   = "leave_room"
	TypeChatMessage = "chat_message"
)

// Server -> client event types. The channel is multiplexed: new_message
// frames for every room the user has ever joined arrive on the same socket,
// and out-of-band types like incoming_call share it too.
const (
	TypeNewMessage   = "new_message"
	TypeIncomingCall = "incoming_call"
)

type JoinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type LeaveRoomPayload struct {
	RoomID string `json:"room_id"`
}

type ChatMessagePayload struct {
	RoomID  string `json:"room_id"`
	Content string `json:"content"`
}

// IncomingCallPayload announces a call; the media token is fetched
// separately via the HTTP API rather than trusted from the wire.
type IncomingCallPayload struct {
	CallerID   uuid.UUID `json:"caller_id"`
	CallerName string    `json:"caller_name"`
	RoomName   string    `json:"room_name"`
}
