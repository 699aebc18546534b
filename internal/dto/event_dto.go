package dto

import "time"

// Push event names delivered on a user's personal channel.
const (
	EventUserOnline         = "user-online"
	EventUserOffline        = "user-offline"
	EventOnlineUsers        = "online-users"
	EventNewMessage         = "new-message"
	EventParticipantAdded   = "participant-added"
	EventParticipantRemoved = "participant-removed"
	EventMessagesRead       = "messages-read"
	EventUserTyping         = "user-typing"
	EventUserStopTyping     = "user-stop-typing"
)

// Client signal names. Signals are fire-and-forget and never acknowledged.
const (
	SignalJoinChat   = "join-chat"
	SignalLeaveChat  = "leave-chat"
	SignalTyping     = "typing"
	SignalTypingStop = "typing-stop"
)

// Event is the websocket frame pushed from server to client.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Signal is the websocket frame sent from client to server.
type Signal struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

// PresencePayload is carried by user-online and user-offline.
type PresencePayload struct {
	UserID string `json:"user_id"`
}

// OnlineUsersPayload is sent once to a freshly connected client.
type OnlineUsersPayload struct {
	UserIDs []string `json:"user_ids"`
}

// ParticipantAddedPayload is carried by participant-added.
type ParticipantAddedPayload struct {
	ChatID      string              `json:"chat_id"`
	Participant ParticipantResponse `json:"participant"`
}

// ParticipantRemovedPayload is carried by participant-removed.
type ParticipantRemovedPayload struct {
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// MessagesReadPayload is carried by messages-read.
type MessagesReadPayload struct {
	ChatID string    `json:"chat_id"`
	UserID string    `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// TypingPayload is carried by user-typing and user-stop-typing.
type TypingPayload struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// NewEvent wraps payload into a push frame.
func NewEvent(eventType string, payload interface{}) Event {
	return Event{Type: eventType, Payload: payload}
}
