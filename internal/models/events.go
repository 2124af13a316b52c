package models

import "time"

// Inbound event discriminators. Dispatch over these is a closed set; any
// other value is answered with an ErrorEvent and the connection stays open.
const (
	EventChatMessage = "chat_message"
	EventTyping      = "typing"
	EventReaction    = "reaction"
	EventPing        = "ping"
)

// Reaction actions accepted on an inbound reaction event.
const (
	ReactionActionAdd    = "add"
	ReactionActionRemove = "remove"
)

// InboundEnvelope carries only the type discriminator; the payload is
// re-unmarshalled into the variant struct for that type.
type InboundEnvelope struct {
	Type string `json:"type"`
}

// ChatMessageIn is the payload of a chat_message event.
type ChatMessageIn struct {
	Content string `json:"content"`
}

// TypingIn is the payload of a typing event.
type TypingIn struct {
	IsTyping bool `json:"is_typing"`
}

// ReactionIn is the payload of a reaction event.
type ReactionIn struct {
	MessageID int    `json:"message_id"`
	Emoji     string `json:"emoji"`
	Action    string `json:"action"`
}

// MessageView is the authoritative message shape broadcast to clients.
type MessageView struct {
	ID             int       `json:"id"`
	Content        string    `json:"content"`
	SenderID       int       `json:"sender_id"`
	SenderUsername string    `json:"sender_username,omitempty"`
	RoomID         int       `json:"room_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	IsEdited       bool      `json:"is_edited"`
}

// NewMessageEvent announces a persisted message to the room.
type NewMessageEvent struct {
	Type    string      `json:"type"`
	Message MessageView `json:"message"`
}

// TypingEvent relays typing status to the rest of the room.
type TypingEvent struct {
	Type     string `json:"type"`
	RoomID   int    `json:"room_id"`
	UserID   int    `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// ReactionEvent announces a persisted reaction change. ReactionID is set
// only on reaction_added.
type ReactionEvent struct {
	Type       string `json:"type"`
	MessageID  int    `json:"message_id"`
	UserID     int    `json:"user_id"`
	Emoji      string `json:"emoji"`
	ReactionID int    `json:"reaction_id,omitempty"`
}

// PresenceEvent announces a user joining or leaving a room.
type PresenceEvent struct {
	Type     string `json:"type"`
	RoomID   int    `json:"room_id"`
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// PongEvent answers an application-level ping.
type PongEvent struct {
	Type string `json:"type"`
}

// ErrorEvent is a local error reply to the offending sender only.
type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewMessageView builds the broadcast view of a persisted message.
func NewMessageView(msg Message, senderUsername string) MessageView {
	return MessageView{
		ID:             msg.ID,
		Content:        msg.Content,
		SenderID:       msg.SenderID,
		SenderUsername: senderUsername,
		RoomID:         msg.RoomID,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
		IsEdited:       msg.IsEdited,
	}
}
