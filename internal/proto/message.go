package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeTypingStart = "typing_start"
	InboundTypeTypingStop  = "typing_stop"
	InboundTypePing        = "ping"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventPresence       = "presence"
	EventTyping         = "typing"
	EventNewMessage     = "message"
	EventMessageDeleted = "message_deleted"
	EventPong           = "pong"
)

// TypingData addresses a typing signal to another user.
type TypingData struct {
	ToUserID int64 `json:"to_user_id"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// User is the public profile of an account.
type User struct {
	ID         int64  `json:"id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	ProfileImg string `json:"profile_img,omitempty"`
}

// PresenceEntry is one online user.
type PresenceEntry struct {
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Name       string `json:"name"`
	ProfileImg string `json:"profile_img,omitempty"`
}

// EventPresenceData carries the complete online set.
type EventPresenceData struct {
	Users []PresenceEntry `json:"users"`
}

// EventTypingData relays a typing signal.
type EventTypingData struct {
	FromUserID int64 `json:"from_user_id"`
	IsTyping   bool  `json:"is_typing"`
}

// Attachment is a media reference of a message.
type Attachment struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Message is a direct message as clients see it, over both REST and the socket.
type Message struct {
	ID          int64        `json:"id"`
	SenderID    int64        `json:"sender_id"`
	ReceiverID  int64        `json:"receiver_id"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments"`
	Seen        bool         `json:"seen"`
	CreatedAt   time.Time    `json:"created_at"`
}

// EventMessageDeletedData tells a participant a message is gone.
type EventMessageDeletedData struct {
	MessageID int64 `json:"message_id"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
