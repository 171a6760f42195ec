package core

import "github.com/vovakirdan/socialchat-server/internal/store"

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventPresence carries the full online-user snapshot.
	EventPresence EventKind = iota
	// EventTyping relays a typing signal from another user.
	EventTyping
	// EventNewMessage delivers a freshly persisted message to its receiver.
	EventNewMessage
	// EventMessageDeleted tells a participant a message is gone.
	EventMessageDeleted
	// EventError notifies clients about a protocol error.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPresence:
		return "presence"
	case EventTyping:
		return "typing"
	case EventNewMessage:
		return "message"
	case EventMessageDeleted:
		return "message_deleted"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind      EventKind
	Presence  []PresenceEntry // EventPresence
	Typing    *TypingSignal   // EventTyping
	Message   *store.Message  // EventNewMessage
	MessageID int64           // EventMessageDeleted
	Error     *CoreError      // EventError
}

// TypingSignal is the relayed form of a typing command.
type TypingSignal struct {
	FromUserID int64
	IsTyping   bool
}

// NewMessageEvent wraps a persisted message for live delivery.
func NewMessageEvent(msg *store.Message) *Event {
	return &Event{Kind: EventNewMessage, Message: msg}
}

// MessageDeletedEvent builds a deletion notice.
func MessageDeletedEvent(messageID int64) *Event {
	return &Event{Kind: EventMessageDeleted, MessageID: messageID}
}

// ErrorEvent builds a protocol error notification.
func ErrorEvent(code, msg string) *Event {
	return &Event{Kind: EventError, Error: coreError(code, msg)}
}
