package pubsub

import "context"

// Topics carrying message lifecycle events.
const (
	TopicMessageCreated = "message.created"
	TopicMessageDeleted = "message.deleted"
	TopicThreadDeleted  = "thread.deleted"
)

// AllTopics lists every topic the messaging service publishes to.
var AllTopics = []string{TopicMessageCreated, TopicMessageDeleted, TopicThreadDeleted}

// Message is the structure passed between components on the bus.
type Message struct {
	// Topic identifies the channel the message belongs to (e.g., "message.created").
	Topic string
	// Key groups related messages; the thread key for message events.
	Key string
	// Payload contains the JSON encoded event.
	Payload []byte
	// Metadata can contain arbitrary key-value pairs for context.
	Metadata map[string]string
}

// Handler defines the function signature for processing a received message.
type Handler func(ctx context.Context, msg Message) error

// Publisher defines the contract for sending messages to the bus.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

// Subscriber defines the contract for receiving messages from the bus.
type Subscriber interface {
	// Subscribe starts a background consumer for topic; it returns once the subscription is active.
	Subscribe(ctx context.Context, topic string, handler Handler) error
	Close() error
}
