package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// MessageCreated is published after a message is durably stored.
type MessageCreated struct {
	MessageID     int64     `json:"message_id"`
	SenderID      int64     `json:"sender_id"`
	ReceiverID    int64     `json:"receiver_id"`
	Text          string    `json:"text,omitempty"`
	Attachments   []string  `json:"attachments,omitempty"`
	DeliveredLive bool      `json:"delivered_live"`
	CreatedAt     time.Time `json:"created_at"`
}

// MessageDeleted is published after a single message is removed.
type MessageDeleted struct {
	MessageID  int64 `json:"message_id"`
	SenderID   int64 `json:"sender_id"`
	ReceiverID int64 `json:"receiver_id"`
	DeletedBy  int64 `json:"deleted_by"`
}

// ThreadDeleted is published after a participant clears a whole thread.
type ThreadDeleted struct {
	UserID        int64 `json:"user_id"`
	CounterpartID int64 `json:"counterpart_id"`
}

// PublishJSON encodes v and publishes it on topic with the given key.
func PublishJSON(ctx context.Context, pub Publisher, topic, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	return pub.Publish(ctx, Message{Topic: topic, Key: key, Payload: payload})
}
