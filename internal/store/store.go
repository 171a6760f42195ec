package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// User represents an account as the messaging layer sees it.
type User struct {
	ID           int64
	Username     string
	Name         string
	ProfileImg   string
	PasswordHash string
	CreatedAt    time.Time
}

// Follow is a directed edge: FollowerID follows FolloweeID.
type Follow struct {
	FollowerID int64
	FolloweeID int64
	CreatedAt  time.Time
}

// Attachment is a media reference owned by a message.
type Attachment struct {
	ID          int64
	MessageID   int64
	Position    int
	Key         string
	ContentType string
	Size        int64
}

// Message represents a persisted direct message.
type Message struct {
	ID          int64
	SenderID    int64
	ReceiverID  int64
	Text        string
	Attachments []Attachment
	Seen        bool
	CreatedAt   time.Time
}

// Counterpart returns the other participant of the message relative to userID.
func (m *Message) Counterpart(userID int64) int64 {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// IsParticipant reports whether userID sent or received the message.
func (m *Message) IsParticipant(userID int64) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// ThreadKey identifies the conversation between two users independent of direction.
func ThreadKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, user *User) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username or display name.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// FollowStore handles the follow graph.
type FollowStore interface {
	// Follow creates the edge follower -> followee. Existing edges are left untouched.
	Follow(ctx context.Context, followerID, followeeID int64) error

	// Unfollow removes the edge follower -> followee if present.
	Unfollow(ctx context.Context, followerID, followeeID int64) error

	// ListFollowers returns users following userID.
	ListFollowers(ctx context.Context, userID int64) ([]*User, error)

	// ListFollowing returns users userID follows.
	ListFollowing(ctx context.Context, userID int64) ([]*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and its attachments, setting IDs and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListThread returns every message between a and b in creation order.
	ListThread(ctx context.Context, a, b int64) ([]*Message, error)

	// MarkThreadSeen marks all messages from senderID to receiverID as seen.
	// Returns the number of messages that changed.
	MarkThreadSeen(ctx context.Context, receiverID, senderID int64) (int64, error)

	// MarkSeen marks a single message as seen. Already seen messages are left untouched.
	MarkSeen(ctx context.Context, id int64) error

	// DeleteMessage removes a message and its attachment records.
	DeleteMessage(ctx context.Context, id int64) error

	// DeleteThread removes every message between a and b.
	// Returns the attachments that belonged to the deleted messages.
	DeleteThread(ctx context.Context, a, b int64) ([]Attachment, error)

	// LastMessage returns the most recent message between a and b, or ErrNotFound.
	LastMessage(ctx context.Context, a, b int64) (*Message, error)

	// CountUnseen returns unseen message counts sent to receiverID, keyed by sender.
	CountUnseen(ctx context.Context, receiverID int64) (map[int64]int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	FollowStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
