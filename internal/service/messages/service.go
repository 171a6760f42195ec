package messages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/socialchat-server/internal/core"
	"github.com/vovakirdan/socialchat-server/internal/media"
	"github.com/vovakirdan/socialchat-server/internal/pubsub"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

const (
	defaultMaxAttachments = 4
	octetStream           = "application/octet-stream"
)

// Common errors for message operations.
var (
	ErrEmptyMessage       = errors.New("message needs text or at least one attachment")
	ErrTooManyAttachments = errors.New("too many attachments")
	ErrAttachmentTooLarge = errors.New("attachment too large")
	ErrCannotMessageSelf  = errors.New("cannot message yourself")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrUserNotFound       = errors.New("user not found")
	ErrMessageNotFound    = errors.New("message not found")
)

// Deliverer pushes events to a user's live connection, if any.
type Deliverer interface {
	Deliver(ctx context.Context, userID int64, ev *core.Event) bool
}

// ContactSource lists the users a user can chat with.
type ContactSource interface {
	Contacts(ctx context.Context, userID int64) ([]*store.User, error)
}

// Upload is one attachment of a message being sent.
type Upload struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

// Contact is a chat partner together with the latest message exchanged.
type Contact struct {
	User        *store.User
	LastMessage *store.Message
	Unseen      int
}

// ContactList is the inbox view of a user.
type ContactList struct {
	Contacts []Contact
	// Unseen counts unseen incoming messages keyed by sender.
	Unseen map[int64]int
}

// Service persists messages and pushes them to live connections.
type Service struct {
	store          store.Store
	media          media.Store
	live           Deliverer
	contacts       ContactSource
	bus            pubsub.Publisher
	log            *zerolog.Logger
	maxAttachments int
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher publishes message lifecycle events on bus.
func WithPublisher(bus pubsub.Publisher) Option {
	return func(s *Service) {
		s.bus = bus
	}
}

// WithMaxAttachments caps the number of attachments per message.
func WithMaxAttachments(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttachments = n
		}
	}
}

// New creates a message Service.
func New(st store.Store, mediaStore media.Store, live Deliverer, contacts ContactSource, logger *zerolog.Logger, opts ...Option) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	s := &Service{
		store:          st,
		media:          mediaStore,
		live:           live,
		contacts:       contacts,
		log:            logger,
		maxAttachments: defaultMaxAttachments,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send stores a message from senderID to receiverID and pushes it to the receiver if online.
// Attachments are written to the media store before the message record.
func (s *Service) Send(ctx context.Context, senderID, receiverID int64, text string, uploads []Upload) (*store.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(uploads) == 0 {
		return nil, ErrEmptyMessage
	}
	if len(uploads) > s.maxAttachments {
		return nil, ErrTooManyAttachments
	}
	if senderID == receiverID {
		return nil, ErrCannotMessageSelf
	}
	if err := s.ensureUser(ctx, receiverID); err != nil {
		return nil, err
	}

	attachments, err := s.saveUploads(ctx, uploads)
	if err != nil {
		return nil, err
	}

	msg := &store.Message{
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Text:        text,
		Attachments: attachments,
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		s.removeMedia(ctx, attachments)
		return nil, fmt.Errorf("save message: %w", err)
	}

	delivered := s.live.Deliver(ctx, receiverID, core.NewMessageEvent(msg))
	s.log.Debug().
		Int64("message_id", msg.ID).
		Int64("user_id", senderID).
		Int64("receiver_id", receiverID).
		Bool("delivered_live", delivered).
		Msg("message sent")

	keys := make([]string, 0, len(attachments))
	for _, att := range attachments {
		keys = append(keys, att.Key)
	}
	s.publish(ctx, pubsub.TopicMessageCreated, store.ThreadKey(senderID, receiverID), pubsub.MessageCreated{
		MessageID:     msg.ID,
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Text:          msg.Text,
		Attachments:   keys,
		DeliveredLive: delivered,
		CreatedAt:     msg.CreatedAt,
	})

	return msg, nil
}

func (s *Service) saveUploads(ctx context.Context, uploads []Upload) ([]store.Attachment, error) {
	attachments := make([]store.Attachment, 0, len(uploads))
	for _, up := range uploads {
		key, size, err := s.media.Save(ctx, up.Filename, up.Reader)
		if err != nil {
			s.removeMedia(ctx, attachments)
			if errors.Is(err, media.ErrTooLarge) {
				return nil, fmt.Errorf("%w: %s", ErrAttachmentTooLarge, up.Filename)
			}
			return nil, fmt.Errorf("save attachment: %w", err)
		}

		contentType := up.ContentType
		if contentType == "" || contentType == octetStream {
			contentType = mime.TypeByExtension(path.Ext(up.Filename))
		}
		if contentType == "" {
			contentType = octetStream
		}
		attachments = append(attachments, store.Attachment{
			Key:         key,
			ContentType: contentType,
			Size:        size,
		})
	}
	return attachments, nil
}

// History returns the thread between userID and counterpartID in creation order.
// Messages counterpartID sent to userID are marked seen first.
func (s *Service) History(ctx context.Context, userID, counterpartID int64) ([]*store.Message, error) {
	if err := s.ensureUser(ctx, counterpartID); err != nil {
		return nil, err
	}

	n, err := s.store.MarkThreadSeen(ctx, userID, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("mark thread seen: %w", err)
	}
	if n > 0 {
		s.log.Debug().Int64("user_id", userID).Int64("counterpart_id", counterpartID).Int64("count", n).Msg("messages marked seen")
	}

	thread, err := s.store.ListThread(ctx, userID, counterpartID)
	if err != nil {
		return nil, fmt.Errorf("list thread: %w", err)
	}
	return thread, nil
}

// MarkSeen marks a message as seen. Only its receiver may do so; repeated calls are no-ops.
func (s *Service) MarkSeen(ctx context.Context, userID, messageID int64) error {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.ReceiverID != userID {
		return ErrNotAuthorized
	}
	if err := s.store.MarkSeen(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// DeleteMessage removes a message the user sent or received together with its media,
// and notifies the other participant if they are online.
func (s *Service) DeleteMessage(ctx context.Context, userID, messageID int64) error {
	msg, err := s.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if !msg.IsParticipant(userID) {
		return ErrNotAuthorized
	}

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}
	s.removeMedia(ctx, msg.Attachments)

	counterpart := msg.Counterpart(userID)
	s.live.Deliver(ctx, counterpart, core.MessageDeletedEvent(messageID))

	s.publish(ctx, pubsub.TopicMessageDeleted, store.ThreadKey(msg.SenderID, msg.ReceiverID), pubsub.MessageDeleted{
		MessageID:  messageID,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		DeletedBy:  userID,
	})
	return nil
}

// DeleteThread removes every message between userID and counterpartID in both directions.
// The counterpart gets no live notice.
func (s *Service) DeleteThread(ctx context.Context, userID, counterpartID int64) error {
	attachments, err := s.store.DeleteThread(ctx, userID, counterpartID)
	if err != nil {
		return fmt.Errorf("delete thread: %w", err)
	}
	s.removeMedia(ctx, attachments)

	s.log.Debug().Int64("user_id", userID).Int64("counterpart_id", counterpartID).Msg("thread deleted")
	s.publish(ctx, pubsub.TopicThreadDeleted, store.ThreadKey(userID, counterpartID), pubsub.ThreadDeleted{
		UserID:        userID,
		CounterpartID: counterpartID,
	})
	return nil
}

// Contacts returns the user's contacts with their latest message and unseen counts.
// Contacts with recent messages come first; the rest follow by username.
func (s *Service) Contacts(ctx context.Context, userID int64) (*ContactList, error) {
	users, err := s.contacts.Contacts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	unseen, err := s.store.CountUnseen(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unseen: %w", err)
	}

	contacts := make([]Contact, 0, len(users))
	for _, u := range users {
		last, err := s.store.LastMessage(ctx, userID, u.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("last message: %w", err)
		}
		contacts = append(contacts, Contact{
			User:        u,
			LastMessage: last,
			Unseen:      unseen[u.ID],
		})
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		a, b := contacts[i].LastMessage, contacts[j].LastMessage
		switch {
		case a != nil && b != nil:
			return a.ID > b.ID
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return contacts[i].User.Username < contacts[j].User.Username
		}
	})

	return &ContactList{Contacts: contacts, Unseen: unseen}, nil
}

func (s *Service) getMessage(ctx context.Context, id int64) (*store.Message, error) {
	msg, err := s.store.GetMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *Service) ensureUser(ctx context.Context, userID int64) error {
	if _, err := s.store.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("get user: %w", err)
	}
	return nil
}

// removeMedia deletes stored attachment bytes. Failures are logged and otherwise ignored.
func (s *Service) removeMedia(ctx context.Context, attachments []store.Attachment) {
	for _, att := range attachments {
		if err := s.media.Delete(ctx, att.Key); err != nil {
			s.log.Warn().Err(err).Str("media_key", att.Key).Msg("failed to remove media")
		}
	}
}

func (s *Service) publish(ctx context.Context, topic, key string, v any) {
	if s.bus == nil {
		return
	}
	if err := pubsub.PublishJSON(ctx, s.bus, topic, key, v); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Str("thread", key).Msg("failed to publish event")
	}
}
