package http

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/proto"
	"github.com/vovakirdan/socialchat-server/internal/service/messages"
)

// multipartOverhead is allowed on top of the attachment limits for form fields and boundaries.
const multipartOverhead = 1 << 20

// MessageHandlers provides HTTP handlers for direct messages.
type MessageHandlers struct {
	service      *messages.Service
	hub          Hub
	maxBodyBytes int64
	log          *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messages.Service, hub Hub, cfg *config.Config, logger *zerolog.Logger) *MessageHandlers {
	maxBody := int64(multipartOverhead)
	if cfg.MaxAttachments > 0 && cfg.MaxAttachmentBytes > 0 {
		maxBody += int64(cfg.MaxAttachments) * cfg.MaxAttachmentBytes
	}
	return &MessageHandlers{
		service:      svc,
		hub:          hub,
		maxBodyBytes: maxBody,
		log:          logger,
	}
}

// SendMessageRequest represents a text-only message body.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ContactResponse is one entry of the conversations list.
type ContactResponse struct {
	User        proto.User     `json:"user"`
	LastMessage *proto.Message `json:"last_message,omitempty"`
	Unseen      int            `json:"unseen"`
}

// ConversationsResponse is the inbox of the current user.
type ConversationsResponse struct {
	Contacts []ContactResponse `json:"contacts"`
	Unseen   map[int64]int     `json:"unseen"`
}

// Contacts lists the current user's contacts with latest messages and unseen counts.
// GET /api/conversations
func (h *MessageHandlers) Contacts(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	list, err := h.service.Contacts(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err, uid, "failed to list contacts")
		return
	}

	resp := ConversationsResponse{
		Contacts: make([]ContactResponse, 0, len(list.Contacts)),
		Unseen:   list.Unseen,
	}
	for _, contact := range list.Contacts {
		entry := ContactResponse{User: userToProto(contact.User), Unseen: contact.Unseen}
		if contact.LastMessage != nil {
			last := messageToProto(contact.LastMessage)
			entry.LastMessage = &last
		}
		resp.Contacts = append(resp.Contacts, entry)
	}
	c.JSON(http.StatusOK, resp)
}

// History returns the thread with :id and marks incoming messages seen.
// GET /api/conversations/:id/messages
func (h *MessageHandlers) History(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	counterpart, ok := idParam(c, "id")
	if !ok {
		return
	}

	thread, err := h.service.History(c.Request.Context(), uid, counterpart)
	if err != nil {
		h.writeError(c, err, uid, "failed to load thread")
		return
	}
	c.JSON(http.StatusOK, messagesToProto(thread))
}

// Send stores a message to :id. Accepts JSON {text} or multipart with text and files.
// POST /api/conversations/:id/messages
func (h *MessageHandlers) Send(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	receiver, ok := idParam(c, "id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)

	var (
		text    string
		uploads []messages.Upload
	)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			h.log.Debug().Err(err).Msg("invalid multipart message")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid multipart body"})
			return
		}
		defer func() { _ = form.RemoveAll() }()

		text = strings.Join(form.Value["text"], "\n")
		files := form.File["files"]
		closers := make([]multipart.File, 0, len(files))
		defer func() {
			for _, f := range closers {
				_ = f.Close()
			}
		}()
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				h.log.Error().Err(err).Str("filename", fh.Filename).Msg("failed to open upload")
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid upload"})
				return
			}
			closers = append(closers, f)
			uploads = append(uploads, messages.Upload{
				Filename:    fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Reader:      f,
			})
		}
	} else {
		var req SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			h.log.Debug().Err(err).Msg("invalid send message request")
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		text = req.Text
	}

	msg, err := h.service.Send(c.Request.Context(), uid, receiver, text, uploads)
	if err != nil {
		h.writeError(c, err, uid, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, messageToProto(msg))
}

// MarkSeen marks message :id seen by its receiver.
// POST /api/messages/:id/seen
func (h *MessageHandlers) MarkSeen(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.MarkSeen(c.Request.Context(), uid, id); err != nil {
		h.writeError(c, err, uid, "failed to mark message seen")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMessage removes message :id.
// DELETE /api/messages/:id
func (h *MessageHandlers) DeleteMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteMessage(c.Request.Context(), uid, id); err != nil {
		h.writeError(c, err, uid, "failed to delete message")
		return
	}
	h.log.Info().Int64("user_id", uid).Int64("message_id", id).Msg("message deleted")
	c.Status(http.StatusNoContent)
}

// DeleteThread clears every message exchanged with :id.
// DELETE /api/conversations/:id
func (h *MessageHandlers) DeleteThread(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	counterpart, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.DeleteThread(c.Request.Context(), uid, counterpart); err != nil {
		h.writeError(c, err, uid, "failed to delete thread")
		return
	}
	h.log.Info().Int64("user_id", uid).Int64("counterpart_id", counterpart).Msg("thread deleted")
	c.Status(http.StatusNoContent)
}

// Presence returns the users currently online.
// GET /api/presence
func (h *MessageHandlers) Presence(c *gin.Context) {
	if _, ok := currentUserID(c, h.log); !ok {
		return
	}
	entries, err := h.hub.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read presence")
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "presence unavailable"})
		return
	}
	c.JSON(http.StatusOK, proto.EventPresenceData{Users: presenceToProto(entries)})
}

func (h *MessageHandlers) writeError(c *gin.Context, err error, uid int64, msg string) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.Is(err, messages.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "message needs text or an attachment"})
	case errors.Is(err, messages.ErrTooManyAttachments):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "too many attachments"})
	case errors.Is(err, messages.ErrAttachmentTooLarge), errors.As(err, &maxBytesErr):
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "attachment too large"})
	case errors.Is(err, messages.ErrCannotMessageSelf):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot message yourself"})
	case errors.Is(err, messages.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not authorized"})
	case errors.Is(err, messages.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	case errors.Is(err, messages.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
	default:
		h.log.Error().Err(err).Int64("user_id", uid).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
