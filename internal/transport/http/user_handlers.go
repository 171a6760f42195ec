package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/proto"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

const minSearchQuery = 2

// UserHandlers provides HTTP handlers for user operations.
type UserHandlers struct {
	store store.UserStore
	log   *zerolog.Logger
}

// NewUserHandlers creates a new user handlers instance.
func NewUserHandlers(st store.UserStore, logger *zerolog.Logger) *UserHandlers {
	return &UserHandlers{
		store: st,
		log:   logger,
	}
}

// Me returns the authenticated user's profile.
// GET /api/users/me
func (h *UserHandlers) Me(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	h.writeUser(c, uid)
}

// GetUser returns a user's public profile.
// GET /api/users/:id
func (h *UserHandlers) GetUser(c *gin.Context) {
	if _, ok := currentUserID(c, h.log); !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	h.writeUser(c, id)
}

func (h *UserHandlers) writeUser(c *gin.Context, id int64) {
	user, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("user_id", id).Msg("failed to get user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, userToProto(user))
}

// SearchUsers handles searching for users.
// GET /api/users/search?q=query
func (h *UserHandlers) SearchUsers(c *gin.Context) {
	trimmed := strings.TrimSpace(c.Query("q"))
	if len(trimmed) < minSearchQuery {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "search query must be at least 2 characters"})
		return
	}

	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	users, err := h.store.SearchUsers(c.Request.Context(), trimmed)
	if err != nil {
		h.log.Error().Err(err).Str("query", trimmed).Msg("failed to search users")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]proto.User, 0, len(users))
	for _, u := range users {
		// don't show self
		if u.ID == uid {
			continue
		}
		response = append(response, userToProto(u))
	}

	c.JSON(http.StatusOK, response)
}
