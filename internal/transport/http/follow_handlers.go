package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/service/follows"
)

// FollowHandlers provides HTTP handlers for the follow graph.
type FollowHandlers struct {
	service *follows.Service
	log     *zerolog.Logger
}

// NewFollowHandlers creates a new follow handlers instance.
func NewFollowHandlers(svc *follows.Service, logger *zerolog.Logger) *FollowHandlers {
	return &FollowHandlers{
		service: svc,
		log:     logger,
	}
}

// Follow makes the current user follow :id.
// POST /api/users/:id/follow
func (h *FollowHandlers) Follow(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	target, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Follow(c.Request.Context(), uid, target); err != nil {
		h.writeError(c, err, uid, target, "failed to follow user")
		return
	}

	h.log.Info().Int64("user_id", uid).Int64("followee_id", target).Msg("user followed")
	c.Status(http.StatusNoContent)
}

// Unfollow removes the current user's follow of :id.
// DELETE /api/users/:id/follow
func (h *FollowHandlers) Unfollow(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	target, ok := idParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Unfollow(c.Request.Context(), uid, target); err != nil {
		h.writeError(c, err, uid, target, "failed to unfollow user")
		return
	}

	h.log.Info().Int64("user_id", uid).Int64("followee_id", target).Msg("user unfollowed")
	c.Status(http.StatusNoContent)
}

// ListFollowers lists users following :id.
// GET /api/users/:id/followers
func (h *FollowHandlers) ListFollowers(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	target, ok := idParam(c, "id")
	if !ok {
		return
	}

	users, err := h.service.ListFollowers(c.Request.Context(), target)
	if err != nil {
		h.writeError(c, err, uid, target, "failed to list followers")
		return
	}
	c.JSON(http.StatusOK, usersToProto(users))
}

// ListFollowing lists users :id follows.
// GET /api/users/:id/following
func (h *FollowHandlers) ListFollowing(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}
	target, ok := idParam(c, "id")
	if !ok {
		return
	}

	users, err := h.service.ListFollowing(c.Request.Context(), target)
	if err != nil {
		h.writeError(c, err, uid, target, "failed to list following")
		return
	}
	c.JSON(http.StatusOK, usersToProto(users))
}

func (h *FollowHandlers) writeError(c *gin.Context, err error, uid, target int64, msg string) {
	switch {
	case errors.Is(err, follows.ErrCannotFollowSelf):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot follow yourself"})
	case errors.Is(err, follows.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	default:
		h.log.Error().Err(err).Int64("user_id", uid).Int64("target_id", target).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
