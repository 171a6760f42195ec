package http

import (
	"errors"
	"mime"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/media"
)

// MediaHandler serves stored attachment bytes.
type MediaHandler struct {
	store media.Store
	log   *zerolog.Logger
}

// NewMediaHandler creates a media handler.
func NewMediaHandler(st media.Store, logger *zerolog.Logger) *MediaHandler {
	return &MediaHandler{store: st, log: logger}
}

// Serve streams the file stored under key.
// GET /media/*key
func (h *MediaHandler) Serve(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")

	rc, err := h.store.Open(c.Request.Context(), key)
	if err != nil {
		if errors.Is(err, media.ErrInvalidKey) || errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found"})
			return
		}
		h.log.Error().Err(err).Str("media_key", key).Msg("failed to open media")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	defer rc.Close()

	contentType := mime.TypeByExtension(path.Ext(key))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.DataFromReader(http.StatusOK, -1, contentType, rc, nil)
}
