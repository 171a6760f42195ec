package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/media"
	"github.com/vovakirdan/socialchat-server/internal/service/follows"
	"github.com/vovakirdan/socialchat-server/internal/service/messages"
	"github.com/vovakirdan/socialchat-server/internal/store"
)

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Hub      Hub
	Auth     *auth.Service
	Store    store.Store
	Follows  *follows.Service
	Messages *messages.Service
	Media    media.Store
}

// NewServer builds the HTTP server with REST and websocket routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires every route onto a gin engine.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	userHandlers := NewUserHandlers(deps.Store, logger)
	followHandlers := NewFollowHandlers(deps.Follows, logger)
	messageHandlers := NewMessageHandlers(deps.Messages, deps.Hub, cfg, logger)
	mediaHandler := NewMediaHandler(deps.Media, logger)
	wsHandler := NewWSHandler(deps.Hub, deps.Auth, deps.Store, cfg, logger)

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(wsHandler))
	router.GET("/media/*key", mediaHandler.Serve)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(deps.Auth, logger))

	authed.GET("/users/me", userHandlers.Me)
	authed.GET("/users/search", userHandlers.SearchUsers)
	authed.GET("/users/:id", userHandlers.GetUser)
	authed.POST("/users/:id/follow", followHandlers.Follow)
	authed.DELETE("/users/:id/follow", followHandlers.Unfollow)
	authed.GET("/users/:id/followers", followHandlers.ListFollowers)
	authed.GET("/users/:id/following", followHandlers.ListFollowing)

	authed.GET("/conversations", messageHandlers.Contacts)
	authed.GET("/conversations/:id/messages", messageHandlers.History)
	authed.POST("/conversations/:id/messages", messageHandlers.Send)
	authed.DELETE("/conversations/:id", messageHandlers.DeleteThread)
	authed.POST("/messages/:id/seen", messageHandlers.MarkSeen)
	authed.DELETE("/messages/:id", messageHandlers.DeleteMessage)
	authed.GET("/presence", messageHandlers.Presence)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
