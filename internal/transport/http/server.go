package http

import (
	stdhttp "net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/auth"
	"github.com/vovakirdan/kinchat-server/internal/config"
	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/service/friends"
	"github.com/vovakirdan/kinchat-server/internal/service/messages"
	"github.com/vovakirdan/kinchat-server/internal/store"
)

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Hub      *core.Hub
	Auth     *auth.Service
	Users    store.UserStore
	LastSeen store.LastSeenStore
	Friends  *friends.Service
	Messages *messages.Service
}

// NewServer builds the HTTP server serving REST, WebSocket and metrics routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter serves /ws from a plain mux and every other route from a gin
// engine. The WebSocket handler stays outside gin: hijacking through gin's
// response writer corrupts the upgraded stream.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	if !strings.EqualFold(cfg.Log.Level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(MetricsMiddleware())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiHandlers := NewAPIHandlers(deps.Auth, logger)
	userHandlers := NewUserHandlers(deps.Users, deps.LastSeen, deps.Hub, logger)
	friendsHandlers := NewFriendsHandlers(deps.Friends, deps.Users, deps.Hub, logger)
	messagesHandlers := NewMessagesHandlers(deps.Messages, deps.Hub, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(deps.Auth, logger))

	protected.GET("/users/search", userHandlers.SearchUsers)
	protected.GET("/users/:userId/presence", userHandlers.Presence)

	protected.POST("/friends/requests", friendsHandlers.SendRequest)
	protected.GET("/friends", friendsHandlers.ListFriends)
	protected.GET("/friends/online", friendsHandlers.OnlineFriends)
	protected.GET("/friends/requests/incoming", friendsHandlers.ListPendingRequests)
	protected.POST("/friends/:userId/accept", friendsHandlers.AcceptRequest)
	protected.DELETE("/friends/:userId/reject", friendsHandlers.RejectRequest)
	protected.POST("/friends/:userId/block", friendsHandlers.BlockUser)
	protected.DELETE("/friends/:userId/block", friendsHandlers.UnblockUser)
	protected.DELETE("/friends/:userId", friendsHandlers.RemoveFriend)

	protected.POST("/messages/send", messagesHandlers.Send)
	protected.GET("/messages/:friendId", messagesHandlers.History)
	protected.PUT("/messages/:messageId/read", messagesHandlers.MarkRead)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Hub, deps.Auth, cfg.WS, cfg.CORS.AllowedOrigins, logger))
	mux.Handle("/", router)

	return cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})(mux)
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
