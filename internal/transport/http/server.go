package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vseti/vseti-chat/internal/auth"
	"github.com/vseti/vseti-chat/internal/config"
	"github.com/vseti/vseti-chat/internal/core"
	"github.com/vseti/vseti-chat/internal/store"
)

// NewServer builds the HTTP server: health, websocket and REST routes.
// The websocket endpoint sits next to gin, not inside it.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	apiHandlers := NewAPIHandlers(authService, st, logger)
	conversationHandlers := NewConversationHandlers(hub.Directory(), logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	protected := api.Group("")
	protected.Use(AuthMiddleware(authService, logger))
	protected.GET("/me", apiHandlers.Me)
	protected.GET("/conversations", conversationHandlers.ListConversations)

	// The websocket upgrade hijacks the connection, which gin's response
	// writer refuses once the 101 status is written.
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(hub, cfg, logger))
	mux.Handle("/", router)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
