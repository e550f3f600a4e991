package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/grouptalk/grouptalk-server/internal/auth"
	"github.com/grouptalk/grouptalk-server/internal/chat"
	"github.com/grouptalk/grouptalk-server/internal/config"
	"github.com/grouptalk/grouptalk-server/internal/store"
)

// NewServer builds the HTTP server: REST API for auth and room
// management, websocket endpoint for live chat.
func NewServer(svc *chat.Service, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})

	apiHandlers := NewAPIHandlers(authService, logger)
	roomHandlers := NewRoomHandlers(st, svc, logger)
	wsHandler := NewWSHandler(svc, authService, st, cfg.MessagesPerMinute, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.POST("/rooms", roomHandlers.CreateRoom)
	authed.GET("/rooms", roomHandlers.ListRooms)
	authed.POST("/rooms/:token/join", roomHandlers.JoinRoom)
	authed.POST("/rooms/:token/leave", roomHandlers.LeaveRoom)
	authed.GET("/rooms/:token/messages", roomHandlers.ListMessages)

	router.GET("/ws/:token", wsHandler.Handle)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
