package http

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/restobook/realtime-server/internal/auth"
	"github.com/restobook/realtime-server/internal/config"
	"github.com/restobook/realtime-server/internal/core"
	"github.com/restobook/realtime-server/internal/store"
)

// NewServer builds an HTTP server with the socket namespaces and REST helpers.
func NewServer(hub *core.Hub, authService *auth.Service, st store.Store, cfg *config.Config, logger *zerolog.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	router.GET("/health", healthHandler)

	ws := NewWSHandler(hub, cfg, logger)
	router.GET("/ws", ws.Main)
	router.GET("/ws/guest", ws.Guest)

	api := NewAPIHandlers(authService, st, hub, logger)
	requireAuth := AuthMiddleware(hub.Main, logger)

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/login", api.Login)
		apiGroup.POST("/guests", api.EnsureGuest)
		apiGroup.GET("/guests/:visitorId/notifications", api.ListGuestNotifications)

		authed := apiGroup.Group("", requireAuth)
		authed.GET("/notifications", api.ListMyNotifications)
		authed.PATCH("/notifications/:id/read", api.MarkNotificationRead)
		authed.GET("/messages", api.ListMyMessages)

		staff := authed.Group("", RequireStaff())
		staff.GET("/guests/:visitorId/messages", api.ListGuestMessages)
		staff.GET("/presence", api.Presence)
	}

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
		return cc
	}
	cc.AllowOrigins = origins
	return cc
}

func healthHandler(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}
