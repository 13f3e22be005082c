// internal/app/router.go
package app

import (
	authHandler "edumarket-service/internal/handlers/auth"
	notifyHandler "edumarket-service/internal/handlers/notification"
	wsHandler "edumarket-service/internal/handlers/websocket"
	"edumarket-service/internal/metrics"
	"edumarket-service/internal/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	AuthHandler    *authHandler.AuthHandler
	NotifHandler   *notifyHandler.NotificationHandler
	WSHandler      *wsHandler.WebSocketHandler
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        *metrics.Metrics
}

func SetupRouter(r *gin.Engine, logger *zap.Logger, h *Handlers) {
	api := r.Group("/api/v1")

	// ==================== Health Check ====================
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	// ==================== Metrics ====================
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler(logger)))
	}

	// ==================== WebSocket ====================
	r.GET("/ws", h.WSHandler.HandleConnection)

	// ==================== Authenticated Auth Routes ====================
	authProtected := api.Group("/auth")
	authProtected.Use(h.AuthMiddleware.Auth())
	{
		authProtected.POST("/logout", h.AuthHandler.Logout)
		authProtected.GET("/me", h.AuthHandler.GetMe)
	}

	// ==================== Notifications ====================
	notifications := api.Group("/notifications")
	notifications.Use(h.AuthMiddleware.Auth())
	{
		notifications.GET("", h.NotifHandler.GetNotifications)
		notifications.GET("/unread-count", h.NotifHandler.GetUnreadCount)
		notifications.GET("/types", h.NotifHandler.GetTypes)
		notifications.GET("/preferences", h.NotifHandler.GetPreferences)
		notifications.PUT("/preferences/:type_id", h.NotifHandler.UpdatePreference)
		notifications.PUT("/read-all", h.NotifHandler.MarkAllAsRead)
		notifications.GET("/:id", h.NotifHandler.GetNotification)
		notifications.PUT("/:id/read", h.NotifHandler.MarkAsRead)
	}

	// ==================== Admin ====================
	admin := api.Group("/admin")
	admin.Use(h.AuthMiddleware.ServiceKeyOrAdmin())
	{
		admin.POST("/notifications", h.NotifHandler.CreateNotification)
		admin.POST("/notifications/bulk", h.NotifHandler.CreateBulk)
		admin.POST("/notifications/archive", h.NotifHandler.ArchiveOld)
		admin.GET("/ws/stats", h.WSHandler.GetStats)
	}

	logger.Info("routes registered", zap.Int("count", len(r.Routes())))
}
