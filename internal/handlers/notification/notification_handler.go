// internal/handlers/notification/notification_handler.go
package notification

import (
	"context"
	"net/http"
	"strconv"

	"edumarket-service/internal/domain/notification"
	"edumarket-service/internal/metrics"
	"edumarket-service/internal/middleware"
	"edumarket-service/internal/pkg/response"
	service "edumarket-service/internal/service/notification"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type NotificationService interface {
	CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error)
	CreateBulk(ctx context.Context, req *notification.BulkNotificationRequest) ([]string, error)
	GetRecentNotifications(ctx context.Context, userID string, limit, offset int) ([]notification.Notification, error)
	GetNotification(ctx context.Context, userID, id string) (*notification.Notification, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, userID, id string) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	ListTypes(ctx context.Context) ([]notification.NotificationType, error)
	GetPreferences(ctx context.Context, userID string) ([]notification.NotificationPreference, error)
	UpdatePreference(ctx context.Context, userID string, typeID int64, upd notification.PreferenceUpdate) (*notification.NotificationPreference, error)
	ArchiveOldNotifications(ctx context.Context, daysOld int) (int64, error)
}

type NotificationHandler struct {
	notificationService NotificationService
	logger              *zap.Logger
	metrics             *metrics.Metrics
}

func NewNotificationHandler(notificationService NotificationService, logger *zap.Logger, m *metrics.Metrics) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger,
		metrics:             m,
	}
}

// GetNotifications retrieves a newest-first page for the current user
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	params := notification.ListParams{Limit: service.DefaultPageSize}
	if err := c.ShouldBindQuery(&params); err != nil {
		response.ValidationError(c, "invalid query parameters", err)
		return
	}

	notifications, err := h.notificationService.GetRecentNotifications(c.Request.Context(), userID, params.Limit, params.Offset)
	if err != nil {
		response.FromError(c, "failed to get notifications", err)
		return
	}

	response.Success(c, http.StatusOK, "notifications retrieved", gin.H{
		"notifications": notifications,
		"count":         len(notifications),
		"offset":        params.Offset,
	})
}

// GetNotification retrieves a single notification by ID
func (h *NotificationHandler) GetNotification(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	n, err := h.notificationService.GetNotification(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		response.FromError(c, "notification not found", err)
		return
	}

	response.Success(c, http.StatusOK, "notification retrieved", n)
}

// GetUnreadCount gets the count of unread notifications
func (h *NotificationHandler) GetUnreadCount(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	count, err := h.notificationService.GetUnreadCount(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to get unread count", err)
		return
	}

	response.Success(c, http.StatusOK, "unread count retrieved", gin.H{
		"unread_count": count,
	})
}

// MarkAsRead marks a notification as read
func (h *NotificationHandler) MarkAsRead(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	if err := h.notificationService.MarkAsRead(c.Request.Context(), userID, c.Param("id")); err != nil {
		response.FromError(c, "failed to mark as read", err)
		return
	}

	response.Success(c, http.StatusOK, "notification marked as read", gin.H{
		"success": true,
	})
}

// MarkAllAsRead marks all notifications as read
func (h *NotificationHandler) MarkAllAsRead(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	updated, err := h.notificationService.MarkAllAsRead(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to mark all as read", err)
		return
	}

	response.Success(c, http.StatusOK, "all notifications marked as read", gin.H{
		"updated": updated,
	})
}

// GetTypes lists the active notification types
func (h *NotificationHandler) GetTypes(c *gin.Context) {
	types, err := h.notificationService.ListTypes(c.Request.Context())
	if err != nil {
		response.FromError(c, "failed to get notification types", err)
		return
	}

	response.Success(c, http.StatusOK, "notification types retrieved", types)
}

// GetPreferences lists the stored preferences of the current user
func (h *NotificationHandler) GetPreferences(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	prefs, err := h.notificationService.GetPreferences(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, "failed to get preferences", err)
		return
	}

	response.Success(c, http.StatusOK, "preferences retrieved", prefs)
}

// UpdatePreference upserts the preference for one notification type
func (h *NotificationHandler) UpdatePreference(c *gin.Context) {
	userID := middleware.MustGetUserID(c)

	typeID, err := strconv.ParseInt(c.Param("type_id"), 10, 64)
	if err != nil {
		response.ValidationError(c, "invalid notification type ID", err)
		return
	}

	var upd notification.PreferenceUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	pref, err := h.notificationService.UpdatePreference(c.Request.Context(), userID, typeID, upd)
	if err != nil {
		response.FromError(c, "failed to update preference", err)
		return
	}

	response.Success(c, http.StatusOK, "preference updated", pref)
}
