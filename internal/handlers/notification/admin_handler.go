// internal/handlers/notification/admin_handler.go
package notification

import (
	"errors"
	"net/http"

	"edumarket-service/internal/domain/notification"
	"edumarket-service/internal/middleware"
	"edumarket-service/internal/pkg/response"
	service "edumarket-service/internal/service/notification"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// CreateNotification creates a notification on behalf of a backend caller or admin
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var req notification.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	n, err := h.notificationService.CreateNotification(c.Request.Context(), &req)
	if errors.Is(err, service.ErrDeliveryDisabled) {
		h.countCreated("skipped", 1)
		response.Success(c, http.StatusOK, "notification skipped by recipient preference", notification.CreateNotificationResponse{
			Skipped: true,
		})
		return
	}
	if err != nil {
		h.countCreated("failed", 1)
		response.FromError(c, "failed to create notification", err)
		return
	}

	h.countCreated("created", 1)
	h.logger.Info("notification created via api",
		zap.String("id", n.ID),
		zap.String("user_id", n.UserID),
		zap.Bool("service_caller", middleware.IsServiceCaller(c)),
	)

	response.Success(c, http.StatusCreated, "notification created", notification.CreateNotificationResponse{
		ID: &n.ID,
	})
}

// CreateBulk sends one notification to many users
func (h *NotificationHandler) CreateBulk(c *gin.Context) {
	var req notification.BulkNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	ids, err := h.notificationService.CreateBulk(c.Request.Context(), &req)
	if err != nil {
		h.countCreated("failed", len(req.UserIDs))
		response.FromError(c, "failed to create notifications", err)
		return
	}

	h.countCreated("created", len(ids))
	response.Success(c, http.StatusCreated, "notifications created", gin.H{
		"sent_count": len(ids),
		"ids":        ids,
	})
}

// ArchiveOld moves old notifications into the archive
func (h *NotificationHandler) ArchiveOld(c *gin.Context) {
	var req notification.ArchiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	archived, err := h.notificationService.ArchiveOldNotifications(c.Request.Context(), req.DaysOld)
	if err != nil {
		response.FromError(c, "failed to archive notifications", err)
		return
	}

	if h.metrics != nil {
		h.metrics.Archived.Add(float64(archived))
	}
	response.Success(c, http.StatusOK, "notifications archived", gin.H{
		"archived": archived,
	})
}

func (h *NotificationHandler) countCreated(outcome string, n int) {
	if h.metrics != nil && n > 0 {
		h.metrics.Notifications.WithLabelValues(outcome).Add(float64(n))
	}
}
