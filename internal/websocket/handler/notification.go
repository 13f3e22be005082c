// internal/websocket/handler/notification.go
package handler

import (
	"context"
	"fmt"

	wstypes "edumarket-service/internal/domain/websocket"
	xerrors "edumarket-service/internal/pkg/errors"
	ws "edumarket-service/internal/websocket"

	"go.uber.org/zap"
)

// NotificationService is the subset of the notification service reachable over the socket
type NotificationService interface {
	MarkAsRead(ctx context.Context, userID, id string) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	GetUnreadCount(ctx context.Context, userID string) (int, error)
}

type NotificationHandler struct {
	service NotificationService
	logger  *zap.Logger
}

func NewNotificationHandler(service NotificationService, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{
		service: service,
		logger:  logger,
	}
}

func (h *NotificationHandler) Channel() wstypes.ChannelType {
	return wstypes.ChannelNotifications
}

// SupportedEvents returns events this handler supports
func (h *NotificationHandler) SupportedEvents() []wstypes.EventType {
	return []wstypes.EventType{
		wstypes.EventTypeNotificationRead,
		wstypes.EventTypeNotificationReadAll,
		wstypes.EventTypeNotificationCount,
	}
}

// HandleMessage processes notification-related messages
func (h *NotificationHandler) HandleMessage(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	switch msg.Type {
	case wstypes.EventTypeNotificationRead:
		return h.handleMarkAsRead(ctx, client, msg)

	case wstypes.EventTypeNotificationReadAll:
		return h.handleMarkAllAsRead(ctx, client)

	case wstypes.EventTypeNotificationCount:
		return h.handleGetCount(ctx, client)

	default:
		return fmt.Errorf("unsupported event type: %s", msg.Type)
	}
}

func (h *NotificationHandler) handleMarkAsRead(ctx context.Context, client *ws.Client, msg *wstypes.WSMessage) error {
	var req struct {
		NotificationID string `json:"notification_id"`
	}
	if err := ws.DecodeRequest(client, msg, &req); err != nil {
		return err
	}

	if err := h.service.MarkAsRead(ctx, client.GetUserID(), req.NotificationID); err != nil {
		client.SendError("mark_read_failed", "Failed to mark notification as read", xerrors.Sentinel(err).Error())
		return err
	}

	count, err := h.service.GetUnreadCount(ctx, client.GetUserID())
	if err != nil {
		h.logger.Warn("failed to get unread count", zap.Error(err))
		count = 0
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationRead, map[string]interface{}{
		"notification_id": req.NotificationID,
		"success":         true,
		"unread_count":    count,
	}))

	return nil
}

func (h *NotificationHandler) handleMarkAllAsRead(ctx context.Context, client *ws.Client) error {
	updated, err := h.service.MarkAllAsRead(ctx, client.GetUserID())
	if err != nil {
		client.SendError("mark_all_read_failed", "Failed to mark all as read", xerrors.Sentinel(err).Error())
		return err
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationReadAll, map[string]interface{}{
		"success":      true,
		"updated":      updated,
		"unread_count": 0,
	}))

	return nil
}

func (h *NotificationHandler) handleGetCount(ctx context.Context, client *ws.Client) error {
	count, err := h.service.GetUnreadCount(ctx, client.GetUserID())
	if err != nil {
		client.SendError("count_failed", "Failed to get unread count", xerrors.Sentinel(err).Error())
		return err
	}

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
		"unread_count": count,
	}))

	return nil
}
