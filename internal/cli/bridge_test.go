package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"edumarket-service/internal/client/notification"
	domain "edumarket-service/internal/domain/notification"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalBridge_PermissionFlow(t *testing.T) {
	asked := 0
	confirm := func(context.Context, string, string) (bool, error) {
		asked++
		return true, nil
	}

	b := NewTerminalBridge(&bytes.Buffer{}, true, true, confirm)
	assert.Equal(t, notification.PermissionDefault, b.Permission())

	svc := notification.NewService(nil, nil, notification.WithBridge(b))
	ok, err := svc.RequestNotificationPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, asked)

	// already granted: no second prompt
	ok, _ = svc.RequestNotificationPermission(context.Background())
	assert.True(t, ok)
	assert.Equal(t, 1, asked)
}

func TestTerminalBridge_DisabledNeverPrompts(t *testing.T) {
	confirm := func(context.Context, string, string) (bool, error) {
		t.Fatal("prompted")
		return false, nil
	}

	disabled := NewTerminalBridge(&bytes.Buffer{}, true, false, confirm)
	ok, err := notification.NewService(nil, nil, notification.WithBridge(disabled)).
		RequestNotificationPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	headless := NewTerminalBridge(&bytes.Buffer{}, false, true, confirm)
	ok, _ = notification.NewService(nil, nil, notification.WithBridge(headless)).
		RequestNotificationPermission(context.Background())
	assert.False(t, ok)
}

func TestTerminalBridge_ShowRendersToast(t *testing.T) {
	var out bytes.Buffer
	b := NewTerminalBridge(&out, true, true, nil)

	require.NoError(t, b.Show(notification.DesktopNotification{
		Title:              "Payment approved",
		Body:               "Your plan is active",
		RequireInteraction: true,
	}))
	assert.Contains(t, out.String(), "Payment approved")
	assert.Contains(t, out.String(), "Your plan is active")
	assert.Contains(t, out.String(), "needs attention")
}

func TestRenderList(t *testing.T) {
	now := time.Date(2025, 1, 2, 12, 0, 0, 0, time.UTC)
	out := RenderList([]domain.Notification{
		{ID: "n1", Title: "New material", Priority: domain.PriorityHigh, CreatedAt: now.Add(-5 * time.Minute)},
		{ID: "n2", Title: "Welcome", Priority: domain.PriorityNormal, IsRead: true, CreatedAt: now.Add(-50 * time.Hour)},
	}, now)

	assert.Contains(t, out, "New material")
	assert.Contains(t, out, "5m ago")
	assert.Contains(t, out, "2d ago")
	assert.Contains(t, RenderList(nil, now), "no notifications")
	assert.Contains(t, RenderHeader("u1", "CONNECTED", 3), "3 unread")
}
