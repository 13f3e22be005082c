package handler_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	wstypes "edumarket-service/internal/domain/websocket"
	wsHandler "edumarket-service/internal/handlers/websocket"
	xerrors "edumarket-service/internal/pkg/errors"
	"edumarket-service/internal/pkg/jwt"
	ws "edumarket-service/internal/websocket"
	"edumarket-service/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockNotificationService struct {
	mock.Mock
}

func (m *MockNotificationService) MarkAsRead(ctx context.Context, userID, id string) error {
	return m.Called(ctx, userID, id).Error(0)
}

func (m *MockNotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockNotificationService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// dialSubscribed connects as u1 and subscribes to the notifications channel
func dialSubscribed(t *testing.T, svc handler.NotificationService) *websocket.Conn {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	gen := jwt.NewGenerator(priv, "edumarket", "edumarket-users", "k1", time.Hour)
	verifier := jwt.NewVerifier(&priv.PublicKey, "edumarket", "edumarket-users")

	hub := ws.NewHub(verifier, nil, nil, nil)
	require.NoError(t, hub.RegisterHandler(handler.NewNotificationHandler(svc, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", wsHandler.NewWebSocketHandler(hub, nil, nil).HandleConnection)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	tok, _, err := gen.GenerateAccessToken("u1", []string{"student"}, "cli")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+tok, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Equal(t, wstypes.EventTypeConnected, readMsg(t, conn).Type)
	send(t, conn, wstypes.EventTypeSubscribe, wstypes.SubscribeRequest{
		Channels: []wstypes.ChannelType{wstypes.ChannelNotifications},
	})
	require.Equal(t, wstypes.EventTypeSubscribe, readMsg(t, conn).Type)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event wstypes.EventType, data interface{}) {
	t.Helper()
	raw, err := wstypes.NewMessage(event, data).ToJSON()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func readMsg(t *testing.T, conn *websocket.Conn) *wstypes.WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := wstypes.ParseMessage(raw)
	require.NoError(t, err)
	return msg
}

func readError(t *testing.T, conn *websocket.Conn) wstypes.ErrorData {
	t.Helper()
	msg := readMsg(t, conn)
	require.Equal(t, wstypes.EventTypeError, msg.Type)
	var e wstypes.ErrorData
	require.NoError(t, msg.DecodeData(&e))
	return e
}

func TestNotificationHandler_MarkAsRead(t *testing.T) {
	svc := new(MockNotificationService)
	svc.On("MarkAsRead", mock.Anything, "u1", "n1").Return(nil)
	svc.On("GetUnreadCount", mock.Anything, "u1").Return(2, nil)
	conn := dialSubscribed(t, svc)

	send(t, conn, wstypes.EventTypeNotificationRead, map[string]string{"notification_id": "n1"})

	msg := readMsg(t, conn)
	require.Equal(t, wstypes.EventTypeNotificationRead, msg.Type)
	var reply struct {
		NotificationID string `json:"notification_id"`
		Success        bool   `json:"success"`
		UnreadCount    int    `json:"unread_count"`
	}
	require.NoError(t, msg.DecodeData(&reply))
	assert.Equal(t, "n1", reply.NotificationID)
	assert.True(t, reply.Success)
	assert.Equal(t, 2, reply.UnreadCount)
	svc.AssertExpectations(t)
}

func TestNotificationHandler_MarkAsReadFailureHidesDetails(t *testing.T) {
	svc := new(MockNotificationService)
	svc.On("MarkAsRead", mock.Anything, "u1", "n9").
		Return(fmt.Errorf("failed to mark as read: select from notifications where id=n9: %w", xerrors.ErrNotFound))
	conn := dialSubscribed(t, svc)

	send(t, conn, wstypes.EventTypeNotificationRead, map[string]string{"notification_id": "n9"})

	e := readError(t, conn)
	assert.Equal(t, "mark_read_failed", e.Code)
	assert.Equal(t, xerrors.ErrNotFound.Error(), e.Details)
	svc.AssertNotCalled(t, "GetUnreadCount", mock.Anything, mock.Anything)
}

func TestNotificationHandler_MarkAllAsRead(t *testing.T) {
	svc := new(MockNotificationService)
	svc.On("MarkAllAsRead", mock.Anything, "u1").Return(int64(5), nil)
	conn := dialSubscribed(t, svc)

	send(t, conn, wstypes.EventTypeNotificationReadAll, nil)

	msg := readMsg(t, conn)
	require.Equal(t, wstypes.EventTypeNotificationReadAll, msg.Type)
	var reply struct {
		Updated     int64 `json:"updated"`
		UnreadCount int   `json:"unread_count"`
	}
	require.NoError(t, msg.DecodeData(&reply))
	assert.Equal(t, int64(5), reply.Updated)
	assert.Zero(t, reply.UnreadCount)
}

func TestNotificationHandler_CountFailureIsInternal(t *testing.T) {
	svc := new(MockNotificationService)
	svc.On("GetUnreadCount", mock.Anything, "u1").Return(0, errors.New("dial tcp 10.0.0.5:5432: connection refused"))
	conn := dialSubscribed(t, svc)

	send(t, conn, wstypes.EventTypeNotificationCount, nil)

	e := readError(t, conn)
	assert.Equal(t, "count_failed", e.Code)
	assert.Equal(t, xerrors.ErrInternal.Error(), e.Details)
	assert.NotContains(t, e.Details, "5432")
}

func TestNotificationHandler_CountAndBadPayload(t *testing.T) {
	svc := new(MockNotificationService)
	svc.On("GetUnreadCount", mock.Anything, "u1").Return(7, nil)
	conn := dialSubscribed(t, svc)

	send(t, conn, wstypes.EventTypeNotificationCount, nil)
	msg := readMsg(t, conn)
	require.Equal(t, wstypes.EventTypeNotificationCount, msg.Type)
	var reply struct {
		UnreadCount int `json:"unread_count"`
	}
	require.NoError(t, msg.DecodeData(&reply))
	assert.Equal(t, 7, reply.UnreadCount)

	send(t, conn, wstypes.EventTypeNotificationRead, "not an object")
	assert.Equal(t, "invalid_request", readError(t, conn).Code)
	svc.AssertNotCalled(t, "MarkAsRead", mock.Anything, mock.Anything, mock.Anything)
}
