package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"edumarket-service/internal/client/notification"
	domain "edumarket-service/internal/domain/notification"
	wstypes "edumarket-service/internal/domain/websocket"
	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	maxMessageSize    = 512 * 1024
	defaultAckTimeout = 10 * time.Second
	eventBuffer       = 64
)

// ErrSessionEnded is reported when the server closes the session on purpose
var ErrSessionEnded = errors.New("session ended by server")

// WSDialer opens the /ws change subscription. Dial returns after the server
// has acknowledged the notifications channel.
type WSDialer struct {
	url        string
	token      string
	dialer     *websocket.Dialer
	ackTimeout time.Duration
	logger     *zap.Logger
}

var _ notification.Dialer = (*WSDialer)(nil)

func NewWSDialer(wsURL, token string, logger *zap.Logger) *WSDialer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSDialer{
		url:   wsURL,
		token: token,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		ackTimeout: defaultAckTimeout,
		logger:     logger,
	}
}

// WithAckTimeout bounds how long Dial waits for connected and the subscribe ack
func (d *WSDialer) WithAckTimeout(timeout time.Duration) *WSDialer {
	if timeout > 0 {
		d.ackTimeout = timeout
	}
	return d
}

func (d *WSDialer) Dial(ctx context.Context, userID string) (notification.Subscription, error) {
	u, err := url.Parse(d.url)
	if err != nil {
		return nil, fmt.Errorf("parse websocket url: %w", err)
	}
	q := u.Query()
	q.Set("token", d.token)
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			if sentinel := xerrors.FromHTTPStatus(resp.StatusCode); sentinel != nil {
				return nil, fmt.Errorf("websocket handshake: status %d: %w", resp.StatusCode, sentinel)
			}
		}
		return nil, fmt.Errorf("websocket dial: %v: %w", err, xerrors.ErrUnavailable)
	}

	if err := d.handshake(ctx, conn, userID); err != nil {
		conn.Close()
		return nil, err
	}

	sub := newWSSubscription(conn, d.logger.With(zap.String("user_id", userID)))
	go sub.readLoop()
	return sub, nil
}

// handshake waits for connected, checks the user and subscribes to notifications
func (d *WSDialer) handshake(ctx context.Context, conn *websocket.Conn, userID string) error {
	deadline := time.Now().Add(d.ackTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(deadline)

	msg, err := readMessage(conn)
	if err != nil {
		return fmt.Errorf("waiting for connected: %w", err)
	}
	if msg.Type != wstypes.EventTypeConnected {
		return fmt.Errorf("expected %s, got %s: %w", wstypes.EventTypeConnected, msg.Type, xerrors.ErrInternal)
	}
	var info struct {
		UserID string `json:"user_id"`
	}
	if err := msg.DecodeData(&info); err != nil {
		return fmt.Errorf("decode connected: %w", err)
	}
	if info.UserID != userID {
		return fmt.Errorf("token belongs to %q, not %q: %w", info.UserID, userID, xerrors.ErrForbidden)
	}

	req := wstypes.NewMessage(wstypes.EventTypeSubscribe, wstypes.SubscribeRequest{
		Channels: []wstypes.ChannelType{wstypes.ChannelNotifications},
	})
	raw, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("encode subscribe: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("send subscribe: %w", err)
	}

	for {
		msg, err := readMessage(conn)
		if err != nil {
			return fmt.Errorf("waiting for subscribe ack: %w", err)
		}
		switch msg.Type {
		case wstypes.EventTypeSubscribe:
			var ack wstypes.SubscriptionAck
			if err := msg.DecodeData(&ack); err != nil {
				return fmt.Errorf("decode subscribe ack: %w", err)
			}
			if ack.Status != wstypes.SubscriptionStatusSubscribed || !hasChannel(ack.Channels, wstypes.ChannelNotifications) {
				return fmt.Errorf("subscription refused (status %q): %w", ack.Status, xerrors.ErrForbidden)
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		case wstypes.EventTypeError:
			var e wstypes.ErrorData
			_ = msg.DecodeData(&e)
			return fmt.Errorf("subscribe rejected: %s: %w", e.Message, xerrors.ErrInvalidInput)
		default:
			d.logger.Debug("ignoring message before subscribe ack", zap.String("type", string(msg.Type)))
		}
	}
}

func readMessage(conn *websocket.Conn) (*wstypes.WSMessage, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return wstypes.ParseMessage(data)
}

func hasChannel(channels []wstypes.ChannelType, want wstypes.ChannelType) bool {
	for _, ch := range channels {
		if ch == want {
			return true
		}
	}
	return false
}

// wsSubscription turns server change messages into ChangeEvents
type wsSubscription struct {
	conn   *websocket.Conn
	events chan domain.ChangeEvent
	done   chan struct{}
	logger *zap.Logger

	closeOnce sync.Once
	writeMu   sync.Mutex

	mu  sync.Mutex
	err error
}

func newWSSubscription(conn *websocket.Conn, logger *zap.Logger) *wsSubscription {
	s := &wsSubscription{
		conn:   conn,
		events: make(chan domain.ChangeEvent, eventBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	return s
}

func (s *wsSubscription) Events() <-chan domain.ChangeEvent {
	return s.events
}

func (s *wsSubscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *wsSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		err = s.conn.Close()
	})
	return err
}

func (s *wsSubscription) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *wsSubscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *wsSubscription) readLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			s.setErr(err)
			return
		}

		msg, err := wstypes.ParseMessage(data)
		if err != nil {
			s.logger.Debug("skipping undecodable message", zap.Error(err))
			continue
		}

		switch msg.Type {
		case wstypes.EventTypeNotificationInsert, wstypes.EventTypeNotificationUpdate:
			var n domain.Notification
			if err := msg.DecodeData(&n); err != nil {
				s.logger.Debug("skipping malformed change", zap.Error(err))
				continue
			}
			op := domain.ChangeInsert
			if msg.Type == wstypes.EventTypeNotificationUpdate {
				op = domain.ChangeUpdate
			}
			select {
			case s.events <- domain.ChangeEvent{Op: op, Notification: n}:
			case <-s.done:
				return
			}
		case wstypes.EventTypeDisconnected, wstypes.EventTypeForceLogout:
			s.logger.Info("server ended websocket session", zap.String("type", string(msg.Type)))
			s.setErr(ErrSessionEnded)
			return
		case wstypes.EventTypeError:
			var e wstypes.ErrorData
			_ = msg.DecodeData(&e)
			s.logger.Warn("websocket error from server", zap.String("code", e.Code), zap.String("message", e.Message))
		default:
			s.logger.Debug("ignoring websocket message", zap.String("type", string(msg.Type)))
		}
	}
}
