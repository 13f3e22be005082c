// internal/websocket/hub.go
package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"edumarket-service/internal/domain/notification"
	wstypes "edumarket-service/internal/domain/websocket"
	"edumarket-service/internal/metrics"
	"edumarket-service/internal/pkg/jwt"

	"go.uber.org/zap"
)

// TokenVerifier validates access tokens
type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

// TokenBlacklist reports revoked token ids
type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

type Hub struct {
	// Registered clients by user ID
	clients map[string]map[*Client]bool
	mu      sync.RWMutex

	// Registration/unregistration
	Register   chan *Client
	unregister chan *Client

	// Broadcasting
	broadcast chan *BroadcastMessage
	done      chan struct{}
	closeOnce sync.Once

	// Handler registry for modular message handling
	handlerRegistry *HandlerRegistry

	// Auth dependencies
	verifier  TokenVerifier
	blacklist TokenBlacklist

	logger  *zap.Logger
	metrics *metrics.Metrics
}

type BroadcastMessage struct {
	UserIDs []string
	Channel wstypes.ChannelType
	Message *wstypes.WSMessage
}

// Stats is a point-in-time view of the hub
type Stats struct {
	TotalConnections int       `json:"total_connections"`
	ConnectedUsers   int       `json:"connected_users"`
	Timestamp        time.Time `json:"timestamp"`
}

func NewHub(verifier TokenVerifier, blacklist TokenBlacklist, logger *zap.Logger, m *metrics.Metrics) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:         make(map[string]map[*Client]bool),
		Register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *BroadcastMessage, 256),
		done:            make(chan struct{}),
		handlerRegistry: NewHandlerRegistry(),
		verifier:        verifier,
		blacklist:       blacklist,
		logger:          logger,
		metrics:         m,
	}
}

// AuthenticateClient validates the JWT token and returns the client identity
func (h *Hub) AuthenticateClient(ctx context.Context, token string) (*ClientAuth, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	claims, err := h.verifier.VerifyAccessToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if h.blacklist != nil {
		blacklisted, err := h.blacklist.IsTokenBlacklisted(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthUnavailable, err)
		}
		if blacklisted {
			return nil, ErrTokenBlacklisted
		}
	}

	auth := &ClientAuth{
		UserID:    claims.UserID(),
		SessionID: claims.ID,
		Roles:     claims.Roles,
		Device:    claims.Device,
	}
	if claims.ExpiresAt != nil {
		auth.ExpiresAt = claims.ExpiresAt.Time
	}
	return auth, nil
}

// RegisterHandler adds a client message handler. Event types may only be
// claimed once.
func (h *Hub) RegisterHandler(handler MessageHandler) error {
	return h.handlerRegistry.Register(handler)
}

// HandleClientMessage reports whether a registered handler claimed msg
func (h *Hub) HandleClientMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	return h.handlerRegistry.Dispatch(ctx, client, msg)
}

// RegisterClient hands client to Run. It reports false once the hub has stopped.
func (h *Hub) RegisterClient(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.BroadcastMessage(msg)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.clients[client.userID] == nil {
		h.clients[client.userID] = make(map[*Client]bool)
	}
	h.clients[client.userID][client] = true
	total := h.totalClients()
	h.mu.Unlock()

	h.setConnectionGauge(total)
	h.logger.Info("websocket client connected",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)

	client.SendMessage(wstypes.NewMessage(wstypes.EventTypeConnected, map[string]interface{}{
		"user_id":    client.userID,
		"session_id": client.sessionID,
		"roles":      client.roles,
		"device":     client.device,
	}))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.clients[client.userID]
	if !ok || !clients[client] {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.userID)
	}
	total := h.totalClients()
	h.mu.Unlock()

	client.Close()
	h.setConnectionGauge(total)
	h.logger.Info("websocket client disconnected",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.sessionID),
		zap.Int("total", total),
	)
}

// BroadcastMessage delivers msg to every subscribed client of the target users,
// or of all users when UserIDs is nil
func (h *Hub) BroadcastMessage(msg *BroadcastMessage) {
	h.mu.RLock()
	var targets []*Client
	if msg.UserIDs == nil {
		for _, clients := range h.clients {
			for client := range clients {
				if client.IsSubscribed(msg.Channel) {
					targets = append(targets, client)
				}
			}
		}
	} else {
		for _, userID := range msg.UserIDs {
			for client := range h.clients[userID] {
				if client.IsSubscribed(msg.Channel) {
					targets = append(targets, client)
				}
			}
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.SendMessage(msg.Message)
	}
	if h.metrics != nil && len(targets) > 0 {
		h.metrics.WSMessagesSent.WithLabelValues(string(msg.Message.Type)).Add(float64(len(targets)))
	}
}

func (h *Hub) GetConnectedClients(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.totalClients()
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{
		TotalConnections: h.totalClients(),
		ConnectedUsers:   len(h.clients),
		Timestamp:        time.Now(),
	}
}

// Public methods for broadcasting

// BroadcastNotificationChange pushes a change feed event to the owner's
// notification subscribers
func (h *Hub) BroadcastNotificationChange(op notification.ChangeOp, n *notification.Notification) {
	eventType := wstypes.EventTypeNotificationInsert
	if op == notification.ChangeUpdate {
		eventType = wstypes.EventTypeNotificationUpdate
	}

	h.enqueue(&BroadcastMessage{
		UserIDs: []string{n.UserID},
		Channel: wstypes.ChannelNotifications,
		Message: wstypes.NewMessage(eventType, n),
	})
}

// BroadcastNotificationCount pushes the current unread counter to the user's
// notification subscribers
func (h *Hub) BroadcastNotificationCount(userID string, count int) {
	h.enqueue(&BroadcastMessage{
		UserIDs: []string{userID},
		Channel: wstypes.ChannelNotifications,
		Message: wstypes.NewMessage(wstypes.EventTypeNotificationCount, map[string]interface{}{
			"unread_count": count,
		}),
	})
}

// IsUserConnected checks if a user has any active connections
func (h *Hub) IsUserConnected(userID string) bool {
	return h.GetConnectedClients(userID) > 0
}

// DisconnectSession closes every connection opened with the given token id
func (h *Hub) DisconnectSession(userID, sessionID, reason string) {
	closed := h.dropClients(userID, func(c *Client) bool { return c.sessionID == sessionID })
	if len(closed) == 0 {
		return
	}

	msg := wstypes.NewMessage(wstypes.EventTypeDisconnected, map[string]interface{}{
		"reason": reason,
	})
	for _, client := range closed {
		client.SendMessage(msg)
		client.Close()
	}

	h.logger.Info("disconnected session",
		zap.String("user_id", userID),
		zap.String("session_id", sessionID),
		zap.String("reason", reason),
	)
}

// ForceLogout tells every connection of the user to sign out and closes it.
// Subscriptions are not consulted.
func (h *Hub) ForceLogout(userID, reason string) int {
	closed := h.dropClients(userID, func(*Client) bool { return true })
	for _, client := range closed {
		client.SendMessage(wstypes.NewMessage(wstypes.EventTypeForceLogout, wstypes.SessionEventData{
			SessionID: client.sessionID,
			Reason:    reason,
			Message:   "You have been logged out",
		}))
		client.Close()
	}

	if len(closed) > 0 {
		h.logger.Info("forced logout",
			zap.String("user_id", userID),
			zap.String("reason", reason),
			zap.Int("connections", len(closed)),
		)
	}
	return len(closed)
}

// dropClients removes the user's clients that match and returns them
func (h *Hub) dropClients(userID string, match func(*Client) bool) []*Client {
	h.mu.Lock()
	var dropped []*Client
	for client := range h.clients[userID] {
		if match(client) {
			dropped = append(dropped, client)
			delete(h.clients[userID], client)
		}
	}
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
	total := h.totalClients()
	h.mu.Unlock()

	if len(dropped) > 0 {
		h.setConnectionGauge(total)
	}
	return dropped
}

// enqueue hands a message to Run; it is dropped once the hub has stopped
func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
		h.logger.Debug("hub stopped, dropping broadcast", zap.String("type", string(msg.Message.Type)))
	}
}

func (h *Hub) totalClients() int {
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}

func (h *Hub) setConnectionGauge(total int) {
	if h.metrics != nil {
		h.metrics.WSConnections.Set(float64(total))
	}
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() { close(h.done) })

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.clients {
		for client := range clients {
			client.Close()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	h.setConnectionGauge(0)
}
