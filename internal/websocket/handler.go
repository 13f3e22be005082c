// internal/websocket/handler.go
package websocket

import (
	"context"
	"fmt"
	"sync"

	wstypes "edumarket-service/internal/domain/websocket"
)

// MessageHandler serves client requests for one channel
type MessageHandler interface {
	HandleMessage(ctx context.Context, client *Client, msg *wstypes.WSMessage) error

	// Channel is the subscription a client needs before its requests are served
	Channel() wstypes.ChannelType

	SupportedEvents() []wstypes.EventType
}

// HandlerRegistry maps client event types to the handler that owns them
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[wstypes.EventType]MessageHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		handlers: make(map[wstypes.EventType]MessageHandler),
	}
}

// Register claims every event of handler. Nothing is registered when one of
// them already belongs to another handler.
func (r *HandlerRegistry) Register(handler MessageHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	events := handler.SupportedEvents()
	for _, eventType := range events {
		if _, taken := r.handlers[eventType]; taken {
			return fmt.Errorf("event %s already has a handler", eventType)
		}
	}
	for _, eventType := range events {
		r.handlers[eventType] = handler
	}
	return nil
}

func (r *HandlerRegistry) GetHandler(eventType wstypes.EventType) (MessageHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, exists := r.handlers[eventType]
	return handler, exists
}

// Dispatch routes msg to its handler. It reports false when no handler owns
// the event. Clients not subscribed to the handler's channel get a
// not_subscribed error instead.
func (r *HandlerRegistry) Dispatch(ctx context.Context, client *Client, msg *wstypes.WSMessage) (bool, error) {
	handler, exists := r.GetHandler(msg.Type)
	if !exists {
		return false, nil
	}
	if channel := handler.Channel(); !client.IsSubscribed(channel) {
		client.SendError("not_subscribed", fmt.Sprintf("Subscribe to %s first", channel), string(msg.Type))
		return true, nil
	}
	return true, handler.HandleMessage(ctx, client, msg)
}
