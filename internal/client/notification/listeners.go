package notification

import (
	"fmt"
	"sync"

	domain "edumarket-service/internal/domain/notification"

	"go.uber.org/zap"
)

// EventKind names a class of change delivered to listeners
type EventKind string

const (
	EventNew    EventKind = "new"
	EventUpdate EventKind = "update"
)

// Listener receives one notification per event
type Listener func(n domain.Notification)

// ListenerHandle identifies a registration for RemoveListener
type ListenerHandle uint64

type registration struct {
	handle ListenerHandle
	fn     Listener
}

type listenerRegistry struct {
	mu     sync.Mutex
	next   ListenerHandle
	byKind map[EventKind][]registration
	logger *zap.Logger
}

func newListenerRegistry(logger *zap.Logger) *listenerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &listenerRegistry{
		byKind: make(map[EventKind][]registration),
		logger: logger,
	}
}

func (r *listenerRegistry) add(kind EventKind, fn Listener) ListenerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.byKind[kind] = append(r.byKind[kind], registration{handle: r.next, fn: fn})
	return r.next
}

// remove drops the first registration matching handle and reports whether one was found
func (r *listenerRegistry) remove(kind EventKind, handle ListenerHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	regs := r.byKind[kind]
	for i, reg := range regs {
		if reg.handle == handle {
			r.byKind[kind] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

func (r *listenerRegistry) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKind[kind])
}

// dispatch calls every listener of kind in registration order. A panicking
// listener is logged and does not stop the others.
func (r *listenerRegistry) dispatch(kind EventKind, n domain.Notification) {
	r.mu.Lock()
	regs := make([]registration, len(r.byKind[kind]))
	copy(regs, r.byKind[kind])
	r.mu.Unlock()

	for _, reg := range regs {
		r.call(kind, reg, n)
	}
}

func (r *listenerRegistry) call(kind EventKind, reg registration, n domain.Notification) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("notification listener panicked",
				zap.String("kind", string(kind)),
				zap.Uint64("handle", uint64(reg.handle)),
				zap.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	reg.fn(n)
}
