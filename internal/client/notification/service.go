// Package notification is the client side of the notification system: a
// realtime subscription with reconnection, a listener registry, request
// operations that degrade to safe defaults, and a state container.
package notification

import (
	"context"
	"fmt"
	"sync"

	domain "edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"

	"go.uber.org/zap"
)

// Backend performs the remote procedures on behalf of the signed-in user
type Backend interface {
	GetUnreadCount(ctx context.Context) (int, error)
	GetRecentNotifications(ctx context.Context, limit, offset int) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, id string) error
	MarkAllAsRead(ctx context.Context) (int64, error)
	GetPreferences(ctx context.Context) ([]domain.NotificationPreference, error)
	UpdatePreference(ctx context.Context, typeID int64, upd domain.PreferenceUpdate) error
	// CreateNotification returns a nil id when the recipient's preferences skipped it
	CreateNotification(ctx context.Context, req *domain.CreateNotificationRequest) (*string, error)
}

// Dialer opens a change subscription scoped to one user. Dial returns once
// the subscription is acknowledged.
type Dialer interface {
	Dial(ctx context.Context, userID string) (Subscription, error)
}

// Subscription is a live change stream. Events is closed when the stream drops.
type Subscription interface {
	Events() <-chan domain.ChangeEvent
	Err() error
	Close() error
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithBridge(bridge PermissionBridge) Option {
	return func(s *Service) {
		if bridge != nil {
			s.bridge = bridge
		}
	}
}

func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func withAfterFunc(f afterFunc) Option {
	return func(s *Service) {
		s.after = f
	}
}

// Service owns the realtime subscription of the signed-in user
type Service struct {
	backend   Backend
	dialer    Dialer
	bridge    PermissionBridge
	policy    ReconnectPolicy
	after     afterFunc
	listeners *listenerRegistry
	logger    *zap.Logger

	reconnected chan struct{}

	mu       sync.Mutex
	state    State
	userID   string
	gen      uint64
	attempts int
	sub      Subscription
	timer    stopper
	connCtx  context.Context
	cancel   context.CancelFunc
}

func NewService(backend Backend, dialer Dialer, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		dialer:  dialer,
		bridge:  NoopBridge{},
		policy:  DefaultReconnectPolicy(),
		after:   realAfterFunc,
		logger:  zap.NewNop(),

		reconnected: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.listeners = newListenerRegistry(s.logger)
	return s
}

// Connect subscribes to userID's changes. Connecting as another user first
// tears down the current subscription. A failed first dial is returned and
// retried in the background per the reconnect policy.
func (s *Service) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("user id is required: %w", xerrors.ErrInvalidInput)
	}

	s.mu.Lock()
	if s.userID == userID && s.state != StateDisconnected {
		s.mu.Unlock()
		return nil
	}
	var stale Subscription
	if s.userID != "" {
		s.logger.Info("switching notification subscription",
			zap.String("from", s.userID),
			zap.String("to", userID),
		)
		stale = s.teardownLocked()
	}

	s.gen++
	gen := s.gen
	s.userID = userID
	s.attempts = 0
	s.connCtx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	closeSubscription(stale)
	return s.attempt(ctx, gen, false)
}

// Disconnect drops the subscription without reconnecting
func (s *Service) Disconnect() {
	s.mu.Lock()
	sub := s.teardownLocked()
	s.userID = ""
	s.mu.Unlock()

	closeSubscription(sub)
	s.logger.Debug("notification subscription closed")
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Service) IsConnected() bool {
	return s.State() == StateConnected
}

// Reconnected signals each time a background retry re-establishes the
// subscription. Changes made while it was down were not delivered, so holders
// of derived state should refresh. Signals coalesce.
func (s *Service) Reconnected() <-chan struct{} {
	return s.reconnected
}

func (s *Service) AddListener(kind EventKind, fn Listener) ListenerHandle {
	return s.listeners.add(kind, fn)
}

func (s *Service) RemoveListener(kind EventKind, handle ListenerHandle) bool {
	return s.listeners.remove(kind, handle)
}

func (s *Service) attempt(ctx context.Context, gen uint64, retry bool) error {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return nil
	}
	userID := s.userID
	s.state = StateConnecting
	s.mu.Unlock()

	sub, err := s.dialer.Dial(ctx, userID)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		closeSubscription(sub)
		return nil
	}
	if err != nil {
		s.state = StateDisconnected
		s.logger.Warn("notification subscription failed",
			zap.String("user_id", userID),
			zap.Int("attempt", s.attempts),
			zap.Error(err),
		)
		s.scheduleReconnectLocked(gen)
		s.mu.Unlock()
		return fmt.Errorf("subscribe for user %s: %w", userID, err)
	}

	s.sub = sub
	s.state = StateConnected
	s.attempts = 0
	s.mu.Unlock()

	s.logger.Info("notification subscription established", zap.String("user_id", userID), zap.Bool("retry", retry))
	if retry {
		select {
		case s.reconnected <- struct{}{}:
		default:
		}
	}
	go s.pump(gen, sub)
	return nil
}

// scheduleReconnectLocked must be called with s.mu held
func (s *Service) scheduleReconnectLocked(gen uint64) {
	if s.attempts >= s.policy.MaxAttempts {
		s.logger.Error("notification reconnect attempts exhausted",
			zap.String("user_id", s.userID),
			zap.Int("attempts", s.attempts),
		)
		return
	}
	s.attempts++
	delay := s.policy.Delay(s.attempts)
	s.logger.Info("scheduling notification reconnect",
		zap.Int("attempt", s.attempts),
		zap.Duration("delay", delay),
	)

	ctx := s.connCtx
	s.timer = s.after(delay, func() {
		_ = s.attempt(ctx, gen, true)
	})
}

func (s *Service) pump(gen uint64, sub Subscription) {
	for ev := range sub.Events() {
		s.deliver(gen, ev)
	}

	s.mu.Lock()
	if gen != s.gen || s.sub != sub {
		s.mu.Unlock()
		return
	}
	s.sub = nil
	s.state = StateDisconnected
	s.logger.Warn("notification subscription dropped",
		zap.String("user_id", s.userID),
		zap.Error(sub.Err()),
	)
	s.scheduleReconnectLocked(gen)
	s.mu.Unlock()

	closeSubscription(sub)
}

func (s *Service) deliver(gen uint64, ev domain.ChangeEvent) {
	s.mu.Lock()
	current := gen == s.gen
	userID := s.userID
	s.mu.Unlock()
	if !current {
		return
	}

	n := ev.Notification
	if n.UserID != userID {
		s.logger.Debug("dropping change for another user", zap.String("id", n.ID))
		return
	}

	switch ev.Op {
	case domain.ChangeInsert:
		s.showDesktop(n)
		s.listeners.dispatch(EventNew, n)
	case domain.ChangeUpdate:
		s.listeners.dispatch(EventUpdate, n)
	default:
		s.logger.Debug("ignoring change", zap.String("op", string(ev.Op)))
	}
}

func (s *Service) showDesktop(n domain.Notification) {
	if !s.bridge.Supported() || s.bridge.Permission() != PermissionGranted {
		return
	}
	err := s.bridge.Show(DesktopNotification{
		Title:              n.Title,
		Body:               n.Message,
		Icon:               n.Icon,
		Tag:                n.ID,
		RequireInteraction: n.Priority == domain.PriorityUrgent,
		Data:               n.Data,
	})
	if err != nil {
		s.logger.Warn("failed to show desktop notification", zap.String("id", n.ID), zap.Error(err))
	}
}

// teardownLocked invalidates in-flight work and returns the subscription to close
func (s *Service) teardownLocked() Subscription {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	sub := s.sub
	s.sub = nil
	s.state = StateDisconnected
	s.attempts = 0
	return sub
}

func closeSubscription(sub Subscription) {
	if sub != nil {
		_ = sub.Close()
	}
}

// ==================== Request operations ====================
//
// Every operation logs its failure and returns the safe default together
// with the error.

func (s *Service) GetUnreadCount(ctx context.Context) (int, error) {
	count, err := s.backend.GetUnreadCount(ctx)
	if err != nil {
		s.logger.Warn("failed to get unread count", zap.Error(err))
		return 0, err
	}
	return count, nil
}

func (s *Service) GetRecentNotifications(ctx context.Context, limit, offset int) ([]domain.Notification, error) {
	if limit < 0 || offset < 0 {
		err := fmt.Errorf("limit and offset must be non-negative: %w", xerrors.ErrInvalidInput)
		s.logger.Warn("rejected notification page request", zap.Int("limit", limit), zap.Int("offset", offset))
		return []domain.Notification{}, err
	}

	items, err := s.backend.GetRecentNotifications(ctx, limit, offset)
	if err != nil {
		s.logger.Warn("failed to get notifications",
			zap.Int("limit", limit),
			zap.Int("offset", offset),
			zap.Error(err),
		)
		return []domain.Notification{}, err
	}
	if items == nil {
		items = []domain.Notification{}
	}
	return items, nil
}

func (s *Service) MarkAsRead(ctx context.Context, id string) (bool, error) {
	if err := s.backend.MarkAsRead(ctx, id); err != nil {
		s.logger.Warn("failed to mark notification read", zap.String("id", id), zap.Error(err))
		return false, err
	}
	return true, nil
}

func (s *Service) MarkAllAsRead(ctx context.Context) (int64, error) {
	updated, err := s.backend.MarkAllAsRead(ctx)
	if err != nil {
		s.logger.Warn("failed to mark all notifications read", zap.Error(err))
		return 0, err
	}
	return updated, nil
}

func (s *Service) GetNotificationPreferences(ctx context.Context) ([]domain.NotificationPreference, error) {
	prefs, err := s.backend.GetPreferences(ctx)
	if err != nil {
		s.logger.Warn("failed to get notification preferences", zap.Error(err))
		return []domain.NotificationPreference{}, err
	}
	if prefs == nil {
		prefs = []domain.NotificationPreference{}
	}
	return prefs, nil
}

func (s *Service) UpdateNotificationPreference(ctx context.Context, typeID int64, upd domain.PreferenceUpdate) (bool, error) {
	if err := s.backend.UpdatePreference(ctx, typeID, upd); err != nil {
		s.logger.Warn("failed to update notification preference", zap.Int64("type_id", typeID), zap.Error(err))
		return false, err
	}
	return true, nil
}

// CreateNotification returns "" when the notification was skipped or failed
func (s *Service) CreateNotification(ctx context.Context, req *domain.CreateNotificationRequest) (string, error) {
	id, err := s.backend.CreateNotification(ctx, req)
	if err != nil {
		s.logger.Warn("failed to create notification", zap.String("user_id", req.UserID), zap.Error(err))
		return "", err
	}
	if id == nil {
		s.logger.Debug("notification skipped by recipient preference", zap.String("user_id", req.UserID))
		return "", nil
	}
	return *id, nil
}

// RequestNotificationPermission prompts only when the host supports desktop
// notifications and the user has not already denied them.
func (s *Service) RequestNotificationPermission(ctx context.Context) (bool, error) {
	if !s.bridge.Supported() {
		return false, nil
	}
	switch s.bridge.Permission() {
	case PermissionGranted:
		return true, nil
	case PermissionDenied:
		return false, nil
	}

	perm, err := s.bridge.RequestPermission(ctx)
	if err != nil {
		s.logger.Warn("failed to request notification permission", zap.Error(err))
		return false, err
	}
	return perm == PermissionGranted, nil
}
