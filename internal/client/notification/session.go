package notification

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Session binds a Service and a Store to the sign-in lifecycle
type Session struct {
	svc    *Service
	store  *Store
	logger *zap.Logger

	mu     sync.Mutex
	userID string
}

func NewSession(svc *Service, store *Store, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{svc: svc, store: store, logger: logger}
}

// SignIn connects and loads state for userID. Signing in as the current user
// is a no-op; signing in as another user signs the current one out first.
// A failed subscription is logged and retried in the background; only store
// loading errors are returned.
func (s *Session) SignIn(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == s.userID {
		return nil
	}
	if s.userID != "" {
		s.signOutLocked()
	}
	s.userID = userID

	if err := s.svc.Connect(ctx, userID); err != nil {
		s.logger.Warn("realtime notifications unavailable, retrying in background",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
	return s.store.Init(ctx, userID)
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signOutLocked()
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) Store() *Store {
	return s.store
}

func (s *Session) Service() *Service {
	return s.svc
}

func (s *Session) signOutLocked() {
	if s.userID == "" {
		return
	}
	s.logger.Info("signing out of notifications", zap.String("user_id", s.userID))
	s.store.Reset()
	s.svc.Disconnect()
	s.userID = ""
}
