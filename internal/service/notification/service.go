// internal/service/notification/service.go
package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"

	"go.uber.org/zap"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ErrDeliveryDisabled is returned when the recipient turned off in-app delivery for the type
var ErrDeliveryDisabled = errors.New("in-app delivery disabled by recipient")

type NotificationStore interface {
	Create(ctx context.Context, n *notification.Notification) error
	CreateBulk(ctx context.Context, userIDs []string, tmpl *notification.Notification) ([]string, error)
	FindByID(ctx context.Context, id string) (*notification.Notification, error)
	ListRecent(ctx context.Context, userID string, limit, offset int) ([]notification.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, id, userID string) error
	MarkAllAsRead(ctx context.Context, userID string) (int64, error)
	ArchiveOlderThan(ctx context.Context, daysOld int) (int64, error)
}

type TypeStore interface {
	ListActive(ctx context.Context) ([]notification.NotificationType, error)
	FindByName(ctx context.Context, name string) (*notification.NotificationType, error)
}

type PreferenceStore interface {
	ListByUser(ctx context.Context, userID string) ([]notification.NotificationPreference, error)
	Find(ctx context.Context, userID string, typeID int64) (*notification.NotificationPreference, error)
	Upsert(ctx context.Context, userID string, typeID int64, upd notification.PreferenceUpdate) (*notification.NotificationPreference, error)
}

// UnreadCache is optional; a nil cache disables caching
type UnreadCache interface {
	Get(ctx context.Context, userID string) (int, bool, error)
	Set(ctx context.Context, userID string, count int) error
	Invalidate(ctx context.Context, userID string) error
}

// CountNotifier pushes a user's unread counter to their open sockets
type CountNotifier interface {
	BroadcastNotificationCount(userID string, count int)
}

// NotificationService handles notification business logic. Row changes reach
// sockets through the database change feed; only counters are pushed from here.
type NotificationService struct {
	repo     NotificationStore
	types    TypeStore
	prefs    PreferenceStore
	cache    UnreadCache
	counters CountNotifier
	logger   *zap.Logger
}

func NewNotificationService(repo NotificationStore, types TypeStore, prefs PreferenceStore, cache UnreadCache, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:   repo,
		types:  types,
		prefs:  prefs,
		cache:  cache,
		logger: logger,
	}
}

// WithCountNotifier pushes the unread counter after read-state changes
func (s *NotificationService) WithCountNotifier(n CountNotifier) *NotificationService {
	s.counters = n
	return s
}

// CreateNotification creates a notification for one user. It returns
// ErrDeliveryDisabled when the user opted out of in-app delivery for the type.
func (s *NotificationService) CreateNotification(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	nt, err := s.activeType(ctx, req.TypeName)
	if err != nil {
		return nil, err
	}

	priority, err := resolvePriority(req.Priority, nt)
	if err != nil {
		return nil, err
	}

	pref, err := s.prefs.Find(ctx, req.UserID, nt.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preference: %w", err)
	}
	if !pref.InAppEnabled {
		s.logger.Info("notification skipped, in-app delivery disabled",
			zap.String("user_id", req.UserID),
			zap.String("type", req.TypeName),
		)
		return nil, ErrDeliveryDisabled
	}

	n := &notification.Notification{
		UserID:    req.UserID,
		TypeName:  nt.Name,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		Priority:  priority,
		ExpiresAt: req.ExpiresAt,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("failed to create notification", zap.Error(err), zap.String("user_id", req.UserID))
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	s.invalidate(ctx, req.UserID)

	s.logger.Info("notification created",
		zap.String("id", n.ID),
		zap.String("user_id", n.UserID),
		zap.String("type", n.TypeName),
		zap.String("priority", string(n.Priority)),
	)

	return n, nil
}

// CreateBulk sends the same notification to many users. Preferences are not
// consulted; bulk sends are platform announcements.
func (s *NotificationService) CreateBulk(ctx context.Context, req *notification.BulkNotificationRequest) ([]string, error) {
	nt, err := s.activeType(ctx, req.TypeName)
	if err != nil {
		return nil, err
	}

	priority, err := resolvePriority(req.Priority, nt)
	if err != nil {
		return nil, err
	}

	ids, err := s.repo.CreateBulk(ctx, dedupe(req.UserIDs), &notification.Notification{
		TypeName:  nt.Name,
		Title:     req.Title,
		Message:   req.Message,
		Data:      req.Data,
		Priority:  priority,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bulk notifications: %w", err)
	}

	for _, userID := range req.UserIDs {
		s.invalidate(ctx, userID)
	}

	s.logger.Info("bulk notifications created", zap.Int("count", len(ids)), zap.String("type", nt.Name))
	return ids, nil
}

// GetRecentNotifications returns a newest-first page. limit is clamped to
// [0, MaxPageSize]; a zero limit returns an empty page.
func (s *NotificationService) GetRecentNotifications(ctx context.Context, userID string, limit, offset int) ([]notification.Notification, error) {
	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("limit and offset must be non-negative: %w", xerrors.ErrInvalidInput)
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if limit == 0 {
		return []notification.Notification{}, nil
	}

	return s.repo.ListRecent(ctx, userID, limit, offset)
}

// GetNotification returns one notification owned by userID
func (s *NotificationService) GetNotification(ctx context.Context, userID, id string) (*notification.Notification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("notification %s: %w", id, xerrors.ErrNotFound)
	}
	return n, nil
}

// GetUnreadCount reads through the cache
func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	if s.cache != nil {
		n, ok, err := s.cache.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("unread cache read failed", zap.Error(err))
		} else if ok {
			return n, nil
		}
	}

	n, err := s.repo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, n); err != nil {
			s.logger.Warn("unread cache write failed", zap.Error(err))
		}
	}

	return n, nil
}

// MarkAsRead marks one notification as read
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id string) error {
	if id == "" {
		return fmt.Errorf("notification id is required: %w", xerrors.ErrInvalidInput)
	}
	if err := s.repo.MarkAsRead(ctx, id, userID); err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}
	s.invalidate(ctx, userID)
	s.pushCount(ctx, userID)
	return nil
}

// MarkAllAsRead returns the number of notifications that changed
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllAsRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark all as read: %w", err)
	}
	s.invalidate(ctx, userID)
	if s.counters != nil {
		s.counters.BroadcastNotificationCount(userID, 0)
	}
	return n, nil
}

func (s *NotificationService) ListTypes(ctx context.Context) ([]notification.NotificationType, error) {
	return s.types.ListActive(ctx)
}

func (s *NotificationService) GetPreferences(ctx context.Context, userID string) ([]notification.NotificationPreference, error) {
	return s.prefs.ListByUser(ctx, userID)
}

// UpdatePreference upserts the (user, type) preference with the given toggles
func (s *NotificationService) UpdatePreference(ctx context.Context, userID string, typeID int64, upd notification.PreferenceUpdate) (*notification.NotificationPreference, error) {
	if typeID <= 0 {
		return nil, fmt.Errorf("invalid type id %d: %w", typeID, xerrors.ErrInvalidInput)
	}
	if upd.Empty() {
		return nil, fmt.Errorf("no preference toggles given: %w", xerrors.ErrInvalidInput)
	}

	p, err := s.prefs.Upsert(ctx, userID, typeID, upd)
	if err != nil {
		return nil, err
	}

	s.logger.Info("notification preference updated",
		zap.String("user_id", userID),
		zap.Int64("type_id", typeID),
	)
	return p, nil
}

// ArchiveOldNotifications moves old read and expired notifications to the archive
func (s *NotificationService) ArchiveOldNotifications(ctx context.Context, daysOld int) (int64, error) {
	if daysOld < 1 {
		return 0, fmt.Errorf("days_old must be at least 1: %w", xerrors.ErrInvalidInput)
	}

	archived, err := s.repo.ArchiveOlderThan(ctx, daysOld)
	if err != nil {
		return 0, fmt.Errorf("failed to archive notifications: %w", err)
	}

	s.logger.Info("archived notifications", zap.Int64("archived", archived), zap.Int("days_old", daysOld))
	return archived, nil
}

// RunArchiver archives on every tick until ctx is done. A non-positive
// interval disables archiving.
func (s *NotificationService) RunArchiver(ctx context.Context, interval time.Duration, daysOld int) {
	if interval <= 0 {
		s.logger.Warn("archiver disabled", zap.Duration("interval", interval))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ArchiveOldNotifications(ctx, daysOld); err != nil {
				s.logger.Error("archive run failed", zap.Error(err))
			}
		}
	}
}

// InvalidateUnread drops the cached count for a user; the change feed calls it
func (s *NotificationService) InvalidateUnread(ctx context.Context, userID string) {
	s.invalidate(ctx, userID)
}

func (s *NotificationService) activeType(ctx context.Context, name string) (*notification.NotificationType, error) {
	nt, err := s.types.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			return nil, fmt.Errorf("notification type %q: %w", name, xerrors.ErrInvalidInput)
		}
		return nil, err
	}
	if !nt.IsActive {
		return nil, fmt.Errorf("notification type %q is inactive: %w", name, xerrors.ErrInvalidInput)
	}
	return nt, nil
}

func (s *NotificationService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("unread cache invalidation failed", zap.Error(err), zap.String("user_id", userID))
	}
}

func (s *NotificationService) pushCount(ctx context.Context, userID string) {
	if s.counters == nil {
		return
	}
	count, err := s.GetUnreadCount(ctx, userID)
	if err != nil {
		s.logger.Warn("unread count push skipped", zap.Error(err), zap.String("user_id", userID))
		return
	}
	s.counters.BroadcastNotificationCount(userID, count)
}

func resolvePriority(p notification.Priority, nt *notification.NotificationType) (notification.Priority, error) {
	if p == "" {
		if nt.DefaultPriority.Valid() {
			return nt.DefaultPriority, nil
		}
		return notification.PriorityNormal, nil
	}
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q: %w", p, xerrors.ErrInvalidInput)
	}
	return p, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
