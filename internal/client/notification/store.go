package notification

import (
	"context"
	"sync"
	"time"

	domain "edumarket-service/internal/domain/notification"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PageSize is the number of notifications fetched per page
const PageSize = 20

// Source is what the store needs from the service. *Service implements it.
type Source interface {
	GetUnreadCount(ctx context.Context) (int, error)
	GetRecentNotifications(ctx context.Context, limit, offset int) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, id string) (bool, error)
	MarkAllAsRead(ctx context.Context) (int64, error)
	GetNotificationPreferences(ctx context.Context) ([]domain.NotificationPreference, error)
	UpdateNotificationPreference(ctx context.Context, typeID int64, upd domain.PreferenceUpdate) (bool, error)
	AddListener(kind EventKind, fn Listener) ListenerHandle
	RemoveListener(kind EventKind, handle ListenerHandle) bool
}

// Snapshot is a copy of the store state
type Snapshot struct {
	UserID        string
	Notifications []domain.Notification
	UnreadCount   int
	Preferences   []domain.NotificationPreference
	Loading       bool
	LoadingMore   bool
	HasMore       bool
	Offset        int
	LastError     error
}

type listenerRef struct {
	kind   EventKind
	handle ListenerHandle
}

// Store holds the signed-in user's notification list, unread counter and
// preferences. Work started for an earlier user is discarded on completion.
type Store struct {
	src    Source
	logger *zap.Logger

	mu            sync.Mutex
	epoch         uint64
	userID        string
	notifications []domain.Notification
	unread        int
	prefs         []domain.NotificationPreference
	loading       bool
	loadingMore   bool
	hasMore       bool
	offset        int
	lastErr       error
	refs          []listenerRef

	changes chan struct{}
}

func NewStore(src Source, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		src:     src,
		logger:  logger,
		changes: make(chan struct{}, 1),
	}
}

// Changes signals state changes. Signals coalesce, so read Snapshot after each.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// Init loads the first page, the unread count and the preferences concurrently
// and then subscribes to live changes. Parts that load successfully are kept
// even if another part fails; the first failure is returned and recorded.
func (s *Store) Init(ctx context.Context, userID string) error {
	s.mu.Lock()
	s.resetLocked()
	s.epoch++
	epoch := s.epoch
	s.userID = userID
	s.loading = true
	s.hasMore = true
	s.mu.Unlock()
	s.notify()

	var (
		page                       []domain.Notification
		count                      int
		prefs                      []domain.NotificationPreference
		pageErr, countErr, prefErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		page, pageErr = s.src.GetRecentNotifications(ctx, PageSize, 0)
		return pageErr
	})
	g.Go(func() error {
		count, countErr = s.src.GetUnreadCount(ctx)
		return countErr
	})
	g.Go(func() error {
		prefs, prefErr = s.src.GetNotificationPreferences(ctx)
		return prefErr
	})
	err := g.Wait()

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	if pageErr == nil {
		s.notifications = page
		s.offset = PageSize
		s.hasMore = len(page) == PageSize
	}
	if countErr == nil {
		s.unread = count
	}
	if prefErr == nil {
		s.prefs = prefs
	}
	s.loading = false
	s.lastErr = err
	s.refs = []listenerRef{
		{kind: EventNew, handle: s.src.AddListener(EventNew, s.onNew)},
		{kind: EventUpdate, handle: s.src.AddListener(EventUpdate, s.onUpdate)},
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.Warn("notification store initialized with errors", zap.String("user_id", userID), zap.Error(err))
	}
	return err
}

// LoadMore appends the next page. It is a no-op without a user, while another
// LoadMore is in flight, or once the end has been reached.
func (s *Store) LoadMore(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == "" || s.loadingMore || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	epoch := s.epoch
	offset := s.offset
	s.mu.Unlock()
	s.notify()

	page, err := s.src.GetRecentNotifications(ctx, PageSize, offset)

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = false
	if err != nil {
		s.lastErr = err
		s.mu.Unlock()
		s.notify()
		return err
	}

	k := len(page)
	s.notifications = append(s.notifications, page...)
	s.offset += k
	s.hasMore = k == PageSize
	s.mu.Unlock()
	s.notify()
	return nil
}

// Refresh replaces the list with the first page and reloads the unread count
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.userID == "" {
		s.mu.Unlock()
		return nil
	}
	epoch := s.epoch
	s.loading = true
	s.mu.Unlock()
	s.notify()

	var (
		page              []domain.Notification
		count             int
		pageErr, countErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		page, pageErr = s.src.GetRecentNotifications(ctx, PageSize, 0)
		return pageErr
	})
	g.Go(func() error {
		count, countErr = s.src.GetUnreadCount(ctx)
		return countErr
	})
	err := g.Wait()

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	if pageErr == nil {
		s.notifications = page
		s.offset = PageSize
		s.hasMore = len(page) == PageSize
	}
	if countErr == nil {
		s.unread = count
	}
	s.loading = false
	if err != nil {
		s.lastErr = err
	}
	s.mu.Unlock()
	s.notify()
	return err
}

func (s *Store) onNew(n domain.Notification) {
	s.mu.Lock()
	if s.userID == "" || s.indexLocked(n.ID) >= 0 {
		s.mu.Unlock()
		return
	}
	s.notifications = append([]domain.Notification{n}, s.notifications...)
	if !n.IsRead {
		s.unread++
	}
	s.mu.Unlock()
	s.notify()
}

func (s *Store) onUpdate(n domain.Notification) {
	s.mu.Lock()
	idx := s.indexLocked(n.ID)
	if s.userID == "" || idx < 0 {
		s.mu.Unlock()
		return
	}
	wasUnread := !s.notifications[idx].IsRead
	s.notifications[idx] = n
	if wasUnread && n.IsRead {
		s.decrementLocked()
	}
	s.mu.Unlock()
	s.notify()
}

// MarkAsRead marks id read remotely, then locally. Marking an item that is
// already read leaves the counter alone. When the item is not loaded the
// counter is reloaded instead.
func (s *Store) MarkAsRead(ctx context.Context, id string) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	if _, err := s.src.MarkAsRead(ctx, id); err != nil {
		s.setError(epoch, err)
		return err
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	idx := s.indexLocked(id)
	if idx >= 0 && !s.notifications[idx].IsRead {
		now := time.Now()
		s.notifications[idx].IsRead = true
		s.notifications[idx].ReadAt = &now
		s.decrementLocked()
	}
	s.mu.Unlock()
	s.notify()

	if idx < 0 {
		return s.resyncUnread(ctx, epoch)
	}
	return nil
}

// MarkAllAsRead clears the local unread state only when the backend reports
// that rows changed
func (s *Store) MarkAllAsRead(ctx context.Context) (int64, error) {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	updated, err := s.src.MarkAllAsRead(ctx)
	if err != nil {
		s.setError(epoch, err)
		return 0, err
	}
	if updated == 0 {
		return 0, nil
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return updated, nil
	}
	now := time.Now()
	for i := range s.notifications {
		if !s.notifications[i].IsRead {
			s.notifications[i].IsRead = true
			s.notifications[i].ReadAt = &now
		}
	}
	s.unread = 0
	s.mu.Unlock()
	s.notify()
	return updated, nil
}

// UpdatePreference patches the local preference after the backend accepts it
func (s *Store) UpdatePreference(ctx context.Context, typeID int64, upd domain.PreferenceUpdate) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	if _, err := s.src.UpdateNotificationPreference(ctx, typeID, upd); err != nil {
		s.setError(epoch, err)
		return err
	}

	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return nil
	}
	found := false
	for i := range s.prefs {
		if s.prefs[i].TypeID == typeID {
			s.prefs[i].Apply(upd)
			s.prefs[i].UpdatedAt = time.Now()
			found = true
			break
		}
	}
	if !found {
		pref := domain.DefaultPreference(s.userID, typeID)
		pref.Apply(upd)
		pref.UpdatedAt = time.Now()
		s.prefs = append(s.prefs, pref)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Reset clears all state and unsubscribes from live changes
func (s *Store) Reset() {
	s.mu.Lock()
	s.resetLocked()
	s.epoch++
	s.mu.Unlock()
	s.notify()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.Notification, len(s.notifications))
	copy(items, s.notifications)
	prefs := make([]domain.NotificationPreference, len(s.prefs))
	copy(prefs, s.prefs)

	return Snapshot{
		UserID:        s.userID,
		Notifications: items,
		UnreadCount:   s.unread,
		Preferences:   prefs,
		Loading:       s.loading,
		LoadingMore:   s.loadingMore,
		HasMore:       s.hasMore,
		Offset:        s.offset,
		LastError:     s.lastErr,
	}
}

func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Store) resyncUnread(ctx context.Context, epoch uint64) error {
	count, err := s.src.GetUnreadCount(ctx)
	if err != nil {
		s.setError(epoch, err)
		return err
	}
	s.mu.Lock()
	if epoch == s.epoch {
		s.unread = count
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) setError(epoch uint64, err error) {
	s.mu.Lock()
	if epoch == s.epoch {
		s.lastErr = err
	}
	s.mu.Unlock()
	s.notify()
}

// resetLocked must be called with s.mu held
func (s *Store) resetLocked() {
	for _, ref := range s.refs {
		s.src.RemoveListener(ref.kind, ref.handle)
	}
	s.refs = nil
	s.userID = ""
	s.notifications = nil
	s.unread = 0
	s.prefs = nil
	s.loading = false
	s.loadingMore = false
	s.hasMore = false
	s.offset = 0
	s.lastErr = nil
}

func (s *Store) indexLocked(id string) int {
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) decrementLocked() {
	if s.unread > 0 {
		s.unread--
	}
}
