package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	domain "edumarket-service/internal/domain/notification"

	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) GetUnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockBackend) GetRecentNotifications(ctx context.Context, limit, offset int) ([]domain.Notification, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *MockBackend) MarkAsRead(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBackend) MarkAllAsRead(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockBackend) GetPreferences(ctx context.Context) ([]domain.NotificationPreference, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.NotificationPreference), args.Error(1)
}

func (m *MockBackend) UpdatePreference(ctx context.Context, typeID int64, upd domain.PreferenceUpdate) error {
	return m.Called(ctx, typeID, upd).Error(0)
}

func (m *MockBackend) CreateNotification(ctx context.Context, req *domain.CreateNotificationRequest) (*string, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*string), args.Error(1)
}

// MockSource stubs the request side of the service and keeps a real listener registry
type MockSource struct {
	mock.Mock
	reg *listenerRegistry
}

func newMockSource() *MockSource {
	return &MockSource{reg: newListenerRegistry(nil)}
}

func (m *MockSource) GetUnreadCount(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSource) GetRecentNotifications(ctx context.Context, limit, offset int) ([]domain.Notification, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return []domain.Notification{}, args.Error(1)
	}
	return args.Get(0).([]domain.Notification), args.Error(1)
}

func (m *MockSource) MarkAsRead(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockSource) MarkAllAsRead(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockSource) GetNotificationPreferences(ctx context.Context) ([]domain.NotificationPreference, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return []domain.NotificationPreference{}, args.Error(1)
	}
	return args.Get(0).([]domain.NotificationPreference), args.Error(1)
}

func (m *MockSource) UpdateNotificationPreference(ctx context.Context, typeID int64, upd domain.PreferenceUpdate) (bool, error) {
	args := m.Called(ctx, typeID, upd)
	return args.Bool(0), args.Error(1)
}

func (m *MockSource) AddListener(kind EventKind, fn Listener) ListenerHandle {
	return m.reg.add(kind, fn)
}

func (m *MockSource) RemoveListener(kind EventKind, handle ListenerHandle) bool {
	return m.reg.remove(kind, handle)
}

type fakeSubscription struct {
	events    chan domain.ChangeEvent
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		events: make(chan domain.ChangeEvent, 8),
		closed: make(chan struct{}),
	}
}

func (f *fakeSubscription) Events() <-chan domain.ChangeEvent { return f.events }
func (f *fakeSubscription) Err() error                         { return nil }

func (f *fakeSubscription) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSubscription) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// fakeDialer hands out queued results in order, then fails
type fakeDialer struct {
	mu      sync.Mutex
	users   []string
	results []dialResult
}

type dialResult struct {
	sub *fakeSubscription
	err error
}

func (d *fakeDialer) Dial(ctx context.Context, userID string) (Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = append(d.users, userID)
	if len(d.results) == 0 {
		return nil, fmt.Errorf("dial %s: connection refused", userID)
	}
	r := d.results[0]
	d.results = d.results[1:]
	if r.err != nil {
		return nil, r.err
	}
	return r.sub, nil
}

func (d *fakeDialer) dials() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.users...)
}

// fakeClock records scheduled callbacks and runs them on demand
type fakeClock struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []*fakeTimer
}

type fakeTimer struct {
	fn      func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func (c *fakeClock) after(d time.Duration, f func()) stopper {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{fn: f}
	c.delays = append(c.delays, d)
	c.pending = append(c.pending, t)
	return t
}

// fireNext runs the oldest live callback and reports whether one ran
func (c *fakeClock) fireNext() bool {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return false
		}
		t := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		if !t.stopped {
			t.fn()
			return true
		}
	}
}

func (c *fakeClock) scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.delays...)
}

type fakeBridge struct {
	mu        sync.Mutex
	supported bool
	perm      Permission
	answer    Permission
	prompts   int
	shown     []DesktopNotification
}

func (b *fakeBridge) Supported() bool { return b.supported }

func (b *fakeBridge) Permission() Permission {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perm
}

func (b *fakeBridge) RequestPermission(context.Context) (Permission, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts++
	b.perm = b.answer
	return b.answer, nil
}

func (b *fakeBridge) Show(n DesktopNotification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shown = append(b.shown, n)
	return nil
}

func (b *fakeBridge) shownCopy() []DesktopNotification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DesktopNotification(nil), b.shown...)
}

func items(prefix string, n int, unread bool) []domain.Notification {
	out := make([]domain.Notification, n)
	for i := range out {
		out[i] = domain.Notification{
			ID:     fmt.Sprintf("%s%d", prefix, i),
			UserID: "u1",
			Title:  "title",
			IsRead: !unread,
		}
	}
	return out
}
