package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"edumarket-service/internal/client/notification"
	"edumarket-service/internal/client/realtime"
	domain "edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// App is one notifywatch invocation bound to a user
type App struct {
	cfg     *Config
	userID  string
	backend *realtime.HTTPBackend
	svc     *notification.Service
	store   *notification.Store
	session *notification.Session
	out     io.Writer
	logger  *zap.Logger
}

// NewApp wires the client stack for token's user
func NewApp(cfg *Config, token string, bridge notification.PermissionBridge, out io.Writer, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	userID, err := realtime.UserIDFromToken(token)
	if err != nil {
		return nil, err
	}

	wsURL := cfg.WSURL
	if wsURL == "" {
		if wsURL, err = realtime.WebSocketURL(cfg.APIURL); err != nil {
			return nil, err
		}
	}

	backend := realtime.NewHTTPBackend(cfg.APIURL, token, nil, logger).WithServiceKey(cfg.ServiceKey)
	dialer := realtime.NewWSDialer(wsURL, token, logger)
	svc := notification.NewService(backend, dialer,
		notification.WithLogger(logger),
		notification.WithBridge(bridge),
	)
	store := notification.NewStore(svc, logger)

	return &App{
		cfg:     cfg,
		userID:  userID,
		backend: backend,
		svc:     svc,
		store:   store,
		session: notification.NewSession(svc, store, logger),
		out:     out,
		logger:  logger,
	}, nil
}

func (a *App) UserID() string {
	return a.userID
}

// Watch signs in, prints the first page and then redraws on every change
// until ctx is cancelled. The list is reloaded whenever the realtime
// subscription comes back after a drop.
func (a *App) Watch(ctx context.Context) error {
	if granted, err := a.svc.RequestNotificationPermission(ctx); err != nil {
		a.logger.Warn("notification permission prompt failed", zap.Error(err))
	} else {
		a.logger.Debug("notification permission", zap.Bool("granted", granted))
	}

	if err := a.session.SignIn(ctx, a.userID); err != nil {
		a.logger.Warn("initial load incomplete", zap.Error(err))
	}
	defer a.session.SignOut()

	a.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.store.Changes():
			a.draw()
		case <-a.svc.Reconnected():
			if err := a.store.Refresh(ctx); err != nil {
				a.logger.Warn("refresh after reconnect failed", zap.Error(err))
			}
		}
	}
}

// List prints one page of notifications
func (a *App) List(ctx context.Context, limit, offset int) error {
	items, err := a.svc.GetRecentNotifications(ctx, limit, offset)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, RenderList(items, time.Now()))
	return nil
}

// ListAll pages through every notification with the store and prints them
func (a *App) ListAll(ctx context.Context) error {
	if err := a.store.Init(ctx, a.userID); err != nil {
		return err
	}
	defer a.store.Reset()

	for a.store.Snapshot().HasMore {
		if err := a.store.LoadMore(ctx); err != nil {
			return err
		}
	}
	snap := a.store.Snapshot()
	fmt.Fprintln(a.out, RenderList(snap.Notifications, time.Now()))
	fmt.Fprintf(a.out, "%d notifications, %d unread\n", len(snap.Notifications), snap.UnreadCount)
	return nil
}

func (a *App) MarkRead(ctx context.Context, id string) error {
	if _, err := a.svc.MarkAsRead(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "marked %s as read\n", id)
	return nil
}

func (a *App) MarkAllRead(ctx context.Context) error {
	updated, err := a.svc.MarkAllAsRead(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "marked %d notifications as read\n", updated)
	return nil
}

// Preferences prints the stored preferences next to their type names
func (a *App) Preferences(ctx context.Context) error {
	prefs, err := a.svc.GetNotificationPreferences(ctx)
	if err != nil {
		return err
	}
	types, err := a.backend.ListTypes(ctx)
	if err != nil {
		return err
	}

	for _, t := range types {
		p, ok := findPreference(prefs, t.ID)
		if !ok {
			fmt.Fprintf(a.out, "%-28s in-app:on  email:on  push:on  %s\n", t.DisplayName, mutedStyle.Render("(default)"))
			continue
		}
		fmt.Fprintf(a.out, "%-28s in-app:%s email:%s push:%s\n",
			t.DisplayName, onOff(p.InAppEnabled), onOff(p.EmailEnabled), onOff(p.PushEnabled))
	}
	return nil
}

// SetInApp toggles in-app delivery for one notification type. typeRef is a
// type id, name or display name.
func (a *App) SetInApp(ctx context.Context, typeRef string, enabled bool) error {
	typeID, label, err := a.resolveType(ctx, typeRef)
	if err != nil {
		return err
	}
	if _, err := a.svc.UpdateNotificationPreference(ctx, typeID, domain.PreferenceUpdate{InAppEnabled: &enabled}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "in-app delivery for %s is %s\n", label, strings.TrimSpace(onOff(enabled)))
	return nil
}

func (a *App) resolveType(ctx context.Context, ref string) (int64, string, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil && id > 0 {
		return id, "type " + ref, nil
	}
	types, err := a.backend.ListTypes(ctx)
	if err != nil {
		return 0, "", err
	}
	for _, t := range types {
		if strings.EqualFold(t.Name, ref) || strings.EqualFold(t.DisplayName, ref) {
			return t.ID, t.Name, nil
		}
	}
	return 0, "", fmt.Errorf("unknown notification type %q: %w", ref, xerrors.ErrInvalidInput)
}

// Send creates a notification for another user; it needs an admin token or a service key
func (a *App) Send(ctx context.Context, req *domain.CreateNotificationRequest) error {
	id, err := a.svc.CreateNotification(ctx, req)
	if err != nil {
		return err
	}
	if id == "" {
		fmt.Fprintln(a.out, "skipped: recipient has in-app delivery disabled")
		return nil
	}
	fmt.Fprintf(a.out, "created %s\n", id)
	return nil
}

func (a *App) draw() {
	snap := a.store.Snapshot()
	fmt.Fprintln(a.out, RenderHeader(a.userID, a.svc.State().String(), snap.UnreadCount))
	if snap.LastError != nil {
		fmt.Fprintln(a.out, mutedStyle.Render("  last error: "+snap.LastError.Error()))
	}
	if !snap.Loading {
		fmt.Fprintln(a.out, RenderList(snap.Notifications, time.Now()))
	}
}

// ExitCode maps a command error to a process exit status
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, pflag.ErrHelp):
		return 0
	case errors.Is(err, ErrNoToken):
		return 2
	default:
		return 1
	}
}

func findPreference(prefs []domain.NotificationPreference, typeID int64) (domain.NotificationPreference, bool) {
	for _, p := range prefs {
		if p.TypeID == typeID {
			return p, true
		}
	}
	return domain.NotificationPreference{}, false
}

func onOff(v bool) string {
	if v {
		return "on "
	}
	return "off"
}
