// Package realtime implements the client transports: the JSON API backend and
// the WebSocket change subscription.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"edumarket-service/internal/client/notification"
	domain "edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"

	"go.uber.org/zap"
)

const (
	apiPrefix          = "/api/v1"
	serviceKeyHeader   = "X-Service-Key"
	defaultHTTPTimeout = 15 * time.Second
)

// envelope mirrors the server's response format with the payload left raw
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// HTTPBackend calls the notification API with a bearer token
type HTTPBackend struct {
	baseURL    string
	token      string
	serviceKey string
	client     *http.Client
	logger     *zap.Logger
}

var _ notification.Backend = (*HTTPBackend)(nil)

func NewHTTPBackend(baseURL, token string, client *http.Client, logger *zap.Logger) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  client,
		logger:  logger,
	}
}

// WithServiceKey makes admin calls authenticate with a service key instead of the token
func (b *HTTPBackend) WithServiceKey(key string) *HTTPBackend {
	b.serviceKey = key
	return b
}

func (b *HTTPBackend) GetUnreadCount(ctx context.Context) (int, error) {
	var out struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := b.do(ctx, http.MethodGet, "/notifications/unread-count", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.UnreadCount, nil
}

func (b *HTTPBackend) GetRecentNotifications(ctx context.Context, limit, offset int) ([]domain.Notification, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	var out struct {
		Notifications []domain.Notification `json:"notifications"`
	}
	if err := b.do(ctx, http.MethodGet, "/notifications", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Notifications, nil
}

func (b *HTTPBackend) MarkAsRead(ctx context.Context, id string) error {
	return b.do(ctx, http.MethodPut, "/notifications/"+url.PathEscape(id)+"/read", nil, nil, nil)
}

func (b *HTTPBackend) MarkAllAsRead(ctx context.Context) (int64, error) {
	var out struct {
		Updated int64 `json:"updated"`
	}
	if err := b.do(ctx, http.MethodPut, "/notifications/read-all", nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (b *HTTPBackend) GetPreferences(ctx context.Context) ([]domain.NotificationPreference, error) {
	var prefs []domain.NotificationPreference
	if err := b.do(ctx, http.MethodGet, "/notifications/preferences", nil, nil, &prefs); err != nil {
		return nil, err
	}
	return prefs, nil
}

func (b *HTTPBackend) UpdatePreference(ctx context.Context, typeID int64, upd domain.PreferenceUpdate) error {
	path := "/notifications/preferences/" + strconv.FormatInt(typeID, 10)
	return b.do(ctx, http.MethodPut, path, nil, upd, nil)
}

func (b *HTTPBackend) CreateNotification(ctx context.Context, req *domain.CreateNotificationRequest) (*string, error) {
	var out domain.CreateNotificationResponse
	if err := b.do(ctx, http.MethodPost, "/admin/notifications", nil, req, &out); err != nil {
		return nil, err
	}
	return out.ID, nil
}

// ListTypes is used by the CLI to show type names next to preferences
func (b *HTTPBackend) ListTypes(ctx context.Context) ([]domain.NotificationType, error) {
	var types []domain.NotificationType
	if err := b.do(ctx, http.MethodGet, "/notifications/types", nil, nil, &types); err != nil {
		return nil, err
	}
	return types, nil
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	endpoint := b.baseURL + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	if b.serviceKey != "" && strings.HasPrefix(path, "/admin/") {
		req.Header.Set(serviceKeyHeader, b.serviceKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, xerrors.ErrUnavailable)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		if sentinel := xerrors.FromHTTPStatus(resp.StatusCode); sentinel != nil {
			return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, sentinel)
		}
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	if sentinel := xerrors.FromHTTPStatus(resp.StatusCode); sentinel != nil {
		b.logger.Debug("notification api error",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("error", env.Error),
		)
		return fmt.Errorf("%s: %w", xerrors.MessageOrDefault(apiError(env), http.StatusText(resp.StatusCode)), sentinel)
	}
	if !env.Success {
		return fmt.Errorf("%s %s: %s: %w", method, path, env.Message, xerrors.ErrInternal)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s %s data: %w", method, path, err)
		}
	}
	return nil
}

func apiError(env envelope) error {
	switch {
	case env.Error != "" && env.Message != "":
		return fmt.Errorf("%s: %s", env.Message, env.Error)
	case env.Message != "":
		return errors.New(env.Message)
	case env.Error != "":
		return errors.New(env.Error)
	}
	return nil
}
