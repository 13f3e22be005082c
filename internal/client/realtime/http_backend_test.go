package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"
	"edumarket-service/internal/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnvelope(w http.ResponseWriter, status int, env response.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				writeEnvelope(w, http.StatusUnauthorized, response.Response{Message: "invalid or expired token"})
				return
			}
			next(w, r)
		}
	}

	mux.HandleFunc("GET /api/v1/notifications/unread-count", auth(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, response.Response{Success: true, Data: map[string]int{"unread_count": 4}})
	}))
	mux.HandleFunc("GET /api/v1/notifications", auth(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "20", r.URL.Query().Get("limit"))
		assert.Equal(t, "40", r.URL.Query().Get("offset"))
		writeEnvelope(w, http.StatusOK, response.Response{Success: true, Data: map[string]interface{}{
			"notifications": []domain.Notification{{ID: "n1", UserID: "u1", Title: "hi"}},
			"count":         1,
			"offset":        40,
		}})
	}))
	mux.HandleFunc("PUT /api/v1/notifications/{id}/read", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "n1" {
			writeEnvelope(w, http.StatusNotFound, response.Response{Message: "notification not found", Error: "resource not found"})
			return
		}
		writeEnvelope(w, http.StatusOK, response.Response{Success: true, Data: map[string]bool{"success": true}})
	}))
	mux.HandleFunc("PUT /api/v1/notifications/read-all", auth(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, response.Response{Success: true, Data: map[string]int64{"updated": 3}})
	}))
	mux.HandleFunc("GET /api/v1/notifications/preferences", auth(func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, response.Response{Success: true, Data: []domain.NotificationPreference{
			domain.DefaultPreference("u1", 2),
		}})
	}))
	mux.HandleFunc("PUT /api/v1/notifications/preferences/2", auth(func(w http.ResponseWriter, r *http.Request) {
		var upd domain.PreferenceUpdate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&upd))
		if upd.Empty() {
			writeEnvelope(w, http.StatusBadRequest, response.Response{Message: "invalid request"})
			return
		}
		writeEnvelope(w, http.StatusOK, response.Response{Success: true})
	}))
	mux.HandleFunc("POST /api/v1/admin/notifications", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(serviceKeyHeader) != "s3cret" {
			writeEnvelope(w, http.StatusForbidden, response.Response{Message: "admin access required"})
			return
		}
		var req domain.CreateNotificationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.UserID == "muted" {
			writeEnvelope(w, http.StatusOK, response.Response{Success: true, Data: domain.CreateNotificationResponse{Skipped: true}})
			return
		}
		id := "n9"
		writeEnvelope(w, http.StatusCreated, response.Response{Success: true, Data: domain.CreateNotificationResponse{ID: &id}})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPBackend_Reads(t *testing.T) {
	srv := newAPI(t)
	b := NewHTTPBackend(srv.URL+"/", "tok", srv.Client(), nil)
	ctx := context.Background()

	count, err := b.GetUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	list, err := b.GetRecentNotifications(ctx, 20, 40)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "n1", list[0].ID)

	prefs, err := b.GetPreferences(ctx)
	require.NoError(t, err)
	require.Len(t, prefs, 1)
	assert.Equal(t, int64(2), prefs[0].TypeID)
}

func TestHTTPBackend_Writes(t *testing.T) {
	srv := newAPI(t)
	b := NewHTTPBackend(srv.URL, "tok", srv.Client(), nil)
	ctx := context.Background()

	require.NoError(t, b.MarkAsRead(ctx, "n1"))
	assert.ErrorIs(t, b.MarkAsRead(ctx, "gone"), xerrors.ErrNotFound)

	updated, err := b.MarkAllAsRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated)

	on := true
	require.NoError(t, b.UpdatePreference(ctx, 2, domain.PreferenceUpdate{PushEnabled: &on}))
	assert.ErrorIs(t, b.UpdatePreference(ctx, 2, domain.PreferenceUpdate{}), xerrors.ErrInvalidInput)
}

func TestHTTPBackend_CreateNotification(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()

	_, err := NewHTTPBackend(srv.URL, "tok", srv.Client(), nil).
		CreateNotification(ctx, &domain.CreateNotificationRequest{UserID: "u2"})
	assert.ErrorIs(t, err, xerrors.ErrForbidden)

	b := NewHTTPBackend(srv.URL, "", srv.Client(), nil).WithServiceKey("s3cret")
	id, err := b.CreateNotification(ctx, &domain.CreateNotificationRequest{UserID: "u2"})
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, "n9", *id)

	id, err = b.CreateNotification(ctx, &domain.CreateNotificationRequest{UserID: "muted"})
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestHTTPBackend_Errors(t *testing.T) {
	srv := newAPI(t)
	ctx := context.Background()

	_, err := NewHTTPBackend(srv.URL, "wrong", srv.Client(), nil).GetUnreadCount(ctx)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
	assert.ErrorContains(t, err, "invalid or expired token")

	unreachable := NewHTTPBackend("http://127.0.0.1:1", "tok", nil, nil)
	_, err = unreachable.GetUnreadCount(ctx)
	assert.ErrorIs(t, err, xerrors.ErrUnavailable)
}
