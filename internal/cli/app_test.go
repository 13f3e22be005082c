package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "edumarket-service/internal/domain/notification"
	xerrors "edumarket-service/internal/pkg/errors"
	"edumarket-service/internal/pkg/response"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: userID}).SignedString([]byte("k"))
	require.NoError(t, err)
	return tok
}

func reply(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(response.Response{Success: true, Data: data})
}

func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]interface{}{"notifications": []domain.Notification{{ID: "n1", Title: "Exam tomorrow"}}})
	})
	mux.HandleFunc("PUT /api/v1/notifications/read-all", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]int{"updated": 2})
	})
	mux.HandleFunc("GET /api/v1/notifications/types", func(w http.ResponseWriter, r *http.Request) {
		reply(w, []domain.NotificationType{
			{ID: 1, Name: "system", DisplayName: "System"},
			{ID: 2, Name: "payment_approved", DisplayName: "Payments"},
		})
	})
	mux.HandleFunc("PUT /api/v1/notifications/preferences/{id}", func(w http.ResponseWriter, r *http.Request) {
		var upd domain.PreferenceUpdate
		_ = json.NewDecoder(r.Body).Decode(&upd)
		if upd.InAppEnabled == nil {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(response.Response{Message: "in_app_enabled missing"})
			return
		}
		reply(w, map[string]interface{}{"type_id": r.PathValue("id"), "in_app_enabled": *upd.InAppEnabled})
	})
	mux.HandleFunc("GET /api/v1/notifications/preferences", func(w http.ResponseWriter, r *http.Request) {
		p := domain.DefaultPreference("u1", 2)
		p.InAppEnabled = false
		reply(w, []domain.NotificationPreference{p})
	})
	mux.HandleFunc("POST /api/v1/admin/notifications", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(response.Response{Message: "admin access required"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	app, err := NewApp(&Config{APIURL: srv.URL}, testToken(t, "u1"), NewTerminalBridge(&out, false, false, nil), &out, nil)
	require.NoError(t, err)
	return app, &out
}

func TestNewApp_RejectsTokenWithoutSubject(t *testing.T) {
	_, err := NewApp(&Config{APIURL: "http://localhost"}, "junk", nil, &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestApp_Commands(t *testing.T) {
	app, out := newTestApp(t)
	ctx := context.Background()
	assert.Equal(t, "u1", app.UserID())

	require.NoError(t, app.List(ctx, 20, 0))
	assert.Contains(t, out.String(), "Exam tomorrow")

	require.NoError(t, app.MarkAllRead(ctx))
	assert.Contains(t, out.String(), "marked 2 notifications as read")

	out.Reset()
	require.NoError(t, app.Preferences(ctx))
	assert.Contains(t, out.String(), "Payments")
	assert.Contains(t, out.String(), "in-app:off")
	assert.Contains(t, out.String(), "(default)")

	err := app.Send(ctx, &domain.CreateNotificationRequest{UserID: "u2", TypeName: "system", Title: "t", Message: "m"})
	assert.ErrorIs(t, err, xerrors.ErrForbidden)
}

func TestApp_SetInAppResolvesTypeNames(t *testing.T) {
	app, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, app.SetInApp(ctx, "payment_approved", false))
	assert.Contains(t, out.String(), "in-app delivery for payment_approved is off")

	require.NoError(t, app.SetInApp(ctx, "System", true))
	assert.Contains(t, out.String(), "in-app delivery for system is on")

	require.NoError(t, app.SetInApp(ctx, "2", true))
	assert.Contains(t, out.String(), "in-app delivery for type 2 is on")

	err := app.SetInApp(ctx, "exam_results", false)
	assert.ErrorIs(t, err, xerrors.ErrInvalidInput)
}

func TestApp_ListAllPagesThroughStore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/notifications", func(w http.ResponseWriter, r *http.Request) {
		n := 0
		switch r.URL.Query().Get("offset") {
		case "0":
			n = 20
		case "20":
			n = 3
		}
		page := make([]domain.Notification, n)
		for i := range page {
			page[i] = domain.Notification{ID: fmt.Sprintf("n%s-%d", r.URL.Query().Get("offset"), i), Title: "t"}
		}
		reply(w, map[string]interface{}{"notifications": page})
	})
	mux.HandleFunc("GET /api/v1/notifications/unread-count", func(w http.ResponseWriter, r *http.Request) {
		reply(w, map[string]int{"unread_count": 23})
	})
	mux.HandleFunc("GET /api/v1/notifications/preferences", func(w http.ResponseWriter, r *http.Request) {
		reply(w, []domain.NotificationPreference{})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	app, err := NewApp(&Config{APIURL: srv.URL}, testToken(t, "u1"), nil, &out, nil)
	require.NoError(t, err)

	require.NoError(t, app.ListAll(context.Background()))
	assert.Contains(t, out.String(), "n20-2")
	assert.Contains(t, out.String(), "23 notifications, 23 unread")
	assert.Empty(t, app.store.Snapshot().UserID)
}
