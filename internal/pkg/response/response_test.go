package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response, *gin.Context) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var captured *gin.Context
	router := gin.New()
	router.GET("/", func(c *gin.Context) {
		captured = c
		handler(c)
	}, func(c *gin.Context) {
		c.String(http.StatusTeapot, "next handler ran")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var body Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body, captured
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		status    int
		wantError string
	}{
		{"not found", fmt.Errorf("notification x: %w", xerrors.ErrNotFound), http.StatusNotFound, "notification x: resource not found"},
		{"invalid", fmt.Errorf("bad limit: %w", xerrors.ErrInvalidInput), http.StatusBadRequest, "bad limit: invalid input"},
		{"unavailable", fmt.Errorf("redis: %w", xerrors.ErrUnavailable), http.StatusServiceUnavailable, "redis: service unavailable"},
		{"internal hidden", errors.New("pq: connection reset"), http.StatusInternalServerError, xerrors.ErrInternal.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body, c := serve(t, func(c *gin.Context) {
				FromError(c, "request failed", tt.err)
			})

			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, body.Success)
			assert.Equal(t, "request failed", body.Message)
			assert.Equal(t, tt.wantError, body.Error)
			assert.True(t, c.IsAborted())
		})
	}
}

func TestInternalErrorIsRecordedOnContext(t *testing.T) {
	_, _, c := serve(t, func(c *gin.Context) {
		FromError(c, "failed", errors.New("pq: connection reset"))
	})
	require.Len(t, c.Errors, 1)
	assert.Contains(t, c.Errors.String(), "connection reset")
}

func TestSuccessAndErrorData(t *testing.T) {
	rec, body, _ := serve(t, func(c *gin.Context) {
		Success(c, 0, "ok", gin.H{"unread_count": 3})
		c.Abort()
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, body.Success)
	assert.Equal(t, map[string]interface{}{"unread_count": float64(3)}, body.Data)

	rec, body, _ = serve(t, func(c *gin.Context) {
		Error(c, http.StatusForbidden, "insufficient permissions", nil, gin.H{"required": "admin"})
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, body.Error)
	assert.Equal(t, map[string]interface{}{"required": "admin"}, body.Data)
}
