package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edumarket-service/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubBlacklist map[string]bool

func (s stubBlacklist) IsTokenBlacklisted(_ context.Context, jti string) (bool, error) {
	return s[jti], nil
}

type fixture struct {
	gen    *jwt.Generator
	mw     *AuthMiddleware
	router *gin.Engine
	bl     stubBlacklist
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	bl := stubBlacklist{}
	f := &fixture{
		gen: jwt.NewGenerator(priv, "edumarket", "edumarket-users", "k1", time.Hour),
		mw:  NewAuthMiddleware(jwt.NewVerifier(&priv.PublicKey, "edumarket", "edumarket-users"), bl, string(hash), nil),
		bl:  bl,
	}

	r := gin.New()
	r.GET("/me", f.mw.Auth(), func(c *gin.Context) {
		c.String(http.StatusOK, MustGetUserID(c))
	})
	r.GET("/admin", append(f.mw.AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})...)
	r.POST("/internal", f.mw.ServiceKeyOrAdmin(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": IsServiceCaller(c)})
	})
	f.router = r
	return f
}

func (f *fixture) token(t *testing.T, userID string, roles ...string) (string, string) {
	t.Helper()
	tok, jti, err := f.gen.GenerateAccessToken(userID, roles, "web")
	require.NoError(t, err)
	return tok, jti
}

func (f *fixture) do(method, path, token string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestAuth_SetsUserID(t *testing.T) {
	f := newFixture(t)
	tok, _ := f.token(t, "user-1")

	w := f.do(http.MethodGet, "/me", tok, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/me", "garbage", nil).Code)
}

func TestAuth_RejectsRevokedToken(t *testing.T) {
	f := newFixture(t)
	tok, jti := f.token(t, "user-1")
	f.bl[jti] = true

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/me", tok, nil).Code)
}

func TestAdminOnly(t *testing.T) {
	f := newFixture(t)
	student, _ := f.token(t, "user-1", "student")
	admin, _ := f.token(t, "user-2", jwt.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodGet, "/admin", student, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin", admin, nil).Code)
}

func TestServiceKeyOrAdmin(t *testing.T) {
	f := newFixture(t)
	student, _ := f.token(t, "user-1", "student")
	admin, _ := f.token(t, "user-2", jwt.RoleSuperAdmin)

	w := f.do(http.MethodPost, "/internal", "", map[string]string{ServiceKeyHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"service":true}`, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/internal", "", map[string]string{ServiceKeyHeader: "wrong"}).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodPost, "/internal", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPost, "/internal", student, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/internal", admin, nil).Code)
}

func TestCORSMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	assert.True(t, OriginAllowed([]string{"*"}, "https://any.example.com"))
	assert.False(t, OriginAllowed([]string{"https://a"}, "https://b"))
}
