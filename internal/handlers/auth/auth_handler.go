// internal/handlers/auth/auth_handler.go
package auth

import (
	"context"
	"net/http"
	"time"

	"edumarket-service/internal/middleware"
	"edumarket-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TokenRevoker interface {
	BlacklistToken(ctx context.Context, jti string, expiresAt time.Time) error
}

type SessionCloser interface {
	DisconnectSession(userID, sessionID, reason string)
	ForceLogout(userID, reason string) int
}

// AuthHandler covers the session endpoints this service owns. Tokens are
// issued elsewhere.
type AuthHandler struct {
	revoker  TokenRevoker
	sessions SessionCloser
	logger   *zap.Logger
}

func NewAuthHandler(revoker TokenRevoker, sessions SessionCloser, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{
		revoker:  revoker,
		sessions: sessions,
		logger:   logger,
	}
}

// Logout revokes the current token and closes its realtime connections.
// With ?all=true every realtime connection of the user is told to sign out.
func (h *AuthHandler) Logout(c *gin.Context) {
	userID := middleware.MustGetUserID(c)
	jti, _ := middleware.GetJTI(c)

	expiresAt, ok := middleware.GetTokenExpiry(c)
	if !ok {
		expiresAt = time.Now().Add(24 * time.Hour)
	}

	if err := h.revoker.BlacklistToken(c.Request.Context(), jti, expiresAt); err != nil {
		h.logger.Error("logout failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "logout failed", err)
		return
	}

	if h.sessions == nil {
		response.Success(c, http.StatusOK, "logout successful", nil)
		return
	}

	if c.Query("all") == "true" {
		closed := h.sessions.ForceLogout(userID, "logout_all")
		h.logger.Info("logged out everywhere",
			zap.String("user_id", userID),
			zap.Int("connections", closed),
		)
		response.Success(c, http.StatusOK, "logout successful", gin.H{"closed_connections": closed})
		return
	}

	h.sessions.DisconnectSession(userID, jti, "logout")
	response.Success(c, http.StatusOK, "logout successful", nil)
}

// GetMe returns the identity carried by the current token
func (h *AuthHandler) GetMe(c *gin.Context) {
	response.Success(c, http.StatusOK, "current user", gin.H{
		"user_id": middleware.MustGetUserID(c),
		"roles":   middleware.GetRoles(c),
	})
}
