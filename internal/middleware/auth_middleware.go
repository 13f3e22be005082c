// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"edumarket-service/internal/pkg/jwt"
	"edumarket-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ServiceKeyHeader carries the shared key of trusted backend callers
const ServiceKeyHeader = "X-Service-Key"

const (
	ctxUserID    = "user_id"
	ctxJTI       = "jti"
	ctxRoles     = "roles"
	ctxDevice    = "device"
	ctxExpiresAt = "token_expires_at"
	ctxService   = "service_caller"
)

type TokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

type TokenBlacklist interface {
	IsTokenBlacklisted(ctx context.Context, jti string) (bool, error)
}

type AuthMiddleware struct {
	verifier       TokenVerifier
	blacklist      TokenBlacklist
	serviceKeyHash []byte
	logger         *zap.Logger
}

// NewAuthMiddleware builds the middleware. An empty serviceKeyHash disables
// service-key access.
func NewAuthMiddleware(verifier TokenVerifier, blacklist TokenBlacklist, serviceKeyHash string, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &AuthMiddleware{
		verifier:  verifier,
		blacklist: blacklist,
		logger:    logger,
	}
	if serviceKeyHash != "" {
		m.serviceKeyHash = []byte(serviceKeyHash)
	}
	return m
}

// Auth is the base authentication middleware that validates JWT tokens
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.authenticate(c) {
			return
		}
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context) bool {
	token := extractToken(c)
	if token == "" {
		response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
		return false
	}

	claims, err := m.verifier.VerifyAccessToken(token)
	if err != nil {
		response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
		return false
	}

	if m.blacklist != nil {
		revoked, err := m.blacklist.IsTokenBlacklisted(c.Request.Context(), claims.ID)
		if err != nil {
			m.logger.Error("blacklist lookup failed", zap.Error(err))
			response.Error(c, http.StatusServiceUnavailable, "unable to validate session", nil)
			return false
		}
		if revoked {
			response.Error(c, http.StatusUnauthorized, "token has been revoked", nil)
			return false
		}
	}

	c.Set(ctxUserID, claims.UserID())
	c.Set(ctxJTI, claims.ID)
	c.Set(ctxRoles, claims.Roles)
	c.Set(ctxDevice, claims.Device)
	if claims.ExpiresAt != nil {
		c.Set(ctxExpiresAt, claims.ExpiresAt.Time)
	}
	return true
}

// RequireRole middleware that requires user to have at least one of the specified roles
// MUST be used after Auth() middleware
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoles := GetRoles(c)
		for _, have := range userRoles {
			for _, want := range roles {
				if have == want {
					c.Next()
					return
				}
			}
		}

		response.Error(c, http.StatusForbidden, "insufficient permissions", errors.New("user does not have required role"), map[string]interface{}{
			"required_roles": roles,
		})
	}
}

// AdminOnly returns middlewares for admin-only routes (Auth + RequireRole)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(jwt.RoleAdmin, jwt.RoleSuperAdmin),
	}
}

// ServiceKeyOrAdmin admits trusted backend callers presenting the service key,
// and otherwise falls back to admin JWT auth
func (m *AuthMiddleware) ServiceKeyOrAdmin() gin.HandlerFunc {
	requireAdmin := m.RequireRole(jwt.RoleAdmin, jwt.RoleSuperAdmin)

	return func(c *gin.Context) {
		if key := c.GetHeader(ServiceKeyHeader); key != "" {
			if m.serviceKeyHash == nil || bcrypt.CompareHashAndPassword(m.serviceKeyHash, []byte(key)) != nil {
				m.logger.Warn("rejected service key", zap.String("ip", c.ClientIP()))
				response.Error(c, http.StatusUnauthorized, "invalid service key", nil)
				return
			}
			c.Set(ctxService, true)
			c.Next()
			return
		}

		if !m.authenticate(c) {
			return
		}
		requireAdmin(c)
	}
}

// extractToken extracts Bearer token from Authorization header
func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	// Fallback to query param, used by websocket upgrades
	return c.Query("token")
}
