// internal/middleware/recovery_middleware.go
package middleware

import (
	"net/http"

	"edumarket-service/internal/metrics"
	"edumarket-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope. m may be nil.
func RecoveryMiddleware(logger *zap.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			fields := []zap.Field{
				zap.Any("panic", rec),
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Stack("stack"),
			}
			if userID, ok := GetUserID(c); ok {
				fields = append(fields, zap.String("user_id", userID))
			}
			logger.Error("panic recovered", fields...)

			if m != nil {
				m.HTTPPanics.Inc()
			}

			// a websocket upgrade or partial write has already committed the response
			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, http.StatusInternalServerError, "internal server error", nil)
		}()
		c.Next()
	}
}
