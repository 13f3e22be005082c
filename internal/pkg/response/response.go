// internal/pkg/response/response.go
package response

import (
	"errors"
	"net/http"

	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every endpoint answers with. The realtime client
// decodes the same shape.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error aborts the chain and writes a failure envelope. An optional data
// value is attached as the payload.
func Error(c *gin.Context, status int, message string, err error, data ...interface{}) {
	body := Response{Message: message}
	if err != nil {
		body.Error = err.Error()
	}
	if len(data) > 0 {
		body.Data = data[0]
	}
	c.AbortWithStatusJSON(status, body)
}

// FromError picks the status from the sentinel carried by err. Internal
// failures keep their details out of the response body.
func FromError(c *gin.Context, message string, err error) {
	status := xerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, xerrors.ErrUnavailable) {
		_ = c.Error(err)
		Error(c, status, message, xerrors.ErrInternal)
		return
	}
	Error(c, status, message, err)
}

// ValidationError answers 400 for a request that failed binding or checks
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}
