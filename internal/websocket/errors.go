// internal/websocket/errors.go
package websocket

import (
	"fmt"

	xerrors "edumarket-service/internal/pkg/errors"
)

// Each error wraps the sentinel that picks the handshake status code
var (
	ErrInvalidToken     = fmt.Errorf("invalid token: %w", xerrors.ErrUnauthorized)
	ErrTokenBlacklisted = fmt.Errorf("token has been blacklisted: %w", xerrors.ErrTokenRevoked)
	ErrAuthUnavailable  = fmt.Errorf("token revocation check failed: %w", xerrors.ErrUnavailable)
	ErrInvalidRequest   = fmt.Errorf("invalid request payload: %w", xerrors.ErrInvalidInput)
)
