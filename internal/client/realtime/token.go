package realtime

import (
	"fmt"
	"net/url"
	"strings"

	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
)

// UserIDFromToken reads the subject of an access token without verifying it
func UserIDFromToken(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("parse token: %v: %w", err, xerrors.ErrUnauthorized)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject: %w", xerrors.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// WebSocketURL derives the /ws endpoint from the API base URL
func WebSocketURL(apiBaseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(apiBaseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/api/v1") + "/ws"
	return u.String(), nil
}
