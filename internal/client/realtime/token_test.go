package realtime

import (
	"testing"

	xerrors "edumarket-service/internal/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIDFromToken(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-42"}).
		SignedString([]byte("irrelevant"))
	require.NoError(t, err)

	id, err := UserIDFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-42", id)

	anon, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte("x"))
	require.NoError(t, err)
	_, err = UserIDFromToken(anon)
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)

	_, err = UserIDFromToken("not-a-jwt")
	assert.ErrorIs(t, err, xerrors.ErrUnauthorized)
}

func TestWebSocketURL(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080":          "ws://localhost:8080/ws",
		"https://api.example.com/":       "wss://api.example.com/ws",
		"https://api.example.com/api/v1": "wss://api.example.com/ws",
	}
	for in, want := range cases {
		got, err := WebSocketURL(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
