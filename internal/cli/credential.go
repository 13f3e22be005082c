package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"edumarket-service/internal/client/realtime"

	"github.com/99designs/keyring"
	"github.com/charmbracelet/huh"
)

const (
	keyringService = "notifywatch"
	tokenKey       = "access_token"
)

// ErrNoToken is returned when neither the config nor the keyring holds a token
var ErrNoToken = errors.New("no access token configured, run `notifywatch login`")

// TokenStore persists the access token between runs
type TokenStore struct {
	ring keyring.Keyring
}

// OpenTokenStore opens the system keyring, falling back to an encrypted file
// under dir. fileOnly restricts it to the file backend.
func OpenTokenStore(dir string, fileOnly bool) (*TokenStore, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if fileOnly {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              keyringService,
		AllowedBackends:          backends,
		FileDir:                  dir,
		FilePasswordFunc:         keyring.FixedStringPrompt("notifywatch-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &TokenStore{ring: ring}, nil
}

func (s *TokenStore) Get() (string, error) {
	item, err := s.ring.Get(tokenKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNoToken
	}
	if err != nil {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return string(item.Data), nil
}

func (s *TokenStore) Set(token string) error {
	err := s.ring.Set(keyring.Item{
		Key:         tokenKey,
		Data:        []byte(token),
		Label:       "notifywatch access token",
		Description: "bearer token for the notification API",
	})
	if err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

func (s *TokenStore) Delete() error {
	err := s.ring.Remove(tokenKey)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting token: %w", err)
	}
	return nil
}

// ResolveToken prefers an explicitly configured token over the stored one
func ResolveToken(cfg *Config, store *TokenStore) (string, error) {
	if cfg.Token != "" {
		return cfg.Token, nil
	}
	if store == nil {
		return "", ErrNoToken
	}
	return store.Get()
}

// PromptToken asks for an access token and checks that it names a user
func PromptToken(ctx context.Context) (string, error) {
	var token string
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Access token").
				Description("Paste the bearer token issued by the API.").
				EchoMode(huh.EchoModePassword).
				Validate(func(s string) error {
					_, err := realtime.UserIDFromToken(strings.TrimSpace(s))
					return err
				}).
				Value(&token),
		),
	).RunWithContext(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(token), nil
}
