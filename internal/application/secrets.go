package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

var (
	// ErrEmptySecret is returned when saving a blank value.
	ErrEmptySecret = errors.New("secret value must not be empty")

	// ErrInvalidSecretKey is returned for keys outside [a-z0-9-].
	ErrInvalidSecretKey = errors.New("secret key must be lowercase letters, digits, or dashes")
)

var secretKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// SecretService exposes the save/load operations of the secret store.
type SecretService struct {
	store   driven.SecretStore
	factory driven.SourceControlFactory
	logger  *slog.Logger
}

// NewSecretService creates a SecretService. factory is used only when a token
// is saved with verification.
func NewSecretService(store driven.SecretStore, factory driven.SourceControlFactory, logger *slog.Logger) *SecretService {
	return &SecretService{store: store, factory: factory, logger: logger}
}

// Save validates and stores a value.
func (s *SecretService) Save(ctx context.Context, key, value string) error {
	if !secretKeyPattern.MatchString(key) {
		return ErrInvalidSecretKey
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmptySecret
	}

	if err := s.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	s.logger.Info("secret saved", "key", key)
	return nil
}

// Load returns the stored value and whether it exists.
func (s *SecretService) Load(ctx context.Context, key string) (string, bool, error) {
	if !secretKeyPattern.MatchString(key) {
		return "", false, ErrInvalidSecretKey
	}

	value, err := s.store.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("loading %s: %w", key, err)
	}
	return value, value != "", nil
}

// LoadMasked is Load with the value passed through MaskSecret.
func (s *SecretService) LoadMasked(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.Load(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	return MaskSecret(value), true, nil
}

// SaveSourceControlToken stores the token. With verify set, the token is first
// exchanged for the authenticated login, which is stored alongside it.
func (s *SecretService) SaveSourceControlToken(ctx context.Context, token string, verify bool) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptySecret
	}

	var login string
	if verify {
		var err error
		login, err = s.factory(token).AuthenticatedUser(ctx)
		if err != nil {
			return "", fmt.Errorf("verifying token: %w", err)
		}
	}

	if err := s.Save(ctx, SecretKeySourceControlToken, token); err != nil {
		return "", err
	}
	if login != "" {
		if err := s.Save(ctx, SecretKeySourceControlUsername, login); err != nil {
			return "", err
		}
	}
	return login, nil
}

// MaskSecret keeps the first and last five characters of long values and
// masks everything for short ones.
func MaskSecret(value string) string {
	const visible = 5
	runes := []rune(value)
	if len(runes) <= visible*2 {
		return strings.Repeat("*", len(runes))
	}
	return string(runes[:visible]) + "*****" + string(runes[len(runes)-visible:])
}
