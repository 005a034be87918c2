package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/mergebridge/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by SecretStore operations when
// MERGEBRIDGE_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set MERGEBRIDGE_SECRET_KEY")

// SecretStore defines the driven port for encrypted key-value secrets.
// The adapter layer is responsible for encryption/decryption; this interface
// operates on plaintext values at the domain boundary.
type SecretStore interface {
	// Set stores or replaces the value for key.
	Set(ctx context.Context, key, plaintext string) error

	// Get returns ("", nil) if no value exists for key.
	Get(ctx context.Context, key string) (string, error)

	List(ctx context.Context) ([]model.Secret, error)
	Delete(ctx context.Context, key string) error
}
