package application

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ericfisherdev/mergebridge/internal/domain/port/driven"
)

// Secret store keys.
const (
	SecretKeySourceControlToken    = "source-control-token"
	SecretKeySourceControlUsername = "source-control-username"
)

// ClientSource hands out a source-control client bound to the current credential.
type ClientSource interface {
	Client(ctx context.Context) (driven.SourceControlClient, error)
}

// SourceControlProvider resolves the source-control credential on every call
// and hot-swaps the underlying client when the credential changes, so a token
// saved at runtime takes effect without a restart. The stored token takes
// priority over the configured fallback.
type SourceControlProvider struct {
	secrets       driven.SecretStore
	fallbackToken string
	factory       driven.SourceControlFactory

	mu     sync.Mutex
	token  string
	client driven.SourceControlClient
}

// NewSourceControlProvider creates a provider. secrets may be nil, in which
// case only fallbackToken is consulted.
func NewSourceControlProvider(secrets driven.SecretStore, fallbackToken string, factory driven.SourceControlFactory) *SourceControlProvider {
	return &SourceControlProvider{
		secrets:       secrets,
		fallbackToken: fallbackToken,
		factory:       factory,
	}
}

// Client returns a client for the current credential, or driven.ErrAuthMissing
// when none is available. No client is ever built without a token.
func (p *SourceControlProvider) Client(ctx context.Context) (driven.SourceControlClient, error) {
	token, err := p.resolveToken(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, driven.ErrAuthMissing
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil || p.token != token {
		p.client = p.factory(token)
		p.token = token
	}
	return p.client, nil
}

// HasCredential reports whether a token is currently resolvable.
func (p *SourceControlProvider) HasCredential(ctx context.Context) bool {
	token, err := p.resolveToken(ctx)
	return err == nil && token != ""
}

func (p *SourceControlProvider) resolveToken(ctx context.Context) (string, error) {
	if p.secrets != nil {
		stored, err := p.secrets.Get(ctx, SecretKeySourceControlToken)
		switch {
		case err == nil && stored != "":
			return stored, nil
		case err != nil && !errors.Is(err, driven.ErrEncryptionKeyNotSet):
			return "", fmt.Errorf("loading source-control token: %w", err)
		}
	}
	return p.fallbackToken, nil
}
