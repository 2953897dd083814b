package security

import (
	"context"
	"fmt"

	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
)

type SealedOption func(*SealedCredentialStore)

// WithPlaintextReads lets Get return values that were stored before sealing
// was enabled. They are re-sealed on the next Set.
func WithPlaintextReads() SealedOption {
	return func(s *SealedCredentialStore) {
		s.allowPlaintext = true
	}
}

func WithSealedLogger(logger core.Logger) SealedOption {
	return func(s *SealedCredentialStore) {
		s.logger = glog.Ensure(logger)
	}
}

// SealedCredentialStore encrypts values before they reach the base store.
// Keys are stored as-is so listing and purge keep working.
type SealedCredentialStore struct {
	base           core.CredentialStore
	provider       SecretProvider
	allowPlaintext bool
	logger         core.Logger
}

func NewSealedCredentialStore(base core.CredentialStore, provider SecretProvider, opts ...SealedOption) (*SealedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("security: base credential store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("security: secret provider is required")
	}
	store := &SealedCredentialStore{base: base, provider: provider, logger: glog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *SealedCredentialStore) Set(ctx context.Context, key string, value string, opts core.CredentialSetOptions) error {
	if value == "" {
		return s.base.Set(ctx, key, value, opts)
	}
	sealed, err := s.provider.Encrypt(ctx, []byte(value))
	if err != nil {
		return fmt.Errorf("security: seal credential: %w", err)
	}
	return s.base.Set(ctx, key, string(sealed), opts)
}

func (s *SealedCredentialStore) Get(ctx context.Context, key string) (string, bool, error) {
	stored, ok, err := s.base.Get(ctx, key)
	if err != nil || !ok || stored == "" {
		return stored, ok, err
	}
	if !IsSealed([]byte(stored)) {
		if s.allowPlaintext {
			s.logger.Warn("reading unsealed credential", "credential_key", key)
			return stored, true, nil
		}
		return "", false, fmt.Errorf("security: credential %q is not sealed", key)
	}
	plaintext, err := s.provider.Decrypt(ctx, []byte(stored))
	if err != nil {
		return "", false, fmt.Errorf("security: open credential: %w", err)
	}
	return string(plaintext), true, nil
}

func (s *SealedCredentialStore) Delete(ctx context.Context, key string) error {
	return s.base.Delete(ctx, key)
}

func (s *SealedCredentialStore) Has(ctx context.Context, key string) (bool, error) {
	return s.base.Has(ctx, key)
}

func (s *SealedCredentialStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	lister, ok := s.base.(core.CredentialLister)
	if !ok {
		return nil, fmt.Errorf("security: base credential store %T cannot list keys", s.base)
	}
	return lister.ListKeys(ctx, prefix)
}

var (
	_ core.CredentialStore  = (*SealedCredentialStore)(nil)
	_ core.CredentialLister = (*SealedCredentialStore)(nil)
)
