package security

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// VersionedSecretProvider is a SecretProvider bound to one key id and version.
type VersionedSecretProvider interface {
	SecretProvider
	KeyID() string
	Version() int
}

// Keyring encrypts with its primary key and decrypts with whichever key the
// envelope names, so values sealed before a rotation stay readable.
type Keyring struct {
	primary VersionedSecretProvider
	keys    map[string]VersionedSecretProvider
}

func NewKeyring(primary VersionedSecretProvider, retired ...VersionedSecretProvider) (*Keyring, error) {
	if primary == nil {
		return nil, fmt.Errorf("security: primary key is required")
	}
	ring := &Keyring{primary: primary, keys: map[string]VersionedSecretProvider{}}
	for _, provider := range append([]VersionedSecretProvider{primary}, retired...) {
		if provider == nil {
			continue
		}
		ref := keyRef(provider.KeyID(), provider.Version())
		if _, exists := ring.keys[ref]; exists {
			return nil, fmt.Errorf("security: duplicate key %s", ref)
		}
		ring.keys[ref] = provider
	}
	return ring, nil
}

func (k *Keyring) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if k == nil || k.primary == nil {
		return nil, fmt.Errorf("security: keyring is not configured")
	}
	return k.primary.Encrypt(ctx, plaintext)
}

func (k *Keyring) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if k == nil || k.primary == nil {
		return nil, fmt.Errorf("security: keyring is not configured")
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return nil, err
	}
	provider, ok := k.keys[keyRef(meta.KeyID, meta.Version)]
	if !ok {
		return nil, fmt.Errorf("security: no key for %s", keyRef(meta.KeyID, meta.Version))
	}
	return provider.Decrypt(ctx, ciphertext)
}

// NeedsRotation reports whether ciphertext was sealed by a key other than the
// primary.
func (k *Keyring) NeedsRotation(ciphertext []byte) bool {
	if k == nil || k.primary == nil {
		return false
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return false
	}
	return keyRef(meta.KeyID, meta.Version) != keyRef(k.primary.KeyID(), k.primary.Version())
}

func keyRef(keyID string, version int) string {
	return strings.TrimSpace(keyID) + "@v" + strconv.Itoa(version)
}

var _ SecretProvider = (*Keyring)(nil)
