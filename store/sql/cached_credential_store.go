package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-integrations/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const credentialCacheKeyPrefix = "go-integrations::credential::v1"

type cachedCredential struct {
	Value string
	Found bool
}

// CachedCredentialStore is a read-through cache in front of another
// CredentialStore. Writes go to the base store and evict the cached entry.
// Expiries set through this wrapper evict the entry once they pass.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService
	Now   func() time.Time

	mu       sync.Mutex
	expiries map[string]time.Time
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base credential store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: credential cache service is required")
	}
	return &CachedCredentialStore{
		base:     base,
		cache:    cacheService,
		expiries: map[string]time.Time{},
	}, nil
}

// CredentialCacheKey returns go-integrations::credential::v1::<key> with the
// key URL-path escaped.
func CredentialCacheKey(key string) string {
	return credentialCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(key))
}

func (s *CachedCredentialStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return "", false, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if s.expired(key) {
		if err := s.evict(ctx, key); err != nil {
			return "", false, err
		}
	}
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, CredentialCacheKey(key), func(ctx context.Context) (cachedCredential, error) {
		value, ok, fetchErr := s.base.Get(ctx, key)
		if fetchErr != nil {
			return cachedCredential{}, fetchErr
		}
		return cachedCredential{Value: value, Found: ok}, nil
	})
	if err != nil {
		return "", false, err
	}
	return entry.Value, entry.Found, nil
}

func (s *CachedCredentialStore) Set(ctx context.Context, key string, value string, opts core.CredentialSetOptions) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if err := s.base.Set(ctx, key, value, opts); err != nil {
		return err
	}
	s.mu.Lock()
	if opts.TTL > 0 {
		s.expiries[key] = s.now().Add(opts.TTL)
	} else {
		delete(s.expiries, key)
	}
	s.mu.Unlock()
	return s.cache.Delete(ctx, CredentialCacheKey(key))
}

func (s *CachedCredentialStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if err := s.base.Delete(ctx, key); err != nil {
		return err
	}
	return s.evict(ctx, key)
}

func (s *CachedCredentialStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// ListKeys is not cached; it requires the base store to be a lister.
func (s *CachedCredentialStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached credential store is not configured")
	}
	lister, ok := s.base.(core.CredentialLister)
	if !ok {
		return nil, fmt.Errorf("sqlstore: base credential store %T cannot list keys", s.base)
	}
	return lister.ListKeys(ctx, prefix)
}

func (s *CachedCredentialStore) expired(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiresAt, ok := s.expiries[key]
	return ok && !s.now().Before(expiresAt)
}

func (s *CachedCredentialStore) evict(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.expiries, key)
	s.mu.Unlock()
	return s.cache.Delete(ctx, CredentialCacheKey(key))
}

func (s *CachedCredentialStore) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
