// Package redisstore keeps integration credentials in Redis. Expiry is
// delegated to Redis key TTLs.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultKeyPrefix = "integrations:credential:"
	scanBatchSize    = 200
)

// Config holds Redis connection settings for NewClient.
type Config struct {
	URL         string        `koanf:"url" mapstructure:"url"`
	Password    string        `koanf:"password" mapstructure:"password"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
}

// NewClient parses cfg.URL and pings the server.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redisstore: parse redis url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	rdb := redis.NewClient(opts)

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redisstore: ping redis: %w", err)
	}
	return rdb, nil
}

// CredentialStore stores each credential under KeyPrefix + key.
type CredentialStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

type Option func(*CredentialStore)

// WithKeyPrefix namespaces every key written by the store.
func WithKeyPrefix(prefix string) Option {
	return func(s *CredentialStore) {
		s.keyPrefix = prefix
	}
}

func NewCredentialStore(rdb redis.UniversalClient, opts ...Option) (*CredentialStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redisstore: redis client is required")
	}
	store := &CredentialStore{rdb: rdb, keyPrefix: DefaultKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *CredentialStore) Set(ctx context.Context, key string, value string, opts core.CredentialSetOptions) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("redisstore: credential key is required")
	}
	ttl := opts.TTL
	if ttl < 0 {
		ttl = 0
	}
	if err := s.rdb.Set(ctx, s.redisKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: set credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.rdb.Get(ctx, s.redisKey(strings.TrimSpace(key))).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisstore: get credential: %w", err)
	}
	return value, true, nil
}

func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.redisKey(strings.TrimSpace(key))).Err(); err != nil {
		return fmt.Errorf("redisstore: delete credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) Has(ctx context.Context, key string) (bool, error) {
	count, err := s.rdb.Exists(ctx, s.redisKey(strings.TrimSpace(key))).Result()
	if err != nil {
		return false, fmt.Errorf("redisstore: check credential: %w", err)
	}
	return count > 0, nil
}

// ListKeys walks the keyspace with SCAN and returns sorted credential keys
// starting with prefix.
func (s *CredentialStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	pattern := escapeGlob(s.keyPrefix+prefix) + "*"
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return nil, fmt.Errorf("redisstore: scan credentials: %w", err)
		}
		for _, redisKey := range batch {
			key := strings.TrimPrefix(redisKey, s.keyPrefix)
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	sort.Strings(keys)
	return dedupeSorted(keys), nil
}

func (s *CredentialStore) redisKey(key string) string {
	return s.keyPrefix + key
}

// escapeGlob quotes the characters SCAN MATCH treats as pattern syntax.
func escapeGlob(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SCAN may return a key more than once.
func dedupeSorted(keys []string) []string {
	if len(keys) < 2 {
		return keys
	}
	out := keys[:1]
	for _, key := range keys[1:] {
		if key != out[len(out)-1] {
			out = append(out, key)
		}
	}
	return out
}

var (
	_ core.CredentialStore  = (*CredentialStore)(nil)
	_ core.CredentialLister = (*CredentialStore)(nil)
)
