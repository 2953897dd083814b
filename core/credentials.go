package core

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrCredentialKeyRequired = errors.New("core: credential key is required")

const credentialKeySeparator = ":"

// CredentialKey builds the namespaced key "<instance>:<type>:<name>".
func CredentialKey(instanceID string, integrationType string, name string) string {
	return strings.Join([]string{
		strings.TrimSpace(instanceID),
		strings.TrimSpace(integrationType),
		strings.TrimSpace(name),
	}, credentialKeySeparator)
}

// CredentialKeyPrefix is the prefix shared by every key of one instance and
// integration type.
func CredentialKeyPrefix(instanceID string, integrationType string) string {
	return CredentialKey(instanceID, integrationType, "")
}

type memoryCredential struct {
	value     string
	expiresAt time.Time
}

type MemoryCredentialStore struct {
	mu      sync.RWMutex
	records map[string]memoryCredential
	Now     func() time.Time
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		records: map[string]memoryCredential{},
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryCredentialStore) Set(_ context.Context, key string, value string, opts CredentialSetOptions) error {
	if s == nil {
		return errors.New("core: memory credential store is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrCredentialKeyRequired
	}
	record := memoryCredential{value: value}
	if opts.TTL > 0 {
		record.expiresAt = s.now().Add(opts.TTL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = map[string]memoryCredential{}
	}
	s.records[key] = record
	return nil
}

func (s *MemoryCredentialStore) Get(_ context.Context, key string) (string, bool, error) {
	if s == nil {
		return "", false, nil
	}
	key = strings.TrimSpace(key)
	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return "", false, nil
	}
	if s.expired(record) {
		s.mu.Lock()
		delete(s.records, key)
		s.mu.Unlock()
		return "", false, nil
	}
	return record.value, true, nil
}

func (s *MemoryCredentialStore) Delete(_ context.Context, key string) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, strings.TrimSpace(key))
	return nil
}

func (s *MemoryCredentialStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

func (s *MemoryCredentialStore) ListKeys(_ context.Context, prefix string) ([]string, error) {
	if s == nil {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for key, record := range s.records {
		if !strings.HasPrefix(key, prefix) || s.expired(record) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryCredentialStore) expired(record memoryCredential) bool {
	return !record.expiresAt.IsZero() && !s.now().Before(record.expiresAt)
}

func (s *MemoryCredentialStore) now() time.Time {
	if s == nil || s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

var (
	_ CredentialStore  = (*MemoryCredentialStore)(nil)
	_ CredentialLister = (*MemoryCredentialStore)(nil)
)
