package redisstore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/devkit"
)

func newTestStore(t *testing.T) *CredentialStore {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	rdb, err := NewClient(context.Background(), Config{URL: url, PingTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	prefix := fmt.Sprintf("integrations-test:%d:", time.Now().UnixNano())
	t.Cleanup(func() {
		ctx := context.Background()
		iter := rdb.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			rdb.Del(ctx, iter.Val())
		}
		_ = rdb.Close()
	})
	store, err := NewCredentialStore(rdb, WithKeyPrefix(prefix))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestCredentialStore_Conformance(t *testing.T) {
	store := newTestStore(t)
	if err := devkit.ValidateCredentialStoreConformance(context.Background(), store); err != nil {
		t.Fatalf("redis credential store conformance: %v", err)
	}
}

func TestCredentialStore_TTL(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.CredentialKey("tenant-1", "twilio", "auth_token")
	if err := store.Set(ctx, key, "token", core.CredentialSetOptions{TTL: 100 * time.Millisecond}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok, err := store.Has(ctx, key); err != nil || !ok {
		t.Fatalf("expected credential before expiry, got %v %v", ok, err)
	}
	time.Sleep(250 * time.Millisecond)
	if _, ok, err := store.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected credential to expire, got %v %v", ok, err)
	}
}

func TestCredentialStore_ListKeysEscapesPattern(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"a*b:stripe:api_key", "axb:stripe:api_key"} {
		if err := store.Set(ctx, key, "v", core.CredentialSetOptions{}); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	keys, err := store.ListKeys(ctx, "a*b:")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "a*b:stripe:api_key" {
		t.Fatalf("expected literal prefix match, got %v", keys)
	}
}

func TestNewCredentialStore_RequiresClient(t *testing.T) {
	if _, err := NewCredentialStore(nil); err == nil {
		t.Fatalf("expected error without redis client")
	}
}

func TestEscapeGlob(t *testing.T) {
	if got := escapeGlob(`a*b?[c]\`); got != `a\*b\?\[c\]\\` {
		t.Fatalf("unexpected escape %q", got)
	}
}

func TestDedupeSorted(t *testing.T) {
	got := dedupeSorted([]string{"a", "a", "b", "c", "c"})
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Fatalf("unexpected dedupe %v", got)
	}
}
