package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	integrationmigrations "github.com/goliatone/go-integrations/migrations"
	"github.com/goliatone/go-integrations/providers/devkit"
	"github.com/goliatone/go-integrations/providers/stripe"
	sqlstore "github.com/goliatone/go-integrations/store/sql"
	"github.com/goliatone/go-integrations/webhooks"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-integrations-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range integrationmigrations.Tables() {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestCredentialStore_Conformance(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if err := devkit.ValidateCredentialStoreConformance(context.Background(), factory.CredentialStore()); err != nil {
		t.Fatalf("credential store conformance: %v", err)
	}
}

func TestCredentialStore_ExpiresByTTL(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialStore(client.DB())
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	ctx := context.Background()

	key := core.CredentialKey("tenant-1", "stripe", "access_token")
	if err := store.Set(ctx, key, "short-lived", core.CredentialSetOptions{TTL: time.Minute}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if value, ok, err := store.Get(ctx, key); err != nil || !ok || value != "short-lived" {
		t.Fatalf("expected live credential, got %q %v %v", value, ok, err)
	}
	keys, err := store.ListKeys(ctx, core.CredentialKeyPrefix("tenant-1", "stripe"))
	if err != nil || len(keys) != 1 {
		t.Fatalf("expected listed key before expiry, got %v %v", keys, err)
	}

	now = now.Add(2 * time.Minute)
	if _, ok, err := store.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected expired credential to read as absent, got %v %v", ok, err)
	}
	keys, err = store.ListKeys(ctx, core.CredentialKeyPrefix("tenant-1", "stripe"))
	if err != nil || len(keys) != 0 {
		t.Fatalf("expected no keys after expiry, got %v %v", keys, err)
	}
}

func TestCredentialStore_ListKeysMatchesLiteralPrefix(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewCredentialStore(client.DB())
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"a_b:stripe:api_key", "axb:stripe:api_key", "a_b:stripe:webhook_secret"} {
		if err := store.Set(ctx, key, "v", core.CredentialSetOptions{}); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	keys, err := store.ListKeys(ctx, "a_b:stripe:")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a_b:stripe:api_key" || keys[1] != "a_b:stripe:webhook_secret" {
		t.Fatalf("expected underscore to match literally, got %v", keys)
	}
}

func TestStateStore_Conformance(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if err := devkit.ValidateStateStoreConformance(context.Background(), factory.StateStore()); err != nil {
		t.Fatalf("state store conformance: %v", err)
	}
}

func TestWebhookDeliveryStore_Conformance(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if err := devkit.ValidateDeliveryLedgerConformance(context.Background(), factory.WebhookDeliveryStore(), "stripe", "evt_conformance"); err != nil {
		t.Fatalf("delivery ledger conformance: %v", err)
	}
}

func TestWebhookDeliveryStore_ClaimsRedeliveriesOnce(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new delivery store: %v", err)
	}
	now := time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }
	store.ClaimLease = time.Minute
	ctx := context.Background()

	if _, _, err := store.Reserve(ctx, "stripe", "evt_claim", []byte(`{}`)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.MarkRetry(ctx, "stripe", "evt_claim", errors.New("webhooks: handler failed"), now.Add(time.Second)); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	claimed, existed, err := store.Reserve(ctx, "stripe", "evt_claim", nil)
	if err != nil || existed || claimed.Status != webhooks.DeliveryStatusPending {
		t.Fatalf("expected redelivery to claim, got %#v existed=%v err=%v", claimed, existed, err)
	}
	if _, existed, err := store.Reserve(ctx, "stripe", "evt_claim", nil); err != nil || !existed {
		t.Fatalf("expected live claim to block a second redelivery, existed=%v err=%v", existed, err)
	}

	now = now.Add(2 * time.Minute)
	if _, existed, err := store.Reserve(ctx, "stripe", "evt_claim", nil); err != nil || existed {
		t.Fatalf("expected expired claim to be taken over, existed=%v err=%v", existed, err)
	}
}

func TestWebhookDeliveryStore_MarkDeadAndMissing(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new delivery store: %v", err)
	}
	ctx := context.Background()
	if err := store.MarkProcessed(ctx, "stripe", "evt_missing"); !errors.Is(err, webhooks.ErrDeliveryNotFound) {
		t.Fatalf("expected not found for unknown delivery, got %v", err)
	}
	if _, _, err := store.Reserve(ctx, "stripe", "evt_dead", []byte(`{}`)); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.MarkDead(ctx, "stripe", "evt_dead", errors.New("webhooks: retries exhausted")); err != nil {
		t.Fatalf("mark dead: %v", err)
	}
	record, err := store.Get(ctx, "stripe", "evt_dead")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if record.Status != webhooks.DeliveryStatusDead || record.LastError != "retries exhausted" || record.NextAttemptAt != nil {
		t.Fatalf("unexpected dead record %#v", record)
	}
}

func TestEventLog_PersistsRedactedEventsAndFansOut(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	eventLog, err := sqlstore.NewEventLog(client.DB(), nil)
	if err != nil {
		t.Fatalf("new event log: %v", err)
	}
	var delivered []core.Event
	unsubscribe := eventLog.Subscribe(func(_ context.Context, event core.Event) {
		delivered = append(delivered, event)
	})
	defer unsubscribe()

	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	eventLog.Emit(ctx, core.NewEvent(core.EventConnected, map[string]any{
		"integrationType": "stripe",
		"api_key":         "sk_test_secret",
	}, at))
	eventLog.Emit(ctx, core.NewEvent(core.EventDisconnected, map[string]any{"integrationType": "twilio"}, at.Add(time.Second)))

	if len(delivered) != 2 {
		t.Fatalf("expected 2 delivered events, got %d", len(delivered))
	}
	if delivered[0].Payload["api_key"] != "sk_test_secret" {
		t.Fatalf("expected subscribers to receive the unredacted payload")
	}

	stored, err := eventLog.List(ctx, core.EventFilter{IntegrationType: "stripe"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 1 || stored[0].Type != core.EventConnected {
		t.Fatalf("expected one stripe event, got %#v", stored)
	}
	if stored[0].Payload["api_key"] != core.RedactedValue {
		t.Fatalf("expected persisted payload to be redacted, got %#v", stored[0].Payload)
	}

	all, err := eventLog.List(ctx, core.EventFilter{})
	if err != nil || len(all) != 2 || all[0].Type != core.EventConnected {
		t.Fatalf("expected events oldest first, got %#v %v", all, err)
	}
}

func TestCachedCredentialStore_ReadThroughAndInvalidate(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	base, err := sqlstore.NewCredentialStore(client.DB())
	if err != nil {
		t.Fatalf("new credential store: %v", err)
	}
	cached, err := sqlstore.NewCachedCredentialStore(base, newTestCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	ctx := context.Background()
	key := core.CredentialKey("tenant-1", "stripe", "api_key")

	if err := cached.Set(ctx, key, "sk_test_1", core.CredentialSetOptions{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if value, ok, err := cached.Get(ctx, key); err != nil || !ok || value != "sk_test_1" {
		t.Fatalf("expected cached read, got %q %v %v", value, ok, err)
	}

	// A write that bypasses the cache stays invisible until invalidation.
	if err := base.Set(ctx, key, "sk_test_2", core.CredentialSetOptions{}); err != nil {
		t.Fatalf("base set: %v", err)
	}
	if value, _, _ := cached.Get(ctx, key); value != "sk_test_1" {
		t.Fatalf("expected cached value, got %q", value)
	}

	if err := cached.Set(ctx, key, "sk_test_3", core.CredentialSetOptions{}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if value, _, _ := cached.Get(ctx, key); value != "sk_test_3" {
		t.Fatalf("expected invalidated read, got %q", value)
	}

	if err := cached.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, err := cached.Get(ctx, key); err != nil || ok {
		t.Fatalf("expected deleted credential to be absent, got %v %v", ok, err)
	}
	if err := devkit.ValidateCredentialStoreConformance(ctx, cached); err != nil {
		t.Fatalf("cached store conformance: %v", err)
	}
}

func TestController_RestoresStateFromSQL(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	opts := []core.Option{
		core.WithCredentialStore(factory.CredentialStore()),
		core.WithStateStore(factory.StateStore()),
		core.WithEventEmitter(factory.EventLog()),
	}
	ctx := context.Background()

	first, err := core.NewController(stripe.NewKind(), "tenant-sql", opts...)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if _, err := first.Connect(ctx, core.ConnectConfig{Credentials: map[string]string{stripe.CredentialAPIKey: "sk_test_123"}}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	second, err := core.NewController(stripe.NewKind(), "tenant-sql", opts...)
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if err := second.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	state := second.State()
	if state == nil || state.Status != core.StatusActive || state.Type != stripe.IntegrationType {
		t.Fatalf("expected restored active state, got %#v", state)
	}
	if value, ok, err := second.GetCredential(ctx, stripe.CredentialAPIKey); err != nil || !ok || value != "sk_test_123" {
		t.Fatalf("expected persisted api key, got %q %v %v", value, ok, err)
	}

	events, err := factory.EventLog().List(ctx, core.EventFilter{Type: core.EventConnected})
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one persisted connected event, got %d %v", len(events), err)
	}
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:integrations-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	if err := sqlstore.Migrate(context.Background(), client); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}
