package command

import (
	"context"
	"testing"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-integrations/core"
)

func newTestControllers(t *testing.T) (*core.ControllerSet, *core.MemoryCredentialStore) {
	t.Helper()
	store := core.NewMemoryCredentialStore()
	registry := core.NewKindRegistry(
		core.WithCredentialStore(store),
		core.WithDisconnectPolicy(core.DisconnectPurge),
	)
	kind := &core.BasicKind{
		Name:                "stripe",
		RequiredCredentials: []string{"api_key"},
		StatusByEvent: map[string]core.IntegrationStatus{
			"account.application.deauthorized": core.StatusSuspended,
		},
	}
	if err := registry.Register(kind); err != nil {
		t.Fatalf("register kind: %v", err)
	}
	return core.NewControllerSet(registry), store
}

var testTarget = Target{IntegrationType: "stripe", InstanceID: "acct_1"}

func TestConnectCommand_ExecuteConnectsAndStoresState(t *testing.T) {
	controllers, store := newTestControllers(t)
	collector := gocmd.NewResult[*core.IntegrationState]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := NewConnectCommand(controllers).Execute(ctx, ConnectMessage{
		Target: testTarget,
		Config: core.ConnectConfig{
			Credentials: map[string]string{"api_key": "sk_test_1"},
			Settings:    map[string]any{"mode": "test"},
		},
	})
	if err != nil {
		t.Fatalf("execute connect: %v", err)
	}
	state, ok := collector.Load()
	if !ok || state == nil {
		t.Fatalf("expected state result to be stored")
	}
	if state.Status != core.StatusActive || state.Metadata["mode"] != "test" {
		t.Fatalf("unexpected state: %#v", state)
	}
	value, found, err := store.Get(context.Background(), core.CredentialKey("acct_1", "stripe", "api_key"))
	if err != nil || !found || value != "sk_test_1" {
		t.Fatalf("expected namespaced credential, got %q %v %v", value, found, err)
	}
}

func TestConnectCommand_InvalidConfigReturnsEnvelope(t *testing.T) {
	controllers, _ := newTestControllers(t)
	err := NewConnectCommand(controllers).Execute(context.Background(), ConnectMessage{Target: testTarget})
	if err == nil {
		t.Fatalf("expected missing api_key to fail")
	}
	assertTextCode(t, err, core.ServiceErrorInvalidConfig)
}

func TestLifecycleCommands_OperateOnOneController(t *testing.T) {
	controllers, store := newTestControllers(t)
	ctx := context.Background()

	if err := NewConnectCommand(controllers).Execute(ctx, ConnectMessage{
		Target: testTarget,
		Config: core.ConnectConfig{Credentials: map[string]string{"api_key": "sk_test_1"}},
	}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	t.Run("set status", func(t *testing.T) {
		collector := gocmd.NewResult[*core.IntegrationState]()
		statusCtx := gocmd.ContextWithResult(ctx, collector)
		err := NewSetStatusCommand(controllers).Execute(statusCtx, SetStatusMessage{
			Target: testTarget,
			Status: "error",
			Error:  "card declined",
		})
		if err != nil {
			t.Fatalf("set status: %v", err)
		}
		state, _ := collector.Load()
		if state == nil || state.Status != core.StatusError || state.Error != "card declined" {
			t.Fatalf("unexpected state: %#v", state)
		}
	})

	t.Run("update state", func(t *testing.T) {
		active := core.StatusActive
		collector := gocmd.NewResult[*core.IntegrationState]()
		updateCtx := gocmd.ContextWithResult(ctx, collector)
		err := NewUpdateStateCommand(controllers).Execute(updateCtx, UpdateStateMessage{
			Target: testTarget,
			Patch:  core.StatePatch{Status: &active, Metadata: map[string]any{"region": "eu"}},
		})
		if err != nil {
			t.Fatalf("update state: %v", err)
		}
		state, _ := collector.Load()
		if state == nil || state.Status != core.StatusActive || state.Metadata["region"] != "eu" {
			t.Fatalf("unexpected state: %#v", state)
		}
	})

	t.Run("refresh", func(t *testing.T) {
		collector := gocmd.NewResult[*core.IntegrationState]()
		refreshCtx := gocmd.ContextWithResult(ctx, collector)
		if err := NewRefreshCommand(controllers).Execute(refreshCtx, RefreshMessage{Target: testTarget}); err != nil {
			t.Fatalf("refresh: %v", err)
		}
		state, _ := collector.Load()
		if state == nil || state.LastActivityAt.IsZero() {
			t.Fatalf("expected refreshed activity timestamp, got %#v", state)
		}
	})

	t.Run("credentials", func(t *testing.T) {
		if err := NewStoreCredentialCommand(controllers).Execute(ctx, StoreCredentialMessage{
			Target: testTarget,
			Name:   "webhook_secret",
			Value:  "whsec_1",
		}); err != nil {
			t.Fatalf("store credential: %v", err)
		}
		key := core.CredentialKey("acct_1", "stripe", "webhook_secret")
		if ok, _ := store.Has(ctx, key); !ok {
			t.Fatalf("expected stored webhook secret")
		}
		if err := NewDeleteCredentialCommand(controllers).Execute(ctx, DeleteCredentialMessage{
			Target: testTarget,
			Name:   "webhook_secret",
		}); err != nil {
			t.Fatalf("delete credential: %v", err)
		}
		if ok, _ := store.Has(ctx, key); ok {
			t.Fatalf("expected webhook secret to be deleted")
		}
	})

	t.Run("webhook", func(t *testing.T) {
		collector := gocmd.NewResult[core.WebhookResult]()
		webhookCtx := gocmd.ContextWithResult(ctx, collector)
		err := NewHandleWebhookCommand(controllers).Execute(webhookCtx, HandleWebhookMessage{
			Target:  testTarget,
			Payload: core.WebhookPayload{Body: []byte(`{"type":"account.application.deauthorized"}`)},
		})
		if err != nil {
			t.Fatalf("handle webhook: %v", err)
		}
		result, _ := collector.Load()
		if !result.Success || result.EventType != "account.application.deauthorized" {
			t.Fatalf("unexpected webhook result: %#v", result)
		}
		controller, _ := controllers.Controller(ctx, "stripe", "acct_1")
		if controller.State().Status != core.StatusSuspended {
			t.Fatalf("expected suspended state, got %#v", controller.State())
		}
	})

	t.Run("bad webhook is a result not an error", func(t *testing.T) {
		collector := gocmd.NewResult[core.WebhookResult]()
		webhookCtx := gocmd.ContextWithResult(ctx, collector)
		err := NewHandleWebhookCommand(controllers).Execute(webhookCtx, HandleWebhookMessage{
			Target:  testTarget,
			Payload: core.WebhookPayload{Body: []byte("not json")},
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		result, _ := collector.Load()
		if result.Success || result.Error != "Invalid payload" {
			t.Fatalf("unexpected webhook result: %#v", result)
		}
	})

	t.Run("disconnect", func(t *testing.T) {
		collector := gocmd.NewResult[DisconnectResult]()
		disconnectCtx := gocmd.ContextWithResult(ctx, collector)
		if err := NewDisconnectCommand(controllers).Execute(disconnectCtx, DisconnectMessage{Target: testTarget}); err != nil {
			t.Fatalf("disconnect: %v", err)
		}
		result, _ := collector.Load()
		if !result.Disconnected {
			t.Fatalf("expected disconnected result")
		}
		if ok, _ := store.Has(ctx, core.CredentialKey("acct_1", "stripe", "api_key")); ok {
			t.Fatalf("expected purge policy to delete credentials")
		}

		second := gocmd.NewResult[DisconnectResult]()
		secondCtx := gocmd.ContextWithResult(ctx, second)
		if err := NewDisconnectCommand(controllers).Execute(secondCtx, DisconnectMessage{Target: testTarget}); err != nil {
			t.Fatalf("second disconnect: %v", err)
		}
		if result, _ := second.Load(); result.Disconnected {
			t.Fatalf("expected second disconnect to be a no-op")
		}
	})
}

func TestSetStatusCommand_NotConfiguredReturnsEnvelope(t *testing.T) {
	controllers, _ := newTestControllers(t)
	err := NewSetStatusCommand(controllers).Execute(context.Background(), SetStatusMessage{
		Target: testTarget,
		Status: "active",
	})
	if err == nil {
		t.Fatalf("expected not configured error")
	}
	assertTextCode(t, err, core.ServiceErrorNotConfigured)
}

func TestCommands_UnknownKindReturnsNotFound(t *testing.T) {
	controllers, _ := newTestControllers(t)
	err := NewRefreshCommand(controllers).Execute(context.Background(), RefreshMessage{
		Target: Target{IntegrationType: "paypal", InstanceID: "acct_1"},
	})
	if err == nil {
		t.Fatalf("expected unknown kind error")
	}
	assertTextCode(t, err, core.ServiceErrorKindNotFound)
}
