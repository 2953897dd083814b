package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	integrationcommand "github.com/goliatone/go-integrations/command"
	"github.com/goliatone/go-integrations/core"
	integrationquery "github.com/goliatone/go-integrations/query"
)

type okMessage struct{}

func (okMessage) Type() string { return "integrations.command.ok" }

type invalidMessage struct{}

func (invalidMessage) Type() string { return "" }

type failingMessage struct{}

func (failingMessage) Type() string { return "integrations.command.fail" }

func (failingMessage) Validate() error { return errors.New("invalid payload") }

type dispatchMessage struct {
	ID string
}

func (dispatchMessage) Type() string { return "integrations.command.test" }

func TestValidateMessageContract(t *testing.T) {
	if err := ValidateMessageContract(okMessage{}); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
	if err := ValidateMessageContract(invalidMessage{}); err == nil {
		t.Fatalf("expected empty type to fail contract validation")
	}
	if err := ValidateMessageContract(failingMessage{}); err == nil {
		t.Fatalf("expected Validate() failure to bubble")
	}
}

func TestRegistryAndDispatchWiring(t *testing.T) {
	adapter := NewRegistryAdapter(command.NewRegistry())
	executed := 0
	customResolverCalled := 0

	cmd := command.CommandFunc[dispatchMessage](func(context.Context, dispatchMessage) error {
		executed++
		return nil
	})

	if _, err := RegisterAndSubscribe(adapter, cmd); err != nil {
		t.Fatalf("register and subscribe: %v", err)
	}
	if err := adapter.AddResolver("custom", func(any, command.CommandMeta, *command.Registry) error {
		customResolverCalled++
		return nil
	}); err != nil {
		t.Fatalf("add resolver: %v", err)
	}
	if !adapter.HasResolver("custom") {
		t.Fatalf("expected custom resolver to be registered")
	}
	if err := adapter.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if customResolverCalled == 0 {
		t.Fatalf("expected resolver hook to run during initialization")
	}

	if err := Dispatch(context.Background(), dispatchMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if executed != 1 {
		t.Fatalf("expected command execution count=1, got %d", executed)
	}
}

func TestRegisterIntegrationHandlers_DispatchesThroughControllers(t *testing.T) {
	store := core.NewMemoryCredentialStore()
	registry := core.NewKindRegistry(core.WithCredentialStore(store))
	if err := registry.Register(&core.BasicKind{Name: "stripe", RequiredCredentials: []string{"api_key"}}); err != nil {
		t.Fatalf("register kind: %v", err)
	}
	controllers := core.NewControllerSet(registry)

	subs, err := RegisterIntegrationHandlers(NewRegistryAdapter(command.NewRegistry()), controllers, nil)
	if err != nil {
		t.Fatalf("register integration handlers: %v", err)
	}
	t.Cleanup(subs.Unsubscribe)
	if len(subs) != 12 {
		t.Fatalf("expected 12 subscriptions without an event reader, got %d", len(subs))
	}

	ctx := context.Background()
	target := integrationcommand.Target{IntegrationType: "stripe", InstanceID: "acct_1"}
	if err := Dispatch(ctx, integrationcommand.ConnectMessage{
		Target: target,
		Config: core.ConnectConfig{Credentials: map[string]string{"api_key": "sk_test_1"}},
	}); err != nil {
		t.Fatalf("dispatch connect: %v", err)
	}

	state, err := Query[integrationquery.GetStateMessage, *core.IntegrationState](ctx, integrationquery.GetStateMessage{
		Target: integrationquery.Target{IntegrationType: "stripe", InstanceID: "acct_1"},
	})
	if err != nil {
		t.Fatalf("query state: %v", err)
	}
	if state == nil || state.Status != core.StatusActive {
		t.Fatalf("expected active state through dispatcher, got %#v", state)
	}

	view, err := Query[integrationquery.GetCredentialMessage, integrationquery.CredentialView](ctx, integrationquery.GetCredentialMessage{
		Target: integrationquery.Target{IntegrationType: "stripe", InstanceID: "acct_1"},
		Name:   "api_key",
	})
	if err != nil {
		t.Fatalf("query credential: %v", err)
	}
	if !view.Present || view.Value != core.RedactedValue {
		t.Fatalf("expected redacted credential view, got %#v", view)
	}

	if err := Dispatch(ctx, integrationcommand.DisconnectMessage{Target: target}); err != nil {
		t.Fatalf("dispatch disconnect: %v", err)
	}
	controller, _ := controllers.Controller(ctx, "stripe", "acct_1")
	if controller.State() != nil {
		t.Fatalf("expected disconnected controller, got %#v", controller.State())
	}
}

func TestRegisterIntegrationHandlers_RequiresControllers(t *testing.T) {
	if _, err := RegisterIntegrationHandlers(NewRegistryAdapter(nil), nil, nil); err == nil {
		t.Fatalf("expected missing controller set to fail")
	}
}
