package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
)

type pingKind struct {
	*core.BasicKind
	pingErr error
}

func (k pingKind) Ping(context.Context, core.CredentialSource) error { return k.pingErr }

type verifyKind struct {
	*core.BasicKind
}

func (verifyKind) VerifyWebhook(context.Context, core.WebhookPayload, string) error { return nil }

func newTestControllers(t *testing.T, kinds ...core.Kind) (*core.KindRegistry, *core.ControllerSet) {
	t.Helper()
	registry := core.NewKindRegistry(core.WithCredentialStore(core.NewMemoryCredentialStore()))
	for _, kind := range kinds {
		if err := registry.Register(kind); err != nil {
			t.Fatalf("register kind: %v", err)
		}
	}
	return registry, core.NewControllerSet(registry)
}

func connect(t *testing.T, controllers *core.ControllerSet, integrationType string, instanceID string, credentials map[string]string) *core.Controller {
	t.Helper()
	controller, err := controllers.Controller(context.Background(), integrationType, instanceID)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if _, err := controller.Connect(context.Background(), core.ConnectConfig{Credentials: credentials}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return controller
}

func TestGetStateQuery_ReturnsNilUntilConfigured(t *testing.T) {
	_, controllers := newTestControllers(t, &core.BasicKind{Name: "stripe"})
	qry := NewGetStateQuery(controllers)
	target := Target{IntegrationType: "stripe", InstanceID: "acct_1"}

	state, err := qry.Query(context.Background(), GetStateMessage{Target: target})
	if err != nil {
		t.Fatalf("query state: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state before connect, got %#v", state)
	}

	connect(t, controllers, "stripe", "acct_1", nil)
	state, err = qry.Query(context.Background(), GetStateMessage{Target: target})
	if err != nil {
		t.Fatalf("query state: %v", err)
	}
	if state == nil || state.Status != core.StatusActive || state.Type != "stripe" {
		t.Fatalf("unexpected state: %#v", state)
	}
}

func TestHealthCheckQuery_ReflectsPingFailure(t *testing.T) {
	kind := pingKind{BasicKind: &core.BasicKind{Name: "twilio"}, pingErr: errors.New("401 unauthorized")}
	_, controllers := newTestControllers(t, kind)
	qry := NewHealthCheckQuery(controllers)
	target := Target{IntegrationType: "twilio", InstanceID: "AC1"}

	result, err := qry.Query(context.Background(), HealthCheckMessage{Target: target})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if result.Healthy || result.Status != core.StatusNotConfigured {
		t.Fatalf("expected not configured result, got %#v", result)
	}

	connect(t, controllers, "twilio", "AC1", nil)
	result, err = qry.Query(context.Background(), HealthCheckMessage{Target: target})
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	if result.Healthy || result.Status != core.StatusError || result.Error != "401 unauthorized" {
		t.Fatalf("expected ping failure to surface, got %#v", result)
	}
}

func TestGetCredentialQuery_NeverReturnsSecret(t *testing.T) {
	_, controllers := newTestControllers(t, &core.BasicKind{Name: "stripe"})
	connect(t, controllers, "stripe", "acct_1", map[string]string{"api_key": "sk_live_secret"})
	qry := NewGetCredentialQuery(controllers)
	target := Target{IntegrationType: "stripe", InstanceID: "acct_1"}

	view, err := qry.Query(context.Background(), GetCredentialMessage{Target: target, Name: "api_key"})
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if !view.Present || view.Value != core.RedactedValue {
		t.Fatalf("expected redacted present credential, got %#v", view)
	}

	view, err = qry.Query(context.Background(), GetCredentialMessage{Target: target, Name: "webhook_secret"})
	if err != nil {
		t.Fatalf("get credential: %v", err)
	}
	if view.Present || view.Value != "" {
		t.Fatalf("expected absent credential, got %#v", view)
	}
}

func TestListKindsQuery_ReportsCapabilities(t *testing.T) {
	registry, _ := newTestControllers(t,
		verifyKind{BasicKind: &core.BasicKind{Name: "stripe"}},
		pingKind{BasicKind: &core.BasicKind{Name: "twilio"}},
		&core.BasicKind{Name: "custom"},
	)
	kinds, err := NewListKindsQuery(registry).Query(context.Background(), ListKindsMessage{})
	if err != nil {
		t.Fatalf("list kinds: %v", err)
	}
	if len(kinds) != 3 {
		t.Fatalf("expected 3 kinds, got %d", len(kinds))
	}
	if kinds[0].Type != "custom" || kinds[0].VerifiesWebhooks || kinds[0].SupportsHealthPing {
		t.Fatalf("unexpected custom kind info: %#v", kinds[0])
	}
	if kinds[1].Type != "stripe" || !kinds[1].VerifiesWebhooks {
		t.Fatalf("unexpected stripe kind info: %#v", kinds[1])
	}
	if kinds[2].Type != "twilio" || !kinds[2].SupportsHealthPing {
		t.Fatalf("unexpected twilio kind info: %#v", kinds[2])
	}
}

func TestListEventsQuery_PassesFilter(t *testing.T) {
	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	reader := stubEventReader{
		listFn: func(_ context.Context, filter core.EventFilter) ([]core.Event, error) {
			if filter.Type != core.EventConnected || filter.IntegrationType != "stripe" {
				t.Fatalf("unexpected filter: %#v", filter)
			}
			if !filter.Since.Equal(since) || filter.Limit != 10 {
				t.Fatalf("unexpected window: %#v", filter)
			}
			return []core.Event{{ID: "evt_1", Type: core.EventConnected}}, nil
		},
	}
	events, err := NewListEventsQuery(reader).Query(context.Background(), ListEventsMessage{
		EventType:       " integration:connected ",
		IntegrationType: "stripe",
		Since:           since,
		Limit:           10,
	})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].ID != "evt_1" {
		t.Fatalf("unexpected events: %#v", events)
	}
}

type stubEventReader struct {
	listFn func(ctx context.Context, filter core.EventFilter) ([]core.Event, error)
}

func (s stubEventReader) List(ctx context.Context, filter core.EventFilter) ([]core.Event, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter)
}
