package prom

import (
	"context"
	"testing"

	"github.com/goliatone/go-integrations/core"
	"github.com/prometheus/client_golang/prometheus"
)

func TestRecorder_CountsAndObserves(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(registry)
	ctx := context.Background()

	tags := map[string]string{"integration_type": "stripe", "status": "success"}
	recorder.IncCounter(ctx, "integrations.connect.total", 1, tags)
	recorder.IncCounter(ctx, "integrations.connect.total", 2, tags)
	recorder.ObserveHistogram(ctx, "integrations.connect.duration_ms", 42, tags)

	if got := counterValue(t, registry, "integrations_connect_total", tags); got != 3 {
		t.Fatalf("expected counter value 3, got %v", got)
	}
	if got := histogramCount(t, registry, "integrations_connect_duration_ms"); got != 1 {
		t.Fatalf("expected one histogram observation, got %d", got)
	}
}

func TestRecorder_KeepsFirstLabelSet(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(registry, WithNamespace("app"))
	ctx := context.Background()

	recorder.IncCounter(ctx, "integrations.send.retries", 1, map[string]string{"provider": "twilio"})
	recorder.IncCounter(ctx, "integrations.send.retries", 1, map[string]string{"provider": "twilio", "extra": "x"})
	recorder.IncCounter(ctx, "integrations.send.retries", 1, nil)

	if got := counterValue(t, registry, "app_integrations_send_retries", map[string]string{"provider": "twilio"}); got != 2 {
		t.Fatalf("expected extra tags to be dropped, got %v", got)
	}
	if got := counterValue(t, registry, "app_integrations_send_retries", map[string]string{"provider": ""}); got != 1 {
		t.Fatalf("expected missing tag to be blank, got %v", got)
	}
}

func TestRecorder_SharesCollectorsAcrossRecorders(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewRecorder(registry)
	second := NewRecorder(registry)
	ctx := context.Background()
	tags := map[string]string{"provider": "stripe"}

	first.IncCounter(ctx, "integrations.charge.failovers", 1, tags)
	second.IncCounter(ctx, "integrations.charge.failovers", 1, tags)

	if got := counterValue(t, registry, "integrations_charge_failovers", tags); got != 2 {
		t.Fatalf("expected shared collector value 2, got %v", got)
	}
}

func TestRecorder_WiresIntoController(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := NewRecorder(registry)
	controller, err := core.NewController(promTestKind{}, "tenant-1", core.WithMetricsRecorder(recorder))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if _, err := controller.Connect(context.Background(), core.ConnectConfig{Credentials: map[string]string{"api_key": "k"}}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() == "integrations_connect_total" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected connect counter to be exported, got %d families", len(families))
	}
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			matched := true
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] != pair.GetValue() {
					matched = false
				}
			}
			if matched {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramCount(t *testing.T, registry *prometheus.Registry, name string) uint64 {
	t.Helper()
	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total uint64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetHistogram().GetSampleCount()
		}
	}
	return total
}

func TestSanitizeName(t *testing.T) {
	cases := map[string]string{
		"integrations.connect.total": "integrations_connect_total",
		"9lives":                     "_9lives",
		" provider-id ":              "provider_id",
	}
	for input, want := range cases {
		if got := sanitizeName(input); got != want {
			t.Fatalf("sanitizeName(%q) = %q, want %q", input, got, want)
		}
	}
}

type promTestKind struct{}

func (promTestKind) Type() string { return "prom-test" }

func (promTestKind) Connect(_ context.Context, cfg core.ConnectConfig) (core.ConnectPlan, error) {
	return core.ConnectPlan{Credentials: cfg.Credentials}, nil
}

func (promTestKind) ParseWebhook(context.Context, core.WebhookPayload) (core.WebhookEvent, error) {
	return core.WebhookEvent{Type: "noop"}, nil
}
