package integrations

import (
	"context"
	"testing"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/stripe"
	"github.com/goliatone/go-integrations/providers/twilio"
)

func TestBuiltInKinds(t *testing.T) {
	kinds := BuiltInKinds("https://example.com/twilio")
	if len(kinds) != 2 {
		t.Fatalf("expected 2 built-in kinds, got %d", len(kinds))
	}
	if kinds[0].Type() != stripe.IntegrationType || kinds[1].Type() != twilio.IntegrationType {
		t.Fatalf("unexpected kind order: %q %q", kinds[0].Type(), kinds[1].Type())
	}
	if _, ok := kinds[0].(core.WebhookVerifier); !ok {
		t.Fatalf("expected stripe kind to verify webhooks")
	}
	twilioKind, ok := kinds[1].(*twilio.Kind)
	if !ok || twilioKind.WebhookURL != "https://example.com/twilio" {
		t.Fatalf("expected twilio webhook url to be applied")
	}
}

func TestSetup_RegistersBuiltInKinds(t *testing.T) {
	controllers, err := Setup(BuiltInKinds(""))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	controller, err := controllers.Controller(context.Background(), "stripe", "acct_1")
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	if _, err := controller.Connect(context.Background(), ConnectConfig{
		Credentials: map[string]string{stripe.CredentialAPIKey: "sk_test_123"},
	}); err != nil {
		t.Fatalf("connect stripe: %v", err)
	}
	if _, err := Setup([]Kind{StripeKind(), StripeKind()}); err == nil {
		t.Fatalf("expected duplicate kinds to fail setup")
	}
}

func TestProviderClients(t *testing.T) {
	payments, err := StripePaymentClient("sk_test_123")
	if err != nil {
		t.Fatalf("stripe client: %v", err)
	}
	if payments.Provider() != stripe.IntegrationType {
		t.Fatalf("unexpected stripe provider name %q", payments.Provider())
	}
	if _, err := TwilioMessageClient("AC123", ""); err == nil {
		t.Fatalf("expected missing auth token to fail")
	}
	messages, err := TwilioMessageClient("AC123", "token", twilio.WithName("twilio-backup"))
	if err != nil {
		t.Fatalf("twilio client: %v", err)
	}
	if messages.Provider() != "twilio-backup" {
		t.Fatalf("unexpected twilio provider name %q", messages.Provider())
	}
}
