package integrations

import (
	"github.com/goliatone/go-integrations/providers/stripe"
	"github.com/goliatone/go-integrations/providers/twilio"
)

func StripeKind() *stripe.Kind {
	return stripe.NewKind()
}

// TwilioKind builds the Twilio kind. webhookURL is the public callback URL
// Twilio signs; signed callbacks are rejected while it is empty.
func TwilioKind(webhookURL string) *twilio.Kind {
	kind := twilio.NewKind()
	kind.WebhookURL = webhookURL
	return kind
}

// BuiltInKinds returns every bundled integration kind, ordered by type.
func BuiltInKinds(twilioWebhookURL string) []Kind {
	return []Kind{
		StripeKind(),
		TwilioKind(twilioWebhookURL),
	}
}

func StripePaymentClient(apiKey string, opts ...stripe.ClientOption) (*stripe.Client, error) {
	return stripe.NewClient(apiKey, opts...)
}

func TwilioMessageClient(accountSID string, authToken string, opts ...twilio.ClientOption) (*twilio.Client, error) {
	return twilio.NewClient(accountSID, authToken, opts...)
}
