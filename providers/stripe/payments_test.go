package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/providers/devkit"
)

func noSleepRetry(maxAttempts int) core.RetryOptions {
	return core.RetryOptions{
		MaxAttempts: maxAttempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Sleep:       func(context.Context, time.Duration) error { return nil },
	}
}

func connectedController(t *testing.T) *core.Controller {
	t.Helper()
	controller, err := core.NewController(NewKind(), "tenant-1", core.WithRetryOptions(noSleepRetry(2)))
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	if _, err := controller.Connect(context.Background(), core.ConnectConfig{Credentials: map[string]string{CredentialAPIKey: "sk_test_primary"}}); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return controller
}

func TestClient_CreatePaymentSendsForm(t *testing.T) {
	doer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{
		StatusCode: http.StatusOK,
		Body:       `{"id":"pi_1","status":"requires_confirmation","amount":1250,"currency":"usd"}`,
	})
	client, err := NewClient("sk_test_1", WithHTTPClient(doer), WithBaseURL("https://stripe.test/"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	payment, err := client.CreatePayment(context.Background(), PaymentRequest{
		Amount:         1250,
		Currency:       "USD",
		CustomerID:     "cus_1",
		IdempotencyKey: "order-7",
		Metadata:       map[string]string{"order": "7"},
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.ID != "pi_1" || payment.Amount != 1250 || payment.Provider != IntegrationType {
		t.Fatalf("unexpected payment %#v", payment)
	}

	request, _ := doer.LastRequest()
	if request.Method != http.MethodPost || request.URL != "https://stripe.test/v1/payment_intents" {
		t.Fatalf("unexpected request %s %s", request.Method, request.URL)
	}
	if request.Headers.Get("Idempotency-Key") != "order-7" {
		t.Fatalf("expected idempotency key header, got %q", request.Headers.Get("Idempotency-Key"))
	}
	form := request.Form()
	if form["amount"] != "1250" || form["currency"] != "usd" || form["customer"] != "cus_1" || form["metadata[order]"] != "7" {
		t.Fatalf("unexpected form %#v", form)
	}
}

func TestClient_CreatePaymentValidatesInput(t *testing.T) {
	client, _ := NewClient("sk_test_1", WithHTTPClient(devkit.NewFakeHTTPDoer()))
	if _, err := client.CreatePayment(context.Background(), PaymentRequest{Amount: 0, Currency: "usd"}); !core.IsErrorCode(err, core.ErrorCodeInvalidOptions) {
		t.Fatalf("expected invalid options for zero amount, got %v", err)
	}
	if _, err := NewClient(" "); !core.IsErrorCode(err, core.ErrorCodeInvalidConfig) {
		t.Fatalf("expected invalid config for empty key, got %v", err)
	}
}

func TestCreatePayment_FailsOverAfterRetries(t *testing.T) {
	controller := connectedController(t)
	primaryDoer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{StatusCode: http.StatusServiceUnavailable})
	secondaryDoer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{StatusCode: http.StatusOK, Body: `{"id":"pi_2","status":"succeeded","amount":500,"currency":"eur"}`})

	primary, err := NewClientFromCredentials(context.Background(), controller, WithHTTPClient(primaryDoer), WithName("stripe-primary"))
	if err != nil {
		t.Fatalf("primary client: %v", err)
	}
	secondary, _ := NewClient("sk_test_secondary", WithHTTPClient(secondaryDoer), WithName("stripe-secondary"))

	payment, err := CreatePayment(context.Background(), controller, []PaymentAdapter{primary, secondary}, PaymentRequest{Amount: 500, Currency: "eur"})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.Provider != "stripe-secondary" || payment.ID != "pi_2" {
		t.Fatalf("expected secondary adapter result, got %#v", payment)
	}
	if got := len(primaryDoer.Requests()); got != 2 {
		t.Fatalf("expected primary to be retried twice, got %d", got)
	}
	primaryKey := primaryDoer.Requests()[0].Headers.Get("Idempotency-Key")
	secondaryKey := secondaryDoer.Requests()[0].Headers.Get("Idempotency-Key")
	if primaryKey == "" || primaryKey != secondaryKey {
		t.Fatalf("expected one idempotency key across adapters, got %q and %q", primaryKey, secondaryKey)
	}
}

func TestCreatePayment_DeclineDoesNotFailOver(t *testing.T) {
	controller := connectedController(t)
	primaryDoer := devkit.NewFakeHTTPDoer(devkit.HTTPScript{
		StatusCode: http.StatusPaymentRequired,
		Body:       `{"error":{"code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`,
	})
	secondaryDoer := devkit.NewFakeHTTPDoer()
	primary, _ := NewClient("sk_test_primary", WithHTTPClient(primaryDoer))
	secondary, _ := NewClient("sk_test_secondary", WithHTTPClient(secondaryDoer), WithName("stripe-secondary"))

	_, err := CreatePayment(context.Background(), controller, []PaymentAdapter{primary, secondary}, PaymentRequest{Amount: 500, Currency: "eur"})
	var providerErr *core.ProviderError
	if !errors.As(err, &providerErr) || providerErr.Code != core.ProviderErrorInsufficientFunds {
		t.Fatalf("expected insufficient funds error, got %v", err)
	}
	if len(primaryDoer.Requests()) != 1 || len(secondaryDoer.Requests()) != 0 {
		t.Fatalf("expected a single attempt on the primary only")
	}
}

func TestCreatePayment_RejectsSuspendedIntegration(t *testing.T) {
	controller := connectedController(t)
	if err := controller.SetStatus(context.Background(), core.StatusSuspended, "deauthorized"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	doer := devkit.NewFakeHTTPDoer()
	client, _ := NewClient("sk_test_primary", WithHTTPClient(doer))

	_, err := CreatePayment(context.Background(), controller, []PaymentAdapter{client}, PaymentRequest{Amount: 1, Currency: "usd"})
	if !core.IsErrorCode(err, core.ErrorCodeSuspended) {
		t.Fatalf("expected suspended error, got %v", err)
	}
	if len(doer.Requests()) != 0 {
		t.Fatalf("expected no provider call while suspended")
	}
}
