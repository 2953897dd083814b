package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
	"github.com/google/uuid"
)

// OperationCreatePayment names the resilient operation in logs and metrics.
const OperationCreatePayment = "create_payment"

type PaymentRequest struct {
	// Amount is in the currency's minor unit.
	Amount         int64
	Currency       string
	CustomerID     string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

type Payment struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Provider string `json:"-"`
}

// PaymentAdapter is the payment capability trait.
type PaymentAdapter interface {
	core.ProviderAdapter
	CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error)
}

type Client struct {
	name       string
	apiKey     string
	rest       *transport.RESTClient
	classifier transport.Classifier
}

type ClientOption func(*Client)

func WithHTTPClient(doer transport.HTTPDoer) ClientOption {
	return func(c *Client) {
		if doer != nil {
			c.rest.Client = doer
		}
	}
}

func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
			c.rest.BaseURL = trimmed
		}
	}
}

// WithName sets the adapter name reported by Provider, for example to tell
// apart two Stripe accounts in a failover list.
func WithName(name string) ClientOption {
	return func(c *Client) {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			c.name = trimmed
			c.classifier.Provider = trimmed
		}
	}
}

func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidConfig, "api_key is required", nil)
	}
	client := &Client{
		name:   IntegrationType,
		apiKey: apiKey,
		rest:   transport.NewRESTClient(nil, BaseURL),
		classifier: transport.Classifier{
			Provider:               IntegrationType,
			InsufficientFundsCodes: []string{"insufficient_funds", "card_declined"},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// NewClientFromCredentials builds a client from the api key stored for an
// integration, typically a *core.Controller.
func NewClientFromCredentials(ctx context.Context, credentials core.CredentialSource, opts ...ClientOption) (*Client, error) {
	if credentials == nil {
		return nil, core.NewIntegrationError(IntegrationType, core.ErrorCodeNotConfigured, core.ErrNotConfigured.Message, nil)
	}
	apiKey, ok, err := credentials.GetCredential(ctx, CredentialAPIKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NewIntegrationError(IntegrationType, core.ErrorCodeNotConfigured, "api_key credential is missing", nil)
	}
	return NewClient(apiKey, opts...)
}

func (c *Client) Provider() string {
	if c == nil {
		return ""
	}
	return c.name
}

func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	if c == nil {
		return Payment{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeNotConfigured, core.ErrNotConfigured.Message, nil)
	}
	if req.Amount <= 0 {
		return Payment{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidOptions, "amount must be positive", nil)
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		return Payment{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidOptions, "currency is required", nil)
	}
	idempotencyKey := strings.TrimSpace(req.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount, 10))
	form.Set("currency", currency)
	if customer := strings.TrimSpace(req.CustomerID); customer != "" {
		form.Set("customer", customer)
	}
	if description := strings.TrimSpace(req.Description); description != "" {
		form.Set("description", description)
	}
	keys := make([]string, 0, len(req.Metadata))
	for key := range req.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		form.Set(fmt.Sprintf("metadata[%s]", key), req.Metadata[key])
	}

	res, err := c.rest.Do(ctx, transport.Request{
		Method: http.MethodPost,
		URL:    "/v1/payment_intents",
		Headers: map[string]string{
			"Authorization":   "Bearer " + c.apiKey,
			"Content-Type":    "application/x-www-form-urlencoded",
			"Idempotency-Key": idempotencyKey,
		},
		Body: []byte(form.Encode()),
	})
	if classified := c.classifier.Classify(ctx, res, err, ""); classified != nil {
		return Payment{}, classified
	}

	var payment Payment
	if err := json.Unmarshal(res.Body, &payment); err != nil {
		return Payment{}, core.NewProviderError(c.name, core.ProviderErrorFailed, "decode payment intent response", false).WithCause(err)
	}
	payment.Provider = c.name
	return payment, nil
}

// CreatePayment runs req through the controller's resilience policy across
// adapters in order.
func CreatePayment(ctx context.Context, controller *core.Controller, adapters []PaymentAdapter, req PaymentRequest) (Payment, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		req.IdempotencyKey = uuid.NewString()
	}
	return core.Invoke(ctx, controller, OperationCreatePayment, adapters, func(ctx context.Context, adapter PaymentAdapter) (Payment, error) {
		return adapter.CreatePayment(ctx, req)
	})
}

var _ PaymentAdapter = (*Client)(nil)
