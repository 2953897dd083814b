package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

const (
	IntegrationType = "stripe"
	BaseURL         = "https://api.stripe.com"

	CredentialAPIKey = "api_key"

	SignatureHeader           = "Stripe-Signature"
	DefaultSignatureTolerance = 5 * time.Minute

	EventAccountDeauthorized = "account.application.deauthorized"
)

var statusByEvent = map[string]core.IntegrationStatus{
	EventAccountDeauthorized: core.StatusSuspended,
}

// Kind validates Stripe connections, verifies Stripe-Signature headers and
// maps account events onto integration status.
type Kind struct {
	// Tolerance bounds the age of a signed webhook timestamp.
	Tolerance time.Duration
	Now       func() time.Time
	// HTTPClient and BaseURL are used by Ping.
	HTTPClient transport.HTTPDoer
	BaseURL    string
}

func NewKind() *Kind {
	return &Kind{
		Tolerance: DefaultSignatureTolerance,
		BaseURL:   BaseURL,
	}
}

func (k *Kind) Type() string {
	return IntegrationType
}

func (k *Kind) Connect(_ context.Context, cfg core.ConnectConfig) (core.ConnectPlan, error) {
	apiKey := strings.TrimSpace(cfg.Credentials[CredentialAPIKey])
	if apiKey == "" {
		return core.ConnectPlan{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidConfig, "api_key is required", nil)
	}
	if !strings.HasPrefix(apiKey, "sk_") && !strings.HasPrefix(apiKey, "rk_") {
		return core.ConnectPlan{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidConfig, "api_key must be a secret or restricted key", nil)
	}

	plan := core.ConnectPlan{
		Credentials: map[string]string{CredentialAPIKey: apiKey},
		Metadata: map[string]any{
			"livemode": strings.Contains(apiKey, "_live_"),
		},
	}
	if secret := strings.TrimSpace(cfg.Credentials[core.CredentialWebhookSecret]); secret != "" {
		if !strings.HasPrefix(secret, "whsec_") {
			return core.ConnectPlan{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidConfig, "webhook_secret must start with whsec_", nil)
		}
		plan.Credentials[core.CredentialWebhookSecret] = secret
	}
	if account, ok := cfg.Settings["account"].(string); ok && strings.TrimSpace(account) != "" {
		plan.Metadata["account"] = strings.TrimSpace(account)
	}
	return plan, nil
}

type webhookEnvelope struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Account  string `json:"account"`
	Livemode bool   `json:"livemode"`
	Created  int64  `json:"created"`
}

func (k *Kind) ParseWebhook(_ context.Context, payload core.WebhookPayload) (core.WebhookEvent, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload.Body, &envelope); err != nil {
		return core.WebhookEvent{}, fmt.Errorf("stripe: decode webhook: %w", err)
	}
	eventType := strings.TrimSpace(envelope.Type)
	if eventType == "" {
		return core.WebhookEvent{}, fmt.Errorf("stripe: webhook type is required")
	}

	event := core.WebhookEvent{
		Type:     eventType,
		Metadata: map[string]any{"last_event_id": strings.TrimSpace(envelope.ID)},
	}
	if account := strings.TrimSpace(envelope.Account); account != "" {
		event.Metadata["account"] = account
	}
	if status, ok := statusByEvent[eventType]; ok {
		event.Status = &status
		event.Error = "Stripe application deauthorized"
	}
	return event, nil
}

// VerifyWebhook checks the v1 scheme of a Stripe-Signature header:
// HMAC-SHA256 over "<t>.<body>" keyed by the endpoint secret.
func (k *Kind) VerifyWebhook(_ context.Context, payload core.WebhookPayload, secret string) error {
	header := payload.Header(SignatureHeader)
	if header == "" {
		return fmt.Errorf("stripe: missing %s header", SignatureHeader)
	}
	timestamp, signatures, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	tolerance := DefaultSignatureTolerance
	if k != nil && k.Tolerance > 0 {
		tolerance = k.Tolerance
	}
	age := k.now().Sub(time.Unix(timestamp, 0))
	if age < 0 {
		age = -age
	}
	if age > tolerance {
		return fmt.Errorf("stripe: signature timestamp outside tolerance")
	}

	expected := Sign(secret, timestamp, payload.Body)
	for _, candidate := range signatures {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}
	return fmt.Errorf("stripe: signature mismatch")
}

// Ping calls GET /v1/balance with the stored api key.
func (k *Kind) Ping(ctx context.Context, credentials core.CredentialSource) error {
	apiKey, ok, err := credentials.GetCredential(ctx, CredentialAPIKey)
	if err != nil {
		return err
	}
	if !ok || apiKey == "" {
		return fmt.Errorf("stripe: api_key credential is missing")
	}
	baseURL := BaseURL
	var client transport.HTTPDoer
	if k != nil {
		client = k.HTTPClient
		if strings.TrimSpace(k.BaseURL) != "" {
			baseURL = k.BaseURL
		}
	}
	rest := transport.NewRESTClient(client, baseURL)
	res, err := rest.Do(ctx, transport.Request{
		Method:  http.MethodGet,
		URL:     "/v1/balance",
		Headers: map[string]string{"Authorization": "Bearer " + apiKey},
	})
	return transport.Classifier{Provider: IntegrationType}.Classify(ctx, res, err, "")
}

func (k *Kind) now() time.Time {
	if k != nil && k.Now != nil {
		return k.Now()
	}
	return time.Now()
}

// Sign computes the hex v1 signature for body at timestamp.
func Sign(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue renders a Stripe-Signature header for body.
func SignatureHeaderValue(secret string, timestamp int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, Sign(secret, timestamp, body))
}

func parseSignatureHeader(header string) (int64, []string, error) {
	var (
		timestamp  int64
		signatures []string
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("stripe: invalid signature timestamp: %w", err)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, value)
			}
		}
	}
	if timestamp == 0 {
		return 0, nil, fmt.Errorf("stripe: signature timestamp is required")
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("stripe: no v1 signatures in header")
	}
	return timestamp, signatures, nil
}

var (
	_ core.Kind            = (*Kind)(nil)
	_ core.WebhookVerifier = (*Kind)(nil)
	_ core.HealthPinger    = (*Kind)(nil)
)
