package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/transport"
)

const (
	IntegrationType = "twilio"
	BaseURL         = "https://api.twilio.com"
	APIVersion      = "2010-04-01"

	CredentialAccountSID = "account_sid"
	CredentialAuthToken  = "auth_token"

	SignatureHeader = "X-Twilio-Signature"
)

// Kind validates Twilio connections and parses form encoded status
// callbacks.
type Kind struct {
	// WebhookURL is the public callback URL Twilio signs. Signature
	// verification fails without it.
	WebhookURL string
	HTTPClient transport.HTTPDoer
	BaseURL    string
}

func NewKind() *Kind {
	return &Kind{BaseURL: BaseURL}
}

func (k *Kind) Type() string {
	return IntegrationType
}

func (k *Kind) Connect(_ context.Context, cfg core.ConnectConfig) (core.ConnectPlan, error) {
	accountSID := strings.TrimSpace(cfg.Credentials[CredentialAccountSID])
	authToken := strings.TrimSpace(cfg.Credentials[CredentialAuthToken])
	switch {
	case accountSID == "":
		return core.ConnectPlan{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidConfig, "account_sid is required", nil)
	case !strings.HasPrefix(accountSID, "AC"):
		return core.ConnectPlan{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidConfig, "account_sid must start with AC", nil)
	case authToken == "":
		return core.ConnectPlan{}, core.NewIntegrationError(IntegrationType, core.ErrorCodeInvalidConfig, "auth_token is required", nil)
	}

	plan := core.ConnectPlan{
		Credentials: map[string]string{
			CredentialAccountSID: accountSID,
			CredentialAuthToken:  authToken,
		},
		Metadata: map[string]any{"account_sid": accountSID},
	}
	// Twilio signs callbacks with the auth token; storing it as the webhook
	// secret turns verification on and requires WebhookURL.
	if secret := strings.TrimSpace(cfg.Credentials[core.CredentialWebhookSecret]); secret != "" {
		plan.Credentials[core.CredentialWebhookSecret] = secret
	}
	if from, ok := cfg.Settings["from"].(string); ok && strings.TrimSpace(from) != "" {
		plan.Metadata["from"] = strings.TrimSpace(from)
	}
	return plan, nil
}

// ParseWebhook reads message and call status callbacks. Event types are
// "message.<status>" or "call.<status>".
func (k *Kind) ParseWebhook(_ context.Context, payload core.WebhookPayload) (core.WebhookEvent, error) {
	values, err := url.ParseQuery(string(payload.Body))
	if err != nil {
		return core.WebhookEvent{}, fmt.Errorf("twilio: decode callback: %w", err)
	}

	var event core.WebhookEvent
	switch {
	case values.Get("MessageStatus") != "":
		event.Type = "message." + strings.ToLower(strings.TrimSpace(values.Get("MessageStatus")))
		event.Metadata = map[string]any{"last_message_sid": strings.TrimSpace(values.Get("MessageSid"))}
	case values.Get("CallStatus") != "":
		event.Type = "call." + strings.ToLower(strings.TrimSpace(values.Get("CallStatus")))
		event.Metadata = map[string]any{"last_call_sid": strings.TrimSpace(values.Get("CallSid"))}
	default:
		return core.WebhookEvent{}, fmt.Errorf("twilio: callback has no MessageStatus or CallStatus")
	}
	if code := strings.TrimSpace(values.Get("ErrorCode")); code != "" {
		event.Metadata["last_error_code"] = code
	}
	return event, nil
}

// VerifyWebhook checks X-Twilio-Signature: base64 HMAC-SHA1 over the
// callback URL followed by the sorted form parameters.
func (k *Kind) VerifyWebhook(_ context.Context, payload core.WebhookPayload, secret string) error {
	if k == nil || strings.TrimSpace(k.WebhookURL) == "" {
		return fmt.Errorf("twilio: webhook url is required for signature verification")
	}
	signature := payload.Header(SignatureHeader)
	if signature == "" {
		return fmt.Errorf("twilio: missing %s header", SignatureHeader)
	}
	values, err := url.ParseQuery(string(payload.Body))
	if err != nil {
		return fmt.Errorf("twilio: decode callback: %w", err)
	}
	expected := Sign(secret, k.WebhookURL, values)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("twilio: signature mismatch")
	}
	return nil
}

// Ping fetches the account resource.
func (k *Kind) Ping(ctx context.Context, credentials core.CredentialSource) error {
	accountSID, authToken, err := loadCredentials(ctx, credentials)
	if err != nil {
		return err
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
		URL:     fmt.Sprintf("/%s/Accounts/%s.json", APIVersion, url.PathEscape(accountSID)),
		Headers: map[string]string{"Authorization": basicAuth(accountSID, authToken)},
	})
	return transport.Classifier{Provider: IntegrationType}.Classify(ctx, res, err, "")
}

// Sign computes the X-Twilio-Signature value for a form callback.
func Sign(authToken string, callbackURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(callbackURL)
	for _, key := range keys {
		for _, value := range params[key] {
			b.WriteString(key)
			b.WriteString(value)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func loadCredentials(ctx context.Context, credentials core.CredentialSource) (string, string, error) {
	if credentials == nil {
		return "", "", core.NewIntegrationError(IntegrationType, core.ErrorCodeNotConfigured, core.ErrNotConfigured.Message, nil)
	}
	accountSID, ok, err := credentials.GetCredential(ctx, CredentialAccountSID)
	if err != nil {
		return "", "", err
	}
	if !ok || accountSID == "" {
		return "", "", core.NewIntegrationError(IntegrationType, core.ErrorCodeNotConfigured, "account_sid credential is missing", nil)
	}
	authToken, ok, err := credentials.GetCredential(ctx, CredentialAuthToken)
	if err != nil {
		return "", "", err
	}
	if !ok || authToken == "" {
		return "", "", core.NewIntegrationError(IntegrationType, core.ErrorCodeNotConfigured, "auth_token credential is missing", nil)
	}
	return accountSID, authToken, nil
}

func basicAuth(username string, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

var (
	_ core.Kind            = (*Kind)(nil)
	_ core.WebhookVerifier = (*Kind)(nil)
	_ core.HealthPinger    = (*Kind)(nil)
)
