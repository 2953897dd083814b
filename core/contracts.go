package core

import (
	"context"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// ProviderAdapter is the minimum every provider adapter exposes. Capability
// traits such as a payment or messaging interface embed it.
type ProviderAdapter interface {
	Provider() string
}

type ConnectConfig struct {
	Credentials map[string]string `json:"credentials,omitempty"`
	Settings    map[string]any    `json:"settings,omitempty"`
}

// ConnectPlan is what a kind accepts from a ConnectConfig: the secrets to
// persist and the metadata to keep on the state record.
type ConnectPlan struct {
	Credentials map[string]string
	Metadata    map[string]any
}

type WebhookPayload struct {
	Body    []byte            `json:"body"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Header looks up a header case-insensitively.
func (p WebhookPayload) Header(name string) string {
	name = strings.TrimSpace(name)
	if name == "" || len(p.Headers) == 0 {
		return ""
	}
	if value, ok := p.Headers[name]; ok {
		return strings.TrimSpace(value)
	}
	for key, value := range p.Headers {
		if strings.EqualFold(strings.TrimSpace(key), name) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

type WebhookResult struct {
	Success   bool   `json:"success"`
	EventType string `json:"event_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

// WebhookEvent is a parsed inbound event. Status, when set, is applied to a
// configured integration.
type WebhookEvent struct {
	Type     string
	Status   *IntegrationStatus
	Error    string
	Metadata map[string]any
}

type HealthCheckResult struct {
	Healthy   bool              `json:"healthy"`
	Status    IntegrationStatus `json:"status"`
	Latency   time.Duration     `json:"-"`
	LatencyMs int64             `json:"latency_ms"`
	Error     string            `json:"error,omitempty"`
	CheckedAt time.Time         `json:"checked_at"`
}

// Kind implements one integration type. Lifecycle bookkeeping stays in the
// Controller; a kind only validates, parses and optionally verifies or pings.
type Kind interface {
	Type() string
	Connect(ctx context.Context, cfg ConnectConfig) (ConnectPlan, error)
	ParseWebhook(ctx context.Context, payload WebhookPayload) (WebhookEvent, error)
}

type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, payload WebhookPayload, secret string) error
}

type HealthPinger interface {
	Ping(ctx context.Context, credentials CredentialSource) error
}

// CredentialSource reads credentials by their short name.
type CredentialSource interface {
	GetCredential(ctx context.Context, name string) (string, bool, error)
}

type CredentialSetOptions struct {
	TTL time.Duration
}

type CredentialStore interface {
	Set(ctx context.Context, key string, value string, opts CredentialSetOptions) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
}

type CredentialLister interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type EventHandler func(ctx context.Context, event Event)

// EventEmitter delivers lifecycle events. Emit is fire-and-forget.
type EventEmitter interface {
	Emit(ctx context.Context, event Event)
	Subscribe(handler EventHandler) (unsubscribe func())
}

// EventFilter narrows a listing of recorded events. Zero fields match all.
type EventFilter struct {
	Type            string
	IntegrationType string
	Since           time.Time
	Limit           int
}

// EventReader lists recorded events oldest first.
type EventReader interface {
	List(ctx context.Context, filter EventFilter) ([]Event, error)
}

type StateStore interface {
	LoadState(ctx context.Context, instanceID string) (*IntegrationState, error)
	SaveState(ctx context.Context, instanceID string, state *IntegrationState) error
	DeleteState(ctx context.Context, instanceID string) error
}

const (
	EventConnected     = "integration:connected"
	EventDisconnected  = "integration:disconnected"
	EventStatusChanged = "integration:status_changed"
	EventWebhook       = "integration:webhook"
)

const CredentialWebhookSecret = "webhook_secret"
