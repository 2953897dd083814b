package query

import (
	"strings"
	"time"
)

const (
	TypeGetState      = "integrations.query.state.get"
	TypeHealthCheck   = "integrations.query.health.check"
	TypeGetCredential = "integrations.query.credential.get"
	TypeListKinds     = "integrations.query.kinds.list"
	TypeListEvents    = "integrations.query.events.list"
)

const maxEventListLimit = 500

// Target addresses one integration instance.
type Target struct {
	IntegrationType string
	InstanceID      string
}

func (t Target) validate() error {
	if strings.TrimSpace(t.IntegrationType) == "" {
		return queryValidationError("integration_type", "integration type is required")
	}
	if strings.TrimSpace(t.InstanceID) == "" {
		return queryValidationError("instance_id", "instance id is required")
	}
	return nil
}

type GetStateMessage struct {
	Target
}

func (GetStateMessage) Type() string { return TypeGetState }

func (m GetStateMessage) Validate() error {
	return m.Target.validate()
}

type HealthCheckMessage struct {
	Target
}

func (HealthCheckMessage) Type() string { return TypeHealthCheck }

func (m HealthCheckMessage) Validate() error {
	return m.Target.validate()
}

type GetCredentialMessage struct {
	Target
	Name string
}

func (GetCredentialMessage) Type() string { return TypeGetCredential }

func (m GetCredentialMessage) Validate() error {
	if err := m.Target.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Name) == "" {
		return queryValidationError("name", "credential name is required")
	}
	return nil
}

// CredentialView never carries the secret itself.
type CredentialView struct {
	Name    string `json:"name"`
	Present bool   `json:"present"`
	Value   string `json:"value,omitempty"`
}

type ListKindsMessage struct{}

func (ListKindsMessage) Type() string { return TypeListKinds }

func (ListKindsMessage) Validate() error { return nil }

type KindInfo struct {
	Type               string `json:"type"`
	VerifiesWebhooks   bool   `json:"verifies_webhooks"`
	SupportsHealthPing bool   `json:"supports_health_ping"`
}

type ListEventsMessage struct {
	EventType       string
	IntegrationType string
	Since           time.Time
	Limit           int
}

func (ListEventsMessage) Type() string { return TypeListEvents }

func (m ListEventsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Limit > maxEventListLimit {
		return queryInvalidInputError("query: limit must be <= 500")
	}
	return nil
}
