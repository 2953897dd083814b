package command

import (
	"strings"

	"github.com/goliatone/go-integrations/core"
)

const (
	TypeConnect          = "integrations.command.connect"
	TypeDisconnect       = "integrations.command.disconnect"
	TypeSetStatus        = "integrations.command.status.set"
	TypeRefresh          = "integrations.command.refresh"
	TypeUpdateState      = "integrations.command.state.update"
	TypeStoreCredential  = "integrations.command.credential.store"
	TypeDeleteCredential = "integrations.command.credential.delete"
	TypeHandleWebhook    = "integrations.command.webhook.handle"
)

// Target addresses one integration instance.
type Target struct {
	IntegrationType string
	InstanceID      string
}

func (t Target) validate() error {
	if strings.TrimSpace(t.IntegrationType) == "" {
		return commandValidationError("integration_type", "integration type is required")
	}
	if strings.TrimSpace(t.InstanceID) == "" {
		return commandValidationError("instance_id", "instance id is required")
	}
	return nil
}

type ConnectMessage struct {
	Target
	Config core.ConnectConfig
}

func (ConnectMessage) Type() string { return TypeConnect }

func (m ConnectMessage) Validate() error {
	return m.Target.validate()
}

type DisconnectMessage struct {
	Target
}

func (DisconnectMessage) Type() string { return TypeDisconnect }

func (m DisconnectMessage) Validate() error {
	return m.Target.validate()
}

// DisconnectResult reports whether a configured integration was torn down.
type DisconnectResult struct {
	Disconnected bool `json:"disconnected"`
}

type SetStatusMessage struct {
	Target
	Status string
	Error  string
}

func (SetStatusMessage) Type() string { return TypeSetStatus }

func (m SetStatusMessage) Validate() error {
	if err := m.Target.validate(); err != nil {
		return err
	}
	if _, err := core.ParseIntegrationStatus(m.Status); err != nil {
		return commandWrapValidation(err, "command: invalid status")
	}
	return nil
}

type RefreshMessage struct {
	Target
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	return m.Target.validate()
}

type UpdateStateMessage struct {
	Target
	Patch core.StatePatch
}

func (UpdateStateMessage) Type() string { return TypeUpdateState }

func (m UpdateStateMessage) Validate() error {
	if err := m.Target.validate(); err != nil {
		return err
	}
	if m.Patch.Status != nil && !m.Patch.Status.Valid() {
		return commandValidationError("status", "unknown integration status")
	}
	return nil
}

type StoreCredentialMessage struct {
	Target
	Name  string
	Value string
}

func (StoreCredentialMessage) Type() string { return TypeStoreCredential }

func (m StoreCredentialMessage) Validate() error {
	if err := m.Target.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Name) == "" {
		return commandValidationError("name", "credential name is required")
	}
	return nil
}

type DeleteCredentialMessage struct {
	Target
	Name string
}

func (DeleteCredentialMessage) Type() string { return TypeDeleteCredential }

func (m DeleteCredentialMessage) Validate() error {
	if err := m.Target.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(m.Name) == "" {
		return commandValidationError("name", "credential name is required")
	}
	return nil
}

type HandleWebhookMessage struct {
	Target
	Payload core.WebhookPayload
}

func (HandleWebhookMessage) Type() string { return TypeHandleWebhook }

func (m HandleWebhookMessage) Validate() error {
	return m.Target.validate()
}
