package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// BasicKind is a configurable kind for integrations without provider
// specific rules. It requires the named credentials and parses JSON webhooks
// carrying a "type" field.
type BasicKind struct {
	Name                string
	RequiredCredentials []string
	// StatusByEvent maps webhook event types to the status they apply.
	StatusByEvent map[string]IntegrationStatus
}

func (k *BasicKind) Type() string {
	if k == nil {
		return ""
	}
	return strings.TrimSpace(k.Name)
}

func (k *BasicKind) Connect(_ context.Context, cfg ConnectConfig) (ConnectPlan, error) {
	if k == nil {
		return ConnectPlan{}, NewIntegrationError("", ErrorCodeInvalidConfig, "integration kind is nil", nil)
	}
	for _, name := range k.RequiredCredentials {
		if strings.TrimSpace(cfg.Credentials[name]) == "" {
			return ConnectPlan{}, NewIntegrationError(k.Type(), ErrorCodeInvalidConfig, fmt.Sprintf("%s is required", name), nil)
		}
	}
	plan := ConnectPlan{Credentials: map[string]string{}}
	for name, value := range cfg.Credentials {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		plan.Credentials[name] = value
	}
	if len(cfg.Settings) > 0 {
		plan.Metadata = cloneFields(cfg.Settings)
	}
	return plan, nil
}

func (k *BasicKind) ParseWebhook(_ context.Context, payload WebhookPayload) (WebhookEvent, error) {
	var body struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload.Body, &body); err != nil {
		return WebhookEvent{}, fmt.Errorf("core: decode webhook: %w", err)
	}
	eventType := strings.TrimSpace(body.Type)
	if eventType == "" {
		return WebhookEvent{}, fmt.Errorf("core: webhook type is required")
	}
	event := WebhookEvent{Type: eventType}
	if k != nil {
		if status, ok := k.StatusByEvent[eventType]; ok {
			event.Status = &status
		}
	}
	return event, nil
}
