package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:integration_credentials,alias:icr"`

	ID              string     `bun:"id,pk"`
	CredentialKey   string     `bun:"credential_key,notnull"`
	InstanceID      string     `bun:"instance_id,notnull"`
	IntegrationType string     `bun:"integration_type,notnull"`
	Name            string     `bun:"name,notnull"`
	Value           string     `bun:"value,notnull"`
	ExpiresAt       *time.Time `bun:"expires_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// splitCredentialKey reads "<instance>:<type>:<name>". Keys outside that
// shape are stored with empty parts.
func splitCredentialKey(key string) (string, string, string) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return "", "", ""
	}
	return parts[0], parts[1], parts[2]
}

func (r *credentialRecord) expired(now time.Time) bool {
	return r != nil && r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

type stateRecord struct {
	bun.BaseModel `bun:"table:integration_states,alias:ist"`

	ID              string         `bun:"id,pk"`
	InstanceID      string         `bun:"instance_id,notnull"`
	IntegrationType string         `bun:"integration_type,notnull"`
	Status          string         `bun:"status,notnull"`
	Error           string         `bun:"error"`
	ConnectedAt     time.Time      `bun:"connected_at,notnull"`
	LastActivityAt  time.Time      `bun:"last_activity_at,notnull"`
	Metadata        map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *stateRecord) toDomain() *core.IntegrationState {
	if r == nil {
		return nil
	}
	state := &core.IntegrationState{
		Type:           r.IntegrationType,
		Status:         core.IntegrationStatus(r.Status),
		ConnectedAt:    r.ConnectedAt.UTC(),
		LastActivityAt: r.LastActivityAt.UTC(),
		Error:          r.Error,
	}
	if len(r.Metadata) > 0 {
		state.Metadata = copyAnyMap(r.Metadata)
	}
	return state
}

type eventRecord struct {
	bun.BaseModel `bun:"table:integration_events,alias:iev"`

	ID              string         `bun:"id,pk"`
	EventType       string         `bun:"event_type,notnull"`
	IntegrationType string         `bun:"integration_type,notnull"`
	Payload         map[string]any `bun:"payload,type:jsonb,notnull"`
	OccurredAt      time.Time      `bun:"occurred_at,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func (r *eventRecord) toDomain() core.Event {
	if r == nil {
		return core.Event{}
	}
	return core.Event{
		ID:         r.ID,
		Type:       r.EventType,
		Payload:    copyAnyMap(r.Payload),
		OccurredAt: r.OccurredAt.UTC(),
	}
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:integration_webhook_deliveries,alias:iwd"`

	ID              string     `bun:"id,pk"`
	IntegrationType string     `bun:"integration_type,notnull"`
	DeliveryID      string     `bun:"delivery_id,notnull"`
	Status          string     `bun:"status,notnull"`
	Attempts        int        `bun:"attempts,notnull"`
	LastError       string     `bun:"last_error"`
	NextAttemptAt   *time.Time `bun:"next_attempt_at,nullzero"`
	Payload         []byte     `bun:"payload"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *webhookDeliveryRecord) toDomain() webhooks.DeliveryRecord {
	if r == nil {
		return webhooks.DeliveryRecord{}
	}
	result := webhooks.DeliveryRecord{
		ID:              r.ID,
		IntegrationType: r.IntegrationType,
		DeliveryID:      r.DeliveryID,
		Status:          r.Status,
		Attempts:        r.Attempts,
		LastError:       r.LastError,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
	if r.NextAttemptAt != nil {
		value := r.NextAttemptAt.UTC()
		result.NextAttemptAt = &value
	}
	return result
}

func copyAnyMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		out[key] = value
	}
	return out
}
