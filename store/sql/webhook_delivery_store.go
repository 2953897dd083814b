package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/webhooks"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WebhookDeliveryStore is a DeliveryLedger backed by
// integration_webhook_deliveries. The (integration_type, delivery_id) unique
// index makes Reserve safe across replicas.
type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
	Now  func() time.Time
	// ClaimLease bounds how long a pending claim blocks redeliveries.
	// Zero uses webhooks.DefaultClaimLease.
	ClaimLease time.Duration
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{db: db, repo: repo}, nil
}

func (s *WebhookDeliveryStore) Reserve(
	ctx context.Context,
	integrationType string,
	deliveryID string,
	payload []byte,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil || s.repo == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	integrationType = strings.TrimSpace(integrationType)
	deliveryID = strings.TrimSpace(deliveryID)
	if integrationType == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: integration type and delivery id are required")
	}

	now := s.now()
	record := &webhookDeliveryRecord{
		ID:              uuid.NewString(),
		IntegrationType: integrationType,
		DeliveryID:      deliveryID,
		Status:          webhooks.DeliveryStatusPending,
		Attempts:        1,
		Payload:         append([]byte(nil), payload...),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := s.repo.Create(ctx, record); err != nil {
		if isUniqueViolation(err) {
			return s.claim(ctx, integrationType, deliveryID, now)
		}
		return webhooks.DeliveryRecord{}, false, err
	}
	return record.toDomain(), false, nil
}

// claim moves a retry_ready delivery, or a pending one whose lease expired,
// back to pending with a single conditional update. Only the caller whose
// update matched the row owns the delivery.
func (s *WebhookDeliveryStore) claim(
	ctx context.Context,
	integrationType string,
	deliveryID string,
	now time.Time,
) (webhooks.DeliveryRecord, bool, error) {
	lease := s.ClaimLease
	if lease <= 0 {
		lease = webhooks.DefaultClaimLease
	}
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusPending).
		Set("updated_at = ?", now).
		Where("integration_type = ?", integrationType).
		Where("delivery_id = ?", deliveryID).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("status = ?", webhooks.DeliveryStatusRetryReady).
				WhereOr("status = ? AND updated_at <= ?", webhooks.DeliveryStatusPending, now.Add(-lease))
		}).
		Exec(ctx)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	claimed := int64(0)
	if res != nil {
		if affected, affectedErr := res.RowsAffected(); affectedErr == nil {
			claimed = affected
		}
	}
	existing, err := s.Get(ctx, integrationType, deliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	return existing, claimed == 0, nil
}

func (s *WebhookDeliveryStore) Get(
	ctx context.Context,
	integrationType string,
	deliveryID string,
) (webhooks.DeliveryRecord, error) {
	record, err := s.find(ctx, integrationType, deliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookDeliveryStore) MarkProcessed(ctx context.Context, integrationType string, deliveryID string) error {
	return s.update(ctx, integrationType, deliveryID, func(query *bun.UpdateQuery, _ *webhookDeliveryRecord) *bun.UpdateQuery {
		return query.
			Set("status = ?", webhooks.DeliveryStatusProcessed).
			Set("next_attempt_at = NULL").
			Set("last_error = ?", "")
	})
}

func (s *WebhookDeliveryStore) MarkRetry(
	ctx context.Context,
	integrationType string,
	deliveryID string,
	cause error,
	nextAttemptAt time.Time,
) error {
	return s.update(ctx, integrationType, deliveryID, func(query *bun.UpdateQuery, record *webhookDeliveryRecord) *bun.UpdateQuery {
		return query.
			Set("status = ?", webhooks.DeliveryStatusRetryReady).
			Set("attempts = ?", record.Attempts+1).
			Set("next_attempt_at = ?", nextAttemptAt.UTC()).
			Set("last_error = ?", causeMessage(cause))
	})
}

func (s *WebhookDeliveryStore) MarkDead(ctx context.Context, integrationType string, deliveryID string, cause error) error {
	return s.update(ctx, integrationType, deliveryID, func(query *bun.UpdateQuery, _ *webhookDeliveryRecord) *bun.UpdateQuery {
		return query.
			Set("status = ?", webhooks.DeliveryStatusDead).
			Set("next_attempt_at = NULL").
			Set("last_error = ?", causeMessage(cause))
	})
}

func (s *WebhookDeliveryStore) update(
	ctx context.Context,
	integrationType string,
	deliveryID string,
	apply func(*bun.UpdateQuery, *webhookDeliveryRecord) *bun.UpdateQuery,
) error {
	record, err := s.find(ctx, integrationType, deliveryID)
	if err != nil {
		return err
	}
	query := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("updated_at = ?", s.now()).
		Where("id = ?", record.ID)
	_, err = apply(query, record).Exec(ctx)
	return err
}

func (s *WebhookDeliveryStore) find(ctx context.Context, integrationType string, deliveryID string) (*webhookDeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.integration_type = ?", strings.TrimSpace(integrationType)).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s/%s", webhooks.ErrDeliveryNotFound, integrationType, deliveryID)
		}
		return nil, err
	}
	return record, nil
}

func (s *WebhookDeliveryStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func causeMessage(cause error) string {
	if cause == nil {
		return ""
	}
	return strings.TrimPrefix(cause.Error(), "webhooks: ")
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
