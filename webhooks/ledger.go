package webhooks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryDeliveryLedger keeps delivery records in process. It suits tests and
// single-replica deployments.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]DeliveryRecord
	Now     func() time.Time
	// ClaimLease bounds how long a pending claim blocks redeliveries.
	// Zero uses DefaultClaimLease.
	ClaimLease time.Duration
}

// ErrDeliveryNotFound is returned by ledgers when no record exists.
var ErrDeliveryNotFound = errors.New("webhooks: delivery not found")

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{records: map[string]DeliveryRecord{}}
}

func (l *MemoryDeliveryLedger) Reserve(_ context.Context, integrationType string, deliveryID string, _ []byte) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: memory ledger is nil")
	}
	key, err := ledgerKey(integrationType, deliveryID)
	if err != nil {
		return DeliveryRecord{}, false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.records == nil {
		l.records = map[string]DeliveryRecord{}
	}
	now := l.now()
	if record, ok := l.records[key]; ok {
		if !claimable(record, now, l.ClaimLease) {
			return record, true, nil
		}
		record.Status = DeliveryStatusPending
		record.UpdatedAt = now
		l.records[key] = record
		return record, false, nil
	}
	record := DeliveryRecord{
		ID:              key,
		IntegrationType: strings.TrimSpace(integrationType),
		DeliveryID:      strings.TrimSpace(deliveryID),
		Status:          DeliveryStatusPending,
		Attempts:        1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	l.records[key] = record
	return record, false, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, integrationType string, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("webhooks: memory ledger is nil")
	}
	key, err := ledgerKey(integrationType, deliveryID)
	if err != nil {
		return DeliveryRecord{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("%w: %s", ErrDeliveryNotFound, deliveryID)
	}
	return record, nil
}

func (l *MemoryDeliveryLedger) MarkProcessed(_ context.Context, integrationType string, deliveryID string) error {
	return l.update(integrationType, deliveryID, func(record *DeliveryRecord) {
		record.Status = DeliveryStatusProcessed
		record.NextAttemptAt = nil
		record.LastError = ""
	})
}

// MarkRetry leaves the record retry_ready and counts the next attempt.
func (l *MemoryDeliveryLedger) MarkRetry(_ context.Context, integrationType string, deliveryID string, cause error, nextAttemptAt time.Time) error {
	return l.update(integrationType, deliveryID, func(record *DeliveryRecord) {
		next := nextAttemptAt.UTC()
		record.Status = DeliveryStatusRetryReady
		record.Attempts++
		record.NextAttemptAt = &next
		record.LastError = causeMessage(cause)
	})
}

func (l *MemoryDeliveryLedger) MarkDead(_ context.Context, integrationType string, deliveryID string, cause error) error {
	return l.update(integrationType, deliveryID, func(record *DeliveryRecord) {
		record.Status = DeliveryStatusDead
		record.NextAttemptAt = nil
		record.LastError = causeMessage(cause)
	})
}

func (l *MemoryDeliveryLedger) update(integrationType string, deliveryID string, mutate func(*DeliveryRecord)) error {
	if l == nil {
		return fmt.Errorf("webhooks: memory ledger is nil")
	}
	key, err := ledgerKey(integrationType, deliveryID)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeliveryNotFound, deliveryID)
	}
	mutate(&record)
	record.UpdatedAt = l.now()
	l.records[key] = record
	return nil
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// claimable reports whether a stored delivery may be handed to a new
// caller: it waits for redelivery, or its pending claim outlived the lease.
func claimable(record DeliveryRecord, now time.Time, lease time.Duration) bool {
	switch record.Status {
	case DeliveryStatusRetryReady:
		return true
	case DeliveryStatusPending:
		if lease <= 0 {
			lease = DefaultClaimLease
		}
		return !now.Before(record.UpdatedAt.Add(lease))
	default:
		return false
	}
}

func ledgerKey(integrationType string, deliveryID string) (string, error) {
	integrationType = strings.TrimSpace(integrationType)
	deliveryID = strings.TrimSpace(deliveryID)
	if integrationType == "" || deliveryID == "" {
		return "", fmt.Errorf("webhooks: integration type and delivery id are required")
	}
	return integrationType + ":" + deliveryID, nil
}

func causeMessage(cause error) string {
	if cause == nil {
		return ""
	}
	return strings.TrimPrefix(cause.Error(), "webhooks: ")
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
