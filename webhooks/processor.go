package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

const (
	resultInvalidSignature  = "Invalid signature"
	resultMissingDeliveryID = "Missing delivery id"
	resultInFlight          = "Delivery in progress"
)

type DeliveryRecord struct {
	ID              string
	IntegrationType string
	DeliveryID      string
	Status          string
	Attempts        int
	LastError       string
	NextAttemptAt   *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// DefaultClaimLease is how long a pending delivery stays claimed before a
// redelivery may take it over.
const DefaultClaimLease = 5 * time.Minute

// DeliveryLedger records which deliveries were seen. Reserve claims the
// delivery atomically: existed=false means the caller owns it (a new id, a
// retry_ready record, or a pending claim older than the lease) and the record
// is now pending. Otherwise existed=true and the stored record is returned.
type DeliveryLedger interface {
	Reserve(ctx context.Context, integrationType string, deliveryID string, payload []byte) (DeliveryRecord, bool, error)
	Get(ctx context.Context, integrationType string, deliveryID string) (DeliveryRecord, error)
	MarkProcessed(ctx context.Context, integrationType string, deliveryID string) error
	MarkRetry(ctx context.Context, integrationType string, deliveryID string, cause error, nextAttemptAt time.Time) error
	MarkDead(ctx context.Context, integrationType string, deliveryID string, cause error) error
}

type Verifier interface {
	Verify(ctx context.Context, payload core.WebhookPayload) error
}

type DeliveryIDExtractor func(payload core.WebhookPayload) (string, error)

// Handler is satisfied by *core.Controller.
type Handler interface {
	Type() string
	HandleWebhook(ctx context.Context, payload core.WebhookPayload) core.WebhookResult
}

type Result struct {
	core.WebhookResult
	StatusCode int
	DeliveryID string
	Deduped    bool
	Attempts   int
}

type Processor struct {
	Verifier  Verifier
	Ledger    DeliveryLedger
	Handler   Handler
	ExtractID DeliveryIDExtractor
	// Retry schedules redelivery windows for unsuccessful results. After
	// Retry.MaxAttempts the delivery is marked dead.
	Retry  core.RetryOptions
	Now    func() time.Time
	Logger glog.Logger
}

func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler Handler) *Processor {
	return &Processor{
		Verifier:  verifier,
		Ledger:    ledger,
		Handler:   handler,
		ExtractID: DefaultDeliveryIDExtractor,
		Retry: core.RetryOptions{
			MaxAttempts: 5,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Now: func() time.Time {
			return time.Now().UTC()
		},
		Logger: glog.Nop(),
	}
}

// Process verifies, dedupes and hands the payload to the handler. Payload
// problems never produce an error; only ledger failures do.
func (p *Processor) Process(ctx context.Context, payload core.WebhookPayload) (Result, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return Result{}, fmt.Errorf("webhooks: processor requires handler and ledger")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	integrationType := strings.TrimSpace(p.Handler.Type())
	logger := glog.Ensure(p.Logger)

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, payload); err != nil {
			logger.Info("webhook rejected", "integration_type", integrationType, "error", err.Error())
			return Result{
				WebhookResult: core.WebhookResult{Error: resultInvalidSignature},
				StatusCode:    http.StatusUnauthorized,
			}, nil
		}
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultDeliveryIDExtractor
	}
	deliveryID, err := extractor(payload)
	deliveryID = strings.TrimSpace(deliveryID)
	if err != nil || deliveryID == "" {
		return Result{
			WebhookResult: core.WebhookResult{Error: resultMissingDeliveryID},
			StatusCode:    http.StatusBadRequest,
		}, nil
	}

	record, existed, err := p.Ledger.Reserve(ctx, integrationType, deliveryID, payload.Body)
	if err != nil {
		return Result{}, err
	}
	if existed && record.Status == DeliveryStatusPending {
		return Result{
			WebhookResult: core.WebhookResult{Error: resultInFlight},
			StatusCode:    http.StatusConflict,
			DeliveryID:    deliveryID,
			Deduped:       true,
			Attempts:      record.Attempts,
		}, nil
	}
	if existed {
		return Result{
			WebhookResult: core.WebhookResult{Success: record.Status != DeliveryStatusDead, Error: record.LastError},
			StatusCode:    http.StatusOK,
			DeliveryID:    deliveryID,
			Deduped:       true,
			Attempts:      record.Attempts,
		}, nil
	}

	handled := p.Handler.HandleWebhook(ctx, payload)
	result := Result{
		WebhookResult: handled,
		StatusCode:    http.StatusOK,
		DeliveryID:    deliveryID,
		Attempts:      max(record.Attempts, 1),
	}
	if handled.Success {
		if err := p.Ledger.MarkProcessed(ctx, integrationType, deliveryID); err != nil {
			return Result{}, err
		}
		return result, nil
	}

	result.StatusCode = http.StatusBadRequest
	cause := fmt.Errorf("webhooks: %s", handled.Error)
	if result.Attempts >= p.maxAttempts() {
		if err := p.Ledger.MarkDead(ctx, integrationType, deliveryID, cause); err != nil {
			return Result{}, err
		}
		logger.Error("webhook delivery dead", "integration_type", integrationType, "delivery_id", deliveryID, "attempts", result.Attempts)
		return result, nil
	}
	nextAttemptAt := p.now().Add(p.Retry.Delay(result.Attempts))
	if err := p.Ledger.MarkRetry(ctx, integrationType, deliveryID, cause, nextAttemptAt); err != nil {
		return Result{}, err
	}
	return result, nil
}

// DefaultDeliveryIDExtractor reads the common delivery id headers.
func DefaultDeliveryIDExtractor(payload core.WebhookPayload) (string, error) {
	return HeaderDeliveryIDExtractor(
		"X-Delivery-Id",
		"Stripe-Event-Id",
		"I-Twilio-Idempotency-Token",
		"X-Request-Id",
	)(payload)
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.Retry.MaxAttempts > 0 {
		return p.Retry.MaxAttempts
	}
	return core.DefaultRetryMaxAttempts
}
