package devkit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/webhooks"
)

// ValidateKindConformance connects kind with cfg and parses webhook, and
// checks that an empty config is rejected as a configuration error.
func ValidateKindConformance(
	ctx context.Context,
	kind core.Kind,
	cfg core.ConnectConfig,
	webhook core.WebhookPayload,
) error {
	if kind == nil {
		return fmt.Errorf("devkit: kind is required")
	}
	if strings.TrimSpace(kind.Type()) == "" {
		return fmt.Errorf("devkit: kind type is required")
	}
	plan, err := kind.Connect(ctx, cfg)
	if err != nil {
		return fmt.Errorf("devkit: connect with valid config: %w", err)
	}
	if len(plan.Credentials) == 0 {
		return fmt.Errorf("devkit: connect plan should carry credentials")
	}
	if _, err := kind.Connect(ctx, core.ConnectConfig{}); err == nil {
		return fmt.Errorf("devkit: connect with empty config should fail")
	} else if !core.IsErrorCode(err, core.ErrorCodeInvalidConfig) {
		return fmt.Errorf("devkit: empty config should fail with %s, got %v", core.ErrorCodeInvalidConfig, err)
	}
	event, err := kind.ParseWebhook(ctx, webhook)
	if err != nil {
		return fmt.Errorf("devkit: parse webhook: %w", err)
	}
	if strings.TrimSpace(event.Type) == "" {
		return fmt.Errorf("devkit: parsed webhook should carry a type")
	}
	if _, err := kind.ParseWebhook(ctx, core.WebhookPayload{}); err == nil {
		return fmt.Errorf("devkit: empty webhook should fail to parse")
	}
	return nil
}

// ValidateCredentialStoreConformance exercises set/get/has/delete and, when
// the store lists keys, prefix listing.
func ValidateCredentialStoreConformance(ctx context.Context, store core.CredentialStore) error {
	if store == nil {
		return fmt.Errorf("devkit: credential store is required")
	}
	key := core.CredentialKey("conformance", "devkit", "api_key")
	other := core.CredentialKey("conformance", "other", "api_key")

	if _, ok, err := store.Get(ctx, key); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("devkit: missing credential should report not found")
	}
	if err := store.Set(ctx, key, "first", core.CredentialSetOptions{}); err != nil {
		return err
	}
	if err := store.Set(ctx, key, "second", core.CredentialSetOptions{}); err != nil {
		return err
	}
	if err := store.Set(ctx, other, "other", core.CredentialSetOptions{}); err != nil {
		return err
	}
	value, ok, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok || value != "second" {
		return fmt.Errorf("devkit: expected overwritten credential, got %q (found=%v)", value, ok)
	}
	if has, err := store.Has(ctx, key); err != nil {
		return err
	} else if !has {
		return fmt.Errorf("devkit: expected Has to report stored credential")
	}

	if lister, ok := store.(core.CredentialLister); ok {
		keys, err := lister.ListKeys(ctx, core.CredentialKeyPrefix("conformance", "devkit"))
		if err != nil {
			return err
		}
		if !slices.Equal(keys, []string{key}) {
			return fmt.Errorf("devkit: expected prefix listing [%s], got %v", key, keys)
		}
	}

	if err := store.Delete(ctx, key); err != nil {
		return err
	}
	if err := store.Delete(ctx, key); err != nil {
		return fmt.Errorf("devkit: deleting a missing credential should not fail: %w", err)
	}
	if has, err := store.Has(ctx, key); err != nil {
		return err
	} else if has {
		return fmt.Errorf("devkit: expected credential to be deleted")
	}
	if _, ok, err := store.Get(ctx, other); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("devkit: delete should not touch other integrations")
	}
	return store.Delete(ctx, other)
}

// ValidateStateStoreConformance round-trips a state snapshot.
func ValidateStateStoreConformance(ctx context.Context, store core.StateStore) error {
	if store == nil {
		return fmt.Errorf("devkit: state store is required")
	}
	const instanceID = "devkit-conformance"
	if state, err := store.LoadState(ctx, instanceID); err != nil {
		return err
	} else if state != nil {
		return fmt.Errorf("devkit: missing state should load as nil")
	}

	connectedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	saved := &core.IntegrationState{
		Type:           "devkit",
		Status:         core.StatusActive,
		ConnectedAt:    connectedAt,
		LastActivityAt: connectedAt,
		Metadata:       map[string]any{"account": "acct_1"},
	}
	if err := store.SaveState(ctx, instanceID, saved); err != nil {
		return err
	}
	saved.Status = core.StatusSuspended
	saved.Error = "paused"
	if err := store.SaveState(ctx, instanceID, saved); err != nil {
		return err
	}
	loaded, err := store.LoadState(ctx, instanceID)
	if err != nil {
		return err
	}
	if loaded == nil || loaded.Status != core.StatusSuspended || loaded.Error != "paused" || loaded.Type != "devkit" {
		return fmt.Errorf("devkit: unexpected loaded state %#v", loaded)
	}
	if !loaded.ConnectedAt.Equal(connectedAt) {
		return fmt.Errorf("devkit: connected_at did not round trip")
	}
	if fmt.Sprint(loaded.Metadata["account"]) != "acct_1" {
		return fmt.Errorf("devkit: metadata did not round trip")
	}

	if err := store.DeleteState(ctx, instanceID); err != nil {
		return err
	}
	if state, err := store.LoadState(ctx, instanceID); err != nil {
		return err
	} else if state != nil {
		return fmt.Errorf("devkit: deleted state should load as nil")
	}
	return nil
}

// ValidateDeliveryLedgerConformance walks a delivery through
// pending → retry_ready → pending (claimed) → processed.
func ValidateDeliveryLedgerConformance(
	ctx context.Context,
	ledger webhooks.DeliveryLedger,
	integrationType string,
	deliveryID string,
) error {
	if ledger == nil {
		return fmt.Errorf("devkit: delivery ledger is required")
	}
	if _, err := ledger.Get(ctx, integrationType, deliveryID); !errors.Is(err, webhooks.ErrDeliveryNotFound) {
		return fmt.Errorf("devkit: expected ErrDeliveryNotFound before reserve, got %v", err)
	}
	record, existed, err := ledger.Reserve(ctx, integrationType, deliveryID, []byte(`{}`))
	if err != nil {
		return err
	}
	if existed || record.Status != webhooks.DeliveryStatusPending || record.Attempts != 1 {
		return fmt.Errorf("devkit: first reserve should create a pending record, got %#v (existed=%v)", record, existed)
	}
	if _, existed, err := ledger.Reserve(ctx, integrationType, deliveryID, nil); err != nil {
		return err
	} else if !existed {
		return fmt.Errorf("devkit: second reserve should find the existing record")
	}

	next := time.Now().UTC().Add(time.Minute)
	if err := ledger.MarkRetry(ctx, integrationType, deliveryID, errors.New("handler failed"), next); err != nil {
		return err
	}
	loaded, err := ledger.Get(ctx, integrationType, deliveryID)
	if err != nil {
		return err
	}
	if loaded.Status != webhooks.DeliveryStatusRetryReady || loaded.Attempts != 2 || loaded.LastError != "handler failed" {
		return fmt.Errorf("devkit: unexpected retry record %#v", loaded)
	}
	if loaded.NextAttemptAt == nil {
		return fmt.Errorf("devkit: retry record should carry next_attempt_at")
	}

	claimed, existed, err := ledger.Reserve(ctx, integrationType, deliveryID, nil)
	if err != nil {
		return err
	}
	if existed || claimed.Status != webhooks.DeliveryStatusPending || claimed.Attempts != 2 {
		return fmt.Errorf("devkit: redelivery should claim the retry_ready record, got %#v (existed=%v)", claimed, existed)
	}
	if again, existed, err := ledger.Reserve(ctx, integrationType, deliveryID, nil); err != nil {
		return err
	} else if !existed || again.Status != webhooks.DeliveryStatusPending {
		return fmt.Errorf("devkit: a claimed delivery should not be claimed twice, got %#v (existed=%v)", again, existed)
	}

	if err := ledger.MarkProcessed(ctx, integrationType, deliveryID); err != nil {
		return err
	}
	loaded, err = ledger.Get(ctx, integrationType, deliveryID)
	if err != nil {
		return err
	}
	if loaded.Status != webhooks.DeliveryStatusProcessed || loaded.NextAttemptAt != nil {
		return fmt.Errorf("devkit: expected processed status, got %#v", loaded)
	}
	return nil
}
