package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore keeps namespaced credentials in integration_credentials.
// Expired rows read as absent and are removed on the next read.
type CredentialStore struct {
	db   *bun.DB
	repo repository.Repository[*credentialRecord]
	Now  func() time.Time
}

func NewCredentialStore(db *bun.DB) (*CredentialStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid credential repository wiring: %w", err)
		}
	}
	return &CredentialStore{db: db, repo: repo}, nil
}

func (s *CredentialStore) Set(ctx context.Context, key string, value string, opts core.CredentialSetOptions) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("sqlstore: credential key is required")
	}
	now := s.now()
	var expiresAt *time.Time
	if opts.TTL > 0 {
		value := now.Add(opts.TTL)
		expiresAt = &value
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findCredentialTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if record == nil {
			instanceID, integrationType, name := splitCredentialKey(key)
			_, createErr := s.repo.CreateTx(ctx, tx, &credentialRecord{
				ID:              uuid.NewString(),
				CredentialKey:   key,
				InstanceID:      instanceID,
				IntegrationType: integrationType,
				Name:            name,
				Value:           value,
				ExpiresAt:       expiresAt,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
			return createErr
		}
		record.Value = value
		record.ExpiresAt = expiresAt
		record.UpdatedAt = now
		_, updateErr := tx.NewUpdate().
			Model(record).
			Column("value", "expires_at", "updated_at").
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *CredentialStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.repo == nil {
		return "", false, fmt.Errorf("sqlstore: credential store is not configured")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, nil
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("credential_key", "=", key),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return "", false, err
	}
	if len(records) == 0 {
		return "", false, nil
	}
	record := records[0]
	if record.expired(s.now()) {
		if err := s.Delete(ctx, key); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return record.Value, true, nil
}

func (s *CredentialStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: credential store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*credentialRecord)(nil)).
		Where("credential_key = ?", strings.TrimSpace(key)).
		Exec(ctx)
	return err
}

func (s *CredentialStore) Has(ctx context.Context, key string) (bool, error) {
	_, ok, err := s.Get(ctx, key)
	return ok, err
}

// ListKeys returns unexpired keys starting with prefix, sorted.
func (s *CredentialStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: credential store is not configured")
	}
	var records []*credentialRecord
	query := s.db.NewSelect().Model(&records)
	if prefix != "" {
		// LIKE narrows the scan; HasPrefix below is the exact match.
		query = query.Where("?TableAlias.credential_key LIKE ?", prefix+"%")
	}
	if err := query.Scan(ctx); err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	now := s.now()
	keys := make([]string, 0, len(records))
	for _, record := range records {
		if !strings.HasPrefix(record.CredentialKey, prefix) || record.expired(now) {
			continue
		}
		keys = append(keys, record.CredentialKey)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *CredentialStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func findCredentialTx(ctx context.Context, tx bun.Tx, key string) (*credentialRecord, error) {
	record := &credentialRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.credential_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}
