package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// StateStore persists one state snapshot per integration instance so a
// controller can Restore after a restart.
type StateStore struct {
	db   *bun.DB
	repo repository.Repository[*stateRecord]
}

func NewStateStore(db *bun.DB) (*StateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*stateRecord](db, stateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid state repository wiring: %w", err)
		}
	}
	return &StateStore{db: db, repo: repo}, nil
}

// LoadState returns nil when the instance has no stored state.
func (s *StateStore) LoadState(ctx context.Context, instanceID string) (*core.IntegrationState, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: state store is not configured")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("instance_id", "=", strings.TrimSpace(instanceID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0].toDomain(), nil
}

func (s *StateStore) SaveState(ctx context.Context, instanceID string, state *core.IntegrationState) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: state store is not configured")
	}
	instanceID = strings.TrimSpace(instanceID)
	if instanceID == "" {
		return fmt.Errorf("sqlstore: instance id is required")
	}
	if state == nil {
		return s.DeleteState(ctx, instanceID)
	}
	now := time.Now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findStateTx(ctx, tx, instanceID)
		if err != nil {
			return err
		}
		created := record == nil
		if created {
			record = &stateRecord{
				ID:         uuid.NewString(),
				InstanceID: instanceID,
				CreatedAt:  now,
			}
		}
		record.IntegrationType = state.Type
		record.Status = string(state.Status)
		record.Error = state.Error
		record.ConnectedAt = state.ConnectedAt.UTC()
		record.LastActivityAt = state.LastActivityAt.UTC()
		record.Metadata = copyAnyMap(state.Metadata)
		record.UpdatedAt = now

		if created {
			_, createErr := s.repo.CreateTx(ctx, tx, record)
			return createErr
		}
		_, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return updateErr
	})
}

func (s *StateStore) DeleteState(ctx context.Context, instanceID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: state store is not configured")
	}
	_, err := s.db.NewDelete().
		Model((*stateRecord)(nil)).
		Where("instance_id = ?", strings.TrimSpace(instanceID)).
		Exec(ctx)
	return err
}

func findStateTx(ctx context.Context, tx bun.Tx, instanceID string) (*stateRecord, error) {
	record := &stateRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.instance_id = ?", instanceID).
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
