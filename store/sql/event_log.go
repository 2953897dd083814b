package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-integrations/core"
	glog "github.com/goliatone/go-logger/glog"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultEventListLimit = 100

// EventLog is an EventEmitter that appends every event to
// integration_events before fanning it out to in-process subscribers.
// Payloads are redacted before they are written.
type EventLog struct {
	db     *bun.DB
	repo   repository.Repository[*eventRecord]
	bus    *core.MemoryEventBus
	logger core.Logger
}

func NewEventLog(db *bun.DB, logger core.Logger) (*EventLog, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*eventRecord](db, eventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid event repository wiring: %w", err)
		}
	}
	logger = glog.Ensure(logger)
	return &EventLog{
		db:     db,
		repo:   repo,
		bus:    core.NewMemoryEventBus().WithLogger(logger),
		logger: logger,
	}, nil
}

// Emit never fails the caller; persistence errors are logged and the event
// is still delivered to subscribers.
func (l *EventLog) Emit(ctx context.Context, event core.Event) {
	if l == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(event.ID) == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := l.Append(ctx, event); err != nil {
		l.logger.Error("failed to persist integration event", "event_type", event.Type, "event_id", event.ID, "error", err)
	}
	l.bus.Emit(ctx, event)
}

func (l *EventLog) Subscribe(handler core.EventHandler) func() {
	if l == nil {
		return func() {}
	}
	return l.bus.Subscribe(handler)
}

// Append writes one event without notifying subscribers.
func (l *EventLog) Append(ctx context.Context, event core.Event) error {
	if l == nil || l.repo == nil {
		return fmt.Errorf("sqlstore: event log is not configured")
	}
	integrationType, _ := event.Payload["integrationType"].(string)
	record := &eventRecord{
		ID:              event.ID,
		EventType:       strings.TrimSpace(event.Type),
		IntegrationType: strings.TrimSpace(integrationType),
		Payload:         core.RedactSensitiveMap(event.Payload),
		OccurredAt:      event.OccurredAt.UTC(),
		CreatedAt:       time.Now().UTC(),
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := l.repo.Create(ctx, record)
	return err
}

// List returns stored events oldest first.
func (l *EventLog) List(ctx context.Context, filter core.EventFilter) ([]core.Event, error) {
	if l == nil || l.repo == nil {
		return nil, fmt.Errorf("sqlstore: event log is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultEventListLimit
	}
	criteria := []repository.SelectCriteria{
		repository.OrderBy("occurred_at ASC"),
		repository.SelectPaginate(limit, 0),
	}
	if value := strings.TrimSpace(filter.Type); value != "" {
		criteria = append(criteria, repository.SelectBy("event_type", "=", value))
	}
	if value := strings.TrimSpace(filter.IntegrationType); value != "" {
		criteria = append(criteria, repository.SelectBy("integration_type", "=", value))
	}
	if !filter.Since.IsZero() {
		since := filter.Since.UTC()
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.occurred_at >= ?", since)
		}))
	}
	records, _, err := l.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	events := make([]core.Event, 0, len(records))
	for _, record := range records {
		events = append(events, record.toDomain())
	}
	return events, nil
}
