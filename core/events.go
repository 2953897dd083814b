package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewEvent stamps an event with a v4 id and the given time.
func NewEvent(eventType string, payload map[string]any, occurredAt time.Time) Event {
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       strings.TrimSpace(eventType),
		Payload:    cloneFields(payload),
		OccurredAt: occurredAt.UTC(),
	}
}

// MemoryEventBus calls subscribers synchronously in subscription order.
// Panicking handlers are recovered so emission never fails the caller.
type MemoryEventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]EventHandler
	order    []int
	logger   Logger
}

func NewMemoryEventBus() *MemoryEventBus {
	return &MemoryEventBus{handlers: map[int]EventHandler{}}
}

// WithLogger reports recovered handler panics to logger.
func (b *MemoryEventBus) WithLogger(logger Logger) *MemoryEventBus {
	if b == nil {
		return nil
	}
	b.logger = logger
	return b
}

func (b *MemoryEventBus) Subscribe(handler EventHandler) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = map[int]EventHandler{}
	}
	b.nextID++
	id := b.nextID
	b.handlers[id] = handler
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, candidate := range b.order {
				if candidate == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *MemoryEventBus) Emit(ctx context.Context, event Event) {
	if b == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.order))
	for _, id := range b.order {
		if handler := b.handlers[id]; handler != nil {
			handlers = append(handlers, handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		b.dispatch(ctx, handler, event)
	}
}

func (b *MemoryEventBus) dispatch(ctx context.Context, handler EventHandler, event Event) {
	defer func() {
		if recovered := recover(); recovered != nil && b.logger != nil {
			b.logger.Error("event handler panicked", "event_type", event.Type, "panic", recovered)
		}
	}()
	handler(ctx, event)
}

// NopEventEmitter drops every event.
type NopEventEmitter struct{}

func (NopEventEmitter) Emit(context.Context, Event) {}

func (NopEventEmitter) Subscribe(EventHandler) func() { return func() {} }

var (
	_ EventEmitter = (*MemoryEventBus)(nil)
	_ EventEmitter = NopEventEmitter{}
)
