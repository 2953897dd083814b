package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var ErrKindNotFound = errors.New("core: integration kind not found")

// KindRegistry maps integration types to kinds and builds controllers with
// a shared set of options.
type KindRegistry struct {
	mu       sync.RWMutex
	kinds    map[string]Kind
	defaults []Option
}

func NewKindRegistry(defaults ...Option) *KindRegistry {
	return &KindRegistry{
		kinds:    make(map[string]Kind),
		defaults: append([]Option(nil), defaults...),
	}
}

func (r *KindRegistry) Register(kind Kind) error {
	if r == nil {
		return fmt.Errorf("core: kind registry is nil")
	}
	if kind == nil {
		return fmt.Errorf("core: integration kind is nil")
	}
	integrationType := strings.TrimSpace(kind.Type())
	if integrationType == "" {
		return fmt.Errorf("core: integration type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.kinds == nil {
		r.kinds = make(map[string]Kind)
	}
	if _, exists := r.kinds[integrationType]; exists {
		return fmt.Errorf("core: integration kind already registered: %s", integrationType)
	}
	r.kinds[integrationType] = kind
	return nil
}

func (r *KindRegistry) Get(integrationType string) (Kind, bool) {
	if r == nil {
		return nil, false
	}
	integrationType = strings.TrimSpace(integrationType)
	if integrationType == "" {
		return nil, false
	}
	r.mu.RLock()
	kind, ok := r.kinds[integrationType]
	r.mu.RUnlock()
	return kind, ok
}

// List returns the registered kinds sorted by type.
func (r *KindRegistry) List() []Kind {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.kinds))
	for integrationType := range r.kinds {
		types = append(types, integrationType)
	}
	sort.Strings(types)
	kinds := make([]Kind, 0, len(types))
	for _, integrationType := range types {
		kinds = append(kinds, r.kinds[integrationType])
	}
	return kinds
}

// NewController builds a controller for a registered type. Per call options
// are applied after the registry defaults.
func (r *KindRegistry) NewController(integrationType string, instanceID string, opts ...Option) (*Controller, error) {
	kind, ok := r.Get(integrationType)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKindNotFound, strings.TrimSpace(integrationType))
	}
	r.mu.RLock()
	combined := append(append([]Option(nil), r.defaults...), opts...)
	r.mu.RUnlock()
	return NewController(kind, instanceID, combined...)
}
