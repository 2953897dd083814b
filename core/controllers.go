package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ControllerSet builds controllers from a KindRegistry on first use and keeps
// one controller per integration type and instance id. New controllers are
// restored from the state store before they are returned.
type ControllerSet struct {
	registry *KindRegistry

	mu          sync.Mutex
	controllers map[string]*Controller
}

func NewControllerSet(registry *KindRegistry) *ControllerSet {
	return &ControllerSet{
		registry:    registry,
		controllers: map[string]*Controller{},
	}
}

func (s *ControllerSet) Registry() *KindRegistry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *ControllerSet) Controller(ctx context.Context, integrationType string, instanceID string) (*Controller, error) {
	if s == nil || s.registry == nil {
		return nil, fmt.Errorf("core: controller set is not configured")
	}
	integrationType = strings.TrimSpace(integrationType)
	instanceID = strings.TrimSpace(instanceID)
	key := controllerKey(integrationType, instanceID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if controller, ok := s.controllers[key]; ok {
		return controller, nil
	}
	controller, err := s.registry.NewController(integrationType, instanceID)
	if err != nil {
		return nil, err
	}
	if err := controller.Restore(ctx); err != nil {
		return nil, err
	}
	if s.controllers == nil {
		s.controllers = map[string]*Controller{}
	}
	s.controllers[key] = controller
	return controller, nil
}

// Loaded returns the controllers built so far, ordered by type then instance.
func (s *ControllerSet) Loaded() []*Controller {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.controllers))
	for key := range s.controllers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]*Controller, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.controllers[key])
	}
	return out
}

// Forget drops a cached controller. The next lookup rebuilds and restores it.
func (s *ControllerSet) Forget(integrationType string, instanceID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.controllers, controllerKey(strings.TrimSpace(integrationType), strings.TrimSpace(instanceID)))
	s.mu.Unlock()
}

func controllerKey(integrationType string, instanceID string) string {
	return integrationType + "\x00" + instanceID
}
