package integrations

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-integrations/core"
)

// KindPack groups integration kinds shipped by a downstream module.
type KindPack struct {
	Name  string
	Kinds []core.Kind
}

// CommandQueryBundleFactory builds extra handlers over the facade's
// controller set.
type CommandQueryBundleFactory func(facade *Facade) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	kindPacks map[string]KindPack
	bundles   map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		kindPacks: map[string]KindPack{},
		bundles:   map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterKindPack(pack KindPack) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("integrations: kind pack name is required")
	}
	if len(pack.Kinds) == 0 {
		return fmt.Errorf("integrations: kind pack %q has no kinds", name)
	}

	normalized := KindPack{
		Name:  name,
		Kinds: append([]core.Kind(nil), pack.Kinds...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.kindPacks[name]; exists {
		return fmt.Errorf("integrations: kind pack %q already registered", name)
	}
	h.kindPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("integrations: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("integrations: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("integrations: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("integrations: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyKindPacks registers every packed kind, packs in name order. A type
// already present in the registry fails the whole call.
func (h *ExtensionHooks) ApplyKindPacks(registry *core.KindRegistry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("integrations: kind registry is required")
	}

	for _, pack := range h.KindPacks() {
		for _, kind := range pack.Kinds {
			if kind == nil {
				return fmt.Errorf("integrations: kind pack %q contains nil kind", pack.Name)
			}
			if err := registry.Register(kind); err != nil {
				return fmt.Errorf("integrations: kind pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("integrations: facade is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		names = append(names, name)
		factories[name] = factory
	}
	h.mu.RUnlock()
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, fmt.Errorf("integrations: build bundle %q: %w", name, err)
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) KindPacks() []KindPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.kindPacks))
	for name := range h.kindPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]KindPack, 0, len(names))
	for _, name := range names {
		pack := h.kindPacks[name]
		out = append(out, KindPack{
			Name:  pack.Name,
			Kinds: append([]core.Kind(nil), pack.Kinds...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
