package plugin

import (
	"fmt"
	"sort"
	"sync"
)

// Factory builds a fresh plugin implementation.
type Factory func() Plugin

// Loader resolves a factory name into a Plugin implementation.
type Loader interface {
	Load(name string) (Plugin, error)
}

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// RegisterFactory makes a compiled-in plugin available under name.
// It panics when called twice for the same name or with a nil factory.
func RegisterFactory(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	if factory == nil {
		panic("plugin: RegisterFactory factory is nil")
	}
	if _, dup := factories[name]; dup {
		panic("plugin: RegisterFactory called twice for " + name)
	}
	factories[name] = factory
}

// Factories returns the sorted names of every registered factory.
func Factories() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FactoryLoader resolves names against the registered factories.
type FactoryLoader struct{}

// Load implements Loader.
func (FactoryLoader) Load(name string) (Plugin, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no plugin factory registered for %q", name)
	}
	p := factory()
	if p == nil {
		return nil, fmt.Errorf("plugin factory %q returned nil", name)
	}
	return p, nil
}
