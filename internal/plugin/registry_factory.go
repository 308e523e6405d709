package plugin

import (
	"fmt"
	"sync"

	"sker/internal/container"
	"sker/internal/registry"
)

// ServiceClass is what a plugin's entry point resolves to once
// instantiated in its isolation container: the live object whose
// annotated methods produced the plugin's descriptors (§4.5 step 4,
// "resolve a singleton of each to finalize invoke closures").
type ServiceClass interface {
	Descriptors() []*registry.HandlerDescriptor
}

// ServiceClassFactory builds a plugin's service classes against its
// own (already-isolated) container, mirroring "import the entry file
// ... obtain its declared service classes" (§4.5 step 3) the way a
// compiled Go binary can: rather than dynamically importing arbitrary
// code, a plugin registers its constructor ahead of time, the same
// shape database/sql drivers and cobra commands use for self
// registration.
type ServiceClassFactory func(c *container.Container) ([]ServiceClass, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]ServiceClassFactory{}
)

// RegisterFactory is called from a plugin package's init(), binding
// its manifest name to the constructor the loader invokes once the
// manifest has passed discovery and compatibility checks.
func RegisterFactory(name string, factory ServiceClassFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

func lookupFactory(name string) (ServiceClassFactory, bool) {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}
