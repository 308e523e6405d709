package registry

import (
	"fmt"
	"sync"
)

// entry pairs an installed descriptor with the plugin that owns it
// (§3 Registry).
type entry struct {
	descriptor   *HandlerDescriptor
	owningPlugin string
}

// Registry holds the three kind-keyed name maps every dispatcher
// lookup and every plugin unload walks (§4.8).
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]entry
	resources map[string]entry
	prompts   map[string]entry

	// byPlugin tracks which names (by kind) each plugin currently owns,
	// so uninstallAllFor can remove them without a linear scan.
	byPlugin map[string]map[Kind][]string

	subsMu sync.Mutex
	subs   []func()
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		tools:     map[string]entry{},
		resources: map[string]entry{},
		prompts:   map[string]entry{},
		byPlugin:  map[string]map[Kind][]string{},
	}
}

// Subscribe registers fn to be called after every successful Install or
// UninstallAllFor, so a transport can resync its published tool/
// resource/prompt lists against the registry's current contents.
// Returns an unsubscribe function.
func (r *Registry) Subscribe(fn func()) func() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.subs = append(r.subs, fn)
	idx := len(r.subs) - 1
	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		r.subs[idx] = nil
	}
}

func (r *Registry) notify() {
	r.subsMu.Lock()
	subs := append([]func(){}, r.subs...)
	r.subsMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}

func (r *Registry) tableFor(kind Kind) map[string]entry {
	switch kind {
	case KindTool:
		return r.tools
	case KindResource:
		return r.resources
	case KindPrompt:
		return r.prompts
	default:
		return nil
	}
}

// Install installs every descriptor for a plugin as a single atomic
// batch: either all descriptors are added, or none are, and any name
// collision with an existing entry from a different plugin aborts the
// whole batch (§4.8 "all-or-nothing against a single lock").
func (r *Registry) Install(pluginName string, descriptors []*HandlerDescriptor) error {
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	r.mu.Lock()

	for _, d := range descriptors {
		table := r.tableFor(d.Kind)
		if table == nil {
			r.mu.Unlock()
			return fmt.Errorf("registry: descriptor %q has unknown kind %q", d.Name, d.Kind)
		}
		if existing, ok := table[d.Name]; ok && existing.owningPlugin != pluginName {
			r.mu.Unlock()
			return fmt.Errorf("registry: %s %q already owned by plugin %q", d.Kind, d.Name, existing.owningPlugin)
		}
	}

	owned := r.byPlugin[pluginName]
	if owned == nil {
		owned = map[Kind][]string{}
	}
	for _, d := range descriptors {
		d.PluginName = pluginName
		r.tableFor(d.Kind)[d.Name] = entry{descriptor: d, owningPlugin: pluginName}
		owned[d.Kind] = append(owned[d.Kind], d.Name)
	}
	r.byPlugin[pluginName] = owned
	r.mu.Unlock()
	r.notify()
	return nil
}

// UninstallAllFor removes every descriptor owned by pluginName. Called
// on unload and on rollback after a failed partial install (§4.5, §4.8).
func (r *Registry) UninstallAllFor(pluginName string) {
	r.mu.Lock()
	owned, ok := r.byPlugin[pluginName]
	if !ok {
		r.mu.Unlock()
		return
	}
	for kind, names := range owned {
		table := r.tableFor(kind)
		for _, name := range names {
			delete(table, name)
		}
	}
	delete(r.byPlugin, pluginName)
	r.mu.Unlock()
	r.notify()
}

// Lookup returns the descriptor registered for (kind, name), if any.
func (r *Registry) Lookup(kind Kind, name string) (*HandlerDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table := r.tableFor(kind)
	if table == nil {
		return nil, false
	}
	e, ok := table[name]
	if !ok {
		return nil, false
	}
	return e.descriptor, true
}

// ListByKind returns every descriptor currently installed under kind,
// in unspecified order (§4.8 "no cross-plugin ordering guarantees").
func (r *Registry) ListByKind(kind Kind) []*HandlerDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table := r.tableFor(kind)
	out := make([]*HandlerDescriptor, 0, len(table))
	for _, e := range table {
		out = append(out, e.descriptor)
	}
	return out
}

// Snapshot is a point-in-time, read-only copy of every installed
// descriptor, grouped by kind.
type Snapshot struct {
	Tools     []*HandlerDescriptor
	Resources []*HandlerDescriptor
	Prompts   []*HandlerDescriptor
}

// Snapshot returns a consistent view across all three tables.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{}
	for _, e := range r.tools {
		snap.Tools = append(snap.Tools, e.descriptor)
	}
	for _, e := range r.resources {
		snap.Resources = append(snap.Resources, e.descriptor)
	}
	for _, e := range r.prompts {
		snap.Prompts = append(snap.Prompts, e.descriptor)
	}
	return snap
}

// OwnerOf returns the plugin name owning (kind, name), if installed.
func (r *Registry) OwnerOf(kind Kind, name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	table := r.tableFor(kind)
	if table == nil {
		return "", false
	}
	e, ok := table[name]
	if !ok {
		return "", false
	}
	return e.owningPlugin, true
}
