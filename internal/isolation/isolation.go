// Package isolation implements the Isolation Manager (C6): one child
// container per plugin, the permission-gated bridge that mediates its
// parent lookups, and tracking of active plugin instances.
//
// Uses the same keyed-collection shape as a reconciler's
// instance-tracking maps (mutex-guarded CRUD plus a stats summary),
// applied here to per-plugin container.Bridge instances gated by a
// permission predicate.
package isolation

import (
	"fmt"
	"sort"
	"sync"

	"sker/internal/container"
	"sker/internal/errchain"
)

// TrustLevel is the coarse grant a plugin manifest is evaluated
// against (§3 Permissions).
type TrustLevel string

const (
	TrustUntrusted TrustLevel = "untrusted"
	TrustTrusted   TrustLevel = "trusted"
	TrustSystem    TrustLevel = "system"
)

// Level is the IsolationLevel from §3/§4.6.
type Level string

const (
	LevelNone    Level = "none"
	LevelService Level = "service"
	LevelFull    Level = "full"
)

// Permissions is the fixed set of booleans derived from a TrustLevel
// (§3).
type Permissions struct {
	ParentServices    bool
	GlobalRegistration bool
	CrossPluginAccess bool
	CoreSystemAccess  bool
}

// DerivePermissions computes the permission set a trust level implies.
// A manifest may narrow but never widen these (enforced by
// NarrowPermissions).
func DerivePermissions(trust TrustLevel) Permissions {
	switch trust {
	case TrustTrusted:
		return Permissions{ParentServices: true}
	case TrustSystem:
		return Permissions{ParentServices: true, GlobalRegistration: true, CrossPluginAccess: true, CoreSystemAccess: true}
	default:
		return Permissions{}
	}
}

// NarrowPermissions applies a manifest-requested permission set on top
// of the trust-derived one, clamping every field to what the trust
// level already allows (§3: "never broader").
func NarrowPermissions(implied, requested Permissions) Permissions {
	return Permissions{
		ParentServices:     implied.ParentServices && requested.ParentServices,
		GlobalRegistration: implied.GlobalRegistration && requested.GlobalRegistration,
		CrossPluginAccess:  implied.CrossPluginAccess && requested.CrossPluginAccess,
		CoreSystemAccess:   implied.CoreSystemAccess && requested.CoreSystemAccess,
	}
}

// ErrPermissionDenied is returned by the bridge when a token is
// requested without the permission to reach it.
type ErrPermissionDenied struct {
	Token  container.Token
	Plugin string
}

func (e ErrPermissionDenied) Error() string {
	return fmt.Sprintf("isolation: plugin %q denied access to token %q", e.Plugin, e.Token)
}

// Code satisfies the errchain default handler's "does this error carry
// a code" check (§7 Permission taxonomy), so a bridge denial that
// reaches the default handler without a registered translation still
// carries CodePermissionDenied instead of falling through to an
// internal error.
func (e ErrPermissionDenied) Code() string { return errchain.CodePermissionDenied }

// Bridge implements container.Bridge, gating parent-container access
// by the owning plugin's Permissions and isolation Level (§4.6).
type Bridge struct {
	PluginName  string
	Parent      *container.Container
	Permissions Permissions
	Level       Level
	// CoreTokens is the configured allow-list of tokens reachable via
	// CoreSystemAccess even without ParentServices.
	CoreTokens map[container.Token]bool
	// CrossPluginTokens maps a token to the plugin name that must be
	// explicitly named for CrossPluginAccess to apply (§4.6: "requires
	// crossPluginAccess and explicitly names the counterpart plugin").
	CrossPluginTokens map[container.Token]string
}

func (b *Bridge) allowed(token container.Token) bool {
	switch b.Level {
	case LevelFull:
		return false
	case LevelNone:
		return true
	}
	if b.Permissions.ParentServices {
		return true
	}
	if b.Permissions.CoreSystemAccess && b.CoreTokens[token] {
		return true
	}
	if owner, ok := b.CrossPluginTokens[token]; ok && b.Permissions.CrossPluginAccess && owner != "" {
		return true
	}
	return false
}

// RequestFromParent implements container.Bridge.
func (b *Bridge) RequestFromParent(token container.Token) (any, bool, error) {
	if !b.allowed(token) {
		return nil, false, ErrPermissionDenied{Token: token, Plugin: b.PluginName}
	}
	if b.Parent == nil {
		return nil, false, nil
	}
	v, err := b.Parent.Get(token)
	if err != nil {
		if _, ok := err.(container.ErrUnknownToken); ok {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

// MultiFromParent implements container.Bridge.
func (b *Bridge) MultiFromParent(token container.Token) ([]any, error) {
	if !b.allowed(token) {
		return nil, nil
	}
	if b.Parent == nil {
		return nil, nil
	}
	return b.Parent.GetMulti(token)
}

// Instance tracks one plugin's isolation context (§4.6 "active
// instances... keyed by (name,version)").
type Instance struct {
	Name      string
	Version   string
	Level     Level
	Container *container.Container
	Bridge    *Bridge
	// Dispose is called during cleanup/remove if the plugin's root
	// instance provides one.
	Dispose func() error
}

// key returns the (name,version) identity used for tracking.
func (i *Instance) key() string { return i.Name + "@" + i.Version }

// ErrDuplicateInstance is returned when creating an instance whose
// (name,version) is already Enabled.
type ErrDuplicateInstance struct{ Name, Version string }

func (e ErrDuplicateInstance) Error() string {
	return fmt.Sprintf("isolation: instance %s@%s already active", e.Name, e.Version)
}

// Stats summarizes active instance counts per isolation level (§4.6).
type Stats struct {
	Total       int
	ByLevel     map[Level]int
}

// Manager owns the parent container and every active plugin Instance.
type Manager struct {
	mu       sync.RWMutex
	parent   *container.Container
	order    []string // load order, for reverse-order cleanup
	instances map[string]*Instance
}

// New returns a Manager whose children delegate to parent.
func New(parent *container.Container) *Manager {
	return &Manager{
		parent:    parent,
		instances: map[string]*Instance{},
	}
}

// Create builds a new child container + bridge for a plugin and
// tracks it, refusing a duplicate active (name,version) (§4.6).
func (m *Manager) Create(name, version string, level Level, perms Permissions, coreTokens map[container.Token]bool) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inst := &Instance{Name: name, Version: version, Level: level}
	if _, exists := m.instances[inst.key()]; exists {
		return nil, ErrDuplicateInstance{Name: name, Version: version}
	}

	bridge := &Bridge{
		PluginName:  name,
		Parent:      m.parent,
		Permissions: perms,
		Level:       level,
		CoreTokens:  coreTokens,
	}
	inst.Bridge = bridge
	inst.Container = container.NewChild(m.parent, bridge)

	m.instances[inst.key()] = inst
	m.order = append(m.order, inst.key())
	return inst, nil
}

// Get returns the active instance for (name,version), if any.
func (m *Manager) Get(name, version string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[name+"@"+version]
	return inst, ok
}

// List returns every active instance.
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// Remove tears down and untracks a single instance, invoking Dispose
// if set.
func (m *Manager) Remove(name, version string) error {
	m.mu.Lock()
	key := name + "@" + version
	inst, ok := m.instances[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.instances, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if inst.Dispose != nil {
		return inst.Dispose()
	}
	return nil
}

// Stats reports counts per isolation level (§4.6).
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{ByLevel: map[Level]int{}}
	for _, inst := range m.instances {
		st.Total++
		st.ByLevel[inst.Level]++
	}
	return st
}

// Cleanup tears down every active instance in reverse load order,
// collecting per-plugin errors without aborting the rest (§4.6).
func (m *Manager) Cleanup() []error {
	m.mu.Lock()
	keys := append([]string(nil), m.order...)
	m.mu.Unlock()

	var errs []error
	for i := len(keys) - 1; i >= 0; i-- {
		m.mu.RLock()
		inst, ok := m.instances[keys[i]]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if inst.Dispose != nil {
			if err := inst.Dispose(); err != nil {
				errs = append(errs, fmt.Errorf("isolation: cleanup %s: %w", keys[i], err))
			}
		}
		m.mu.Lock()
		delete(m.instances, keys[i])
		m.mu.Unlock()
	}
	m.mu.Lock()
	m.order = nil
	m.mu.Unlock()
	return errs
}
