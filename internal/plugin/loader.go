package plugin

import (
	"fmt"
	"sync"

	"sker/internal/conflict"
	"sker/internal/container"
	"sker/internal/isolation"
	"sker/internal/registry"
)

// State is a plugin's lifecycle state (§3).
type State string

const (
	StateDiscovered State = "discovered"
	StateLoading    State = "loading"
	StateLoaded     State = "loaded"
	StateEnabled    State = "enabled"
	StateFailed     State = "failed"
	StateUnloaded   State = "unloaded"
)

// Hooks are optional plugin lifecycle callbacks (§3).
type Hooks struct {
	OnLoad   func() error
	OnUnload func() error
}

// Plugin is the loader's tracked record for one installed plugin (§3).
type Plugin struct {
	Name           string
	Version        string
	EntryPath      string
	Manifest       *Manifest
	Permissions    isolation.Permissions
	IsolationLevel isolation.Level
	Instance       *isolation.Instance
	Descriptors    []*registry.HandlerDescriptor
	Hooks          Hooks
	State          State
	LastError      error
}

// LoaderConfig carries the knobs §4.5 and §6 name.
type LoaderConfig struct {
	Platform         string
	EngineVersion    string
	DevWarnOnly      bool
	ConflictStrategy conflict.Strategy
	PluginPriorities []string
	CoreTokens       map[container.Token]bool
	TrustOf          func(name string) isolation.TrustLevel
}

// Loader drives plugin load/unload/reload per §4.5, coordinating the
// isolation manager, conflict detector, and registry.
type Loader struct {
	mu       sync.Mutex
	cfg      LoaderConfig
	isolate  *isolation.Manager
	detector *conflict.Detector
	reg      *registry.Registry
	plugins  map[string]*Plugin
}

// NewLoader wires the three collaborating components together.
func NewLoader(cfg LoaderConfig, isolate *isolation.Manager, detector *conflict.Detector, reg *registry.Registry) *Loader {
	return &Loader{
		cfg:      cfg,
		isolate:  isolate,
		detector: detector,
		reg:      reg,
		plugins:  map[string]*Plugin{},
	}
}

// Get returns the tracked plugin record, if any.
func (l *Loader) Get(name string) (*Plugin, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.plugins[name]
	return p, ok
}

// List returns every tracked plugin.
func (l *Loader) List() []*Plugin {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Plugin, 0, len(l.plugins))
	for _, p := range l.plugins {
		out = append(out, p)
	}
	return out
}

// Load runs the full §4.5 loading sequence for one discovered
// candidate, rolling back completely on any failure from step 2
// onward.
func (l *Loader) Load(c Candidate) (*Plugin, error) {
	if !c.IsValid || c.Manifest == nil {
		return nil, fmt.Errorf("plugin: candidate at %s is not valid", c.Dir)
	}
	m := c.Manifest

	p := &Plugin{
		Name:      m.Name,
		Version:   m.Version,
		EntryPath: m.Main,
		Manifest:  m,
		State:     StateLoading,
	}

	// Step 1: compatibility.
	if _, err := CheckCompatibility(m, l.cfg.Platform, l.cfg.EngineVersion, l.cfg.DevWarnOnly); err != nil {
		p.State = StateFailed
		p.LastError = err
		return p, err
	}

	trust := isolation.TrustUntrusted
	if l.cfg.TrustOf != nil {
		trust = l.cfg.TrustOf(m.Name)
	}
	implied := isolation.DerivePermissions(trust)
	requested := implied
	level := isolation.LevelService
	if m.MCP != nil {
		requested = isolation.NarrowPermissions(implied, m.MCP.Permissions.toPermissions())
		if m.MCP.IsolationLevel != "" {
			level = isolation.Level(m.MCP.IsolationLevel)
		}
	} else {
		requested = isolation.Permissions{}
	}
	p.Permissions = requested
	p.IsolationLevel = level

	// Step 2: isolation container + bridge.
	inst, err := l.isolate.Create(m.Name, m.Version, level, requested, l.cfg.CoreTokens)
	if err != nil {
		p.State = StateFailed
		p.LastError = err
		return p, err
	}
	rollbackIsolation := func() { _ = l.isolate.Remove(m.Name, m.Version) }

	// Step 3/4: resolve the plugin's registered factory and its
	// service classes in its own container, collecting descriptors.
	factory, ok := lookupFactory(m.Name)
	if !ok {
		rollbackIsolation()
		err := fmt.Errorf("plugin: no registered factory for %q (entry %s)", m.Name, m.Main)
		p.State = StateFailed
		p.LastError = err
		return p, err
	}
	classes, err := factory(inst.Container)
	if err != nil {
		rollbackIsolation()
		p.State = StateFailed
		p.LastError = err
		return p, err
	}
	var descriptors []*registry.HandlerDescriptor
	for _, sc := range classes {
		descriptors = append(descriptors, sc.Descriptors()...)
	}

	// Step 5/6: conflict detection against the current registry.
	candidate := conflict.CandidatePlugin{
		Name:           m.Name,
		Version:        m.Version,
		IsolationLevel: string(level),
		Descriptors:    descriptors,
	}
	if m.MCP != nil {
		candidate.MCPVersion = m.MCP.Compatibility.MCPVersion
	}
	conflicts := l.detector.Detect([]conflict.CandidatePlugin{candidate}, l.reg.Snapshot())
	for _, cf := range conflicts {
		res, rerr := conflict.Resolve(cf, l.strategyFor(cf), l.cfg.PluginPriorities)
		if rerr != nil || !res.Success {
			rollbackIsolation()
			err := fmt.Errorf("plugin: unresolved conflict %s for %q", cf.ID, m.Name)
			p.State = StateFailed
			p.LastError = err
			return p, err
		}
		descriptors = dropAffected(descriptors, cf.Resource, res.AffectedPlugins, m.Name)
	}

	// Step 7: atomic install, onLoad, Enabled.
	if err := l.reg.Install(m.Name, descriptors); err != nil {
		rollbackIsolation()
		p.State = StateFailed
		p.LastError = err
		return p, err
	}
	p.Descriptors = descriptors
	p.Instance = inst

	if p.Hooks.OnLoad != nil {
		if err := p.Hooks.OnLoad(); err != nil {
			l.reg.UninstallAllFor(m.Name)
			rollbackIsolation()
			p.State = StateFailed
			p.LastError = err
			return p, err
		}
	}

	p.State = StateEnabled
	l.mu.Lock()
	l.plugins[m.Name] = p
	l.mu.Unlock()
	return p, nil
}

// strategyFor picks the recommended strategy unless the loader was
// configured with a fixed override.
func (l *Loader) strategyFor(c conflict.Conflict) conflict.Strategy {
	if l.cfg.ConflictStrategy != "" {
		return l.cfg.ConflictStrategy
	}
	return c.RecommendedStrategy
}

// dropAffected removes the descriptor a resolved conflict is about
// from this plugin's own descriptor list when self is among the
// affected/losing plugins; the plugin's other descriptors are kept.
func dropAffected(descriptors []*registry.HandlerDescriptor, res conflict.Resource, affected []string, self string) []*registry.HandlerDescriptor {
	lost := map[string]bool{}
	for _, a := range affected {
		lost[a] = true
	}
	if !lost[self] {
		return descriptors
	}
	kept := make([]*registry.HandlerDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if string(d.Kind) == res.Kind && d.Name == res.Identifier {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

// Unload transitions Enabled -> Unloaded (§4.5).
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	p, ok := l.plugins[name]
	l.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin: %q not loaded", name)
	}

	if p.Hooks.OnUnload != nil {
		if err := p.Hooks.OnUnload(); err != nil {
			// an onUnload error is discarded: it is neither logged
			// here nor returned to the caller
		}
	}
	l.reg.UninstallAllFor(name)
	_ = l.isolate.Remove(p.Name, p.Version)

	l.mu.Lock()
	p.State = StateUnloaded
	delete(l.plugins, name)
	l.mu.Unlock()
	return nil
}

// Reload unloads then loads a plugin fresh from c. If the load fails,
// the previous version is already gone; the plugin is left tracked in
// Failed state with the error stored (§4.5).
func (l *Loader) Reload(name string, c Candidate) (*Plugin, error) {
	if _, ok := l.Get(name); ok {
		if err := l.Unload(name); err != nil {
			return nil, err
		}
	}
	p, err := l.Load(c)
	if err != nil {
		l.mu.Lock()
		l.plugins[name] = p
		l.mu.Unlock()
		return p, err
	}
	return p, nil
}
