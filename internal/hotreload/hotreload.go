// Package hotreload implements the dev-mode reload manager (C12):
// watching a plugin's entry directory for changes and triggering
// PluginLoader.Reload, debounced, for plugins that opted into dev
// mode.
package hotreload

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"sker/internal/plugin"
)

// State reports whether the manager is actively watching (§4.12).
type State string

const (
	StateIdle     State = "idle"
	StateWatching State = "watching"
)

// Logger is the narrow logging surface this package needs. Reload
// failures are logged and swallowed: a broken plugin under active
// development must never stop the watcher (§4.12).
type Logger interface {
	Info(format string, args ...any)
	Error(err error, format string, args ...any)
}

// Config controls the debounce window (§4.12, default 500ms).
type Config struct {
	Debounce time.Duration
}

type enrolled struct {
	name string
	dir  string
}

// Manager watches every enrolled plugin's directory and reloads it
// through loader whenever its manifest or entry file changes.
type Manager struct {
	loader *plugin.Loader
	cfg    Config
	logger Logger

	mu      sync.Mutex
	state   State
	fw      *fileWatcher
	entries map[string]enrolled // watched path -> plugin
}

// New returns a Manager in the idle state; call Start to begin
// watching enrolled plugins.
func New(loader *plugin.Loader, cfg Config, logger Logger) *Manager {
	return &Manager{
		loader:  loader,
		cfg:     cfg,
		logger:  logger,
		state:   StateIdle,
		entries: map[string]enrolled{},
	}
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Enroll registers name's entry directory for dev-mode watching. If
// the manager is already watching, the new directory starts being
// watched immediately.
func (m *Manager) Enroll(name, dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[dir] = enrolled{name: name, dir: dir}
	if m.fw != nil {
		return m.fw.Add(dir)
	}
	return nil
}

// Unenroll stops watching name's entry directory.
func (m *Manager) Unenroll(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, dir)
	if m.fw != nil {
		m.fw.Remove(dir)
	}
}

// Start begins watching every enrolled directory (§4.12 idle ->
// watching).
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateWatching {
		return nil
	}

	fw, err := newFileWatcher(m.cfg.Debounce, m.onChange, m.onWatchError)
	if err != nil {
		return fmt.Errorf("hotreload: start watcher: %w", err)
	}
	for dir := range m.entries {
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return fmt.Errorf("hotreload: watch %s: %w", dir, err)
		}
	}
	m.fw = fw
	m.state = StateWatching
	return nil
}

// Stop halts watching (§4.12 watching -> idle).
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fw == nil {
		m.state = StateIdle
		return nil
	}
	err := m.fw.Close()
	m.fw = nil
	m.state = StateIdle
	return err
}

func (m *Manager) onWatchError(err error) {
	if m.logger != nil {
		m.logger.Error(err, "hotreload: watcher error")
	}
}

// onChange re-discovers the plugin's manifest at its enrolled
// directory and reloads it through the loader. Any failure is logged
// and the watcher keeps running (§4.12).
func (m *Manager) onChange(path string) {
	m.mu.Lock()
	var target enrolled
	found := false
	for dir, e := range m.entries {
		if dir == path || filepath.Dir(path) == dir {
			target = e
			found = true
			break
		}
	}
	m.mu.Unlock()
	if !found {
		return
	}

	candidates, err := plugin.Discover(target.dir, plugin.DiscoveryOptions{MaxDepth: 1, AllowInvalid: true})
	if err != nil {
		if m.logger != nil {
			m.logger.Error(err, "hotreload: discover %s failed", target.dir)
		}
		return
	}
	var candidate *plugin.Candidate
	for i := range candidates {
		if candidates[i].Dir == target.dir {
			candidate = &candidates[i]
			break
		}
	}
	if candidate == nil || !candidate.IsValid {
		if m.logger != nil {
			m.logger.Error(fmt.Errorf("no valid manifest"), "hotreload: %s has no valid manifest, skipping reload", target.name)
		}
		return
	}

	if _, err := m.loader.Reload(target.name, *candidate); err != nil {
		if m.logger != nil {
			m.logger.Error(err, "hotreload: reload %s failed", target.name)
		}
		return
	}
	if m.logger != nil {
		m.logger.Info("hotreload: reloaded %s", target.name)
	}
}
