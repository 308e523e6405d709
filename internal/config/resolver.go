package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Source is one contributor to the merged Snapshot, ordered by
// Priority (ties broken by registration order, §4.1).
type Source struct {
	Key       string
	Priority  int
	Data      map[string]any
	Timestamp time.Time
}

// LoadOptions controls how a file or directory source is read.
type LoadOptions struct {
	Priority int
}

// Subscriber is notified after every successful merge.
type Subscriber func(ChangeEvent)

// ErrorSubscriber is notified when a source update is rejected.
type ErrorSubscriber func(ErrorEvent)

// Resolver owns the ordered set of sources, merges them on every
// change, and exposes the result as an immutable Snapshot. Generalizes
// a fixed home+project config-file pair into a dynamic, priority-ordered
// source list.
type Resolver struct {
	mu         sync.RWMutex
	sources    map[string]*Source
	order      []string
	generation int
	snapshot   Snapshot
	rawMerged  map[string]any

	subsMu sync.Mutex
	subs   []Subscriber
	errSubs []ErrorSubscriber

	watcher *watcher
}

// NewResolver builds a Resolver seeded with built-in defaults
// (priority 0) so get() always returns a valid Snapshot even before
// any file is loaded.
func NewResolver() (*Resolver, error) {
	r := &Resolver{
		sources: map[string]*Source{},
	}
	if err := r.putSource(&Source{
		Key:       sourceKeyDefaults,
		Priority:  PriorityDefaults,
		Data:      defaultSnapshotData(),
		Timestamp: time.Time{},
	}); err != nil {
		return nil, err
	}
	return r, nil
}

// LoadEnvDefaults merges recognized SKER_ environment variables read
// from os.Environ() as a priority-20 source (§4.1 ordering: env vars
// outrank files).
func (r *Resolver) LoadEnvDefaults() []string {
	return r.LoadEnvVars(os.Environ())
}

// LoadEnvVars merges recognized SKER_ environment variables from an
// explicit slice (as opposed to the process environment), so the
// mapping can be exercised without mutating os.Environ in tests.
func (r *Resolver) LoadEnvVars(environ []string) []string {
	data, warnings := loadEnvVars(environ)
	if len(data) > 0 {
		_ = r.putSource(&Source{
			Key:       sourceKeyEnvVars,
			Priority:  PriorityEnvVars,
			Data:      data,
			Timestamp: time.Time{},
		})
	}
	return warnings
}

// LoadFile reads a single YAML file as a named source.
func (r *Resolver) LoadFile(path string, opts LoadOptions) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var data map[string]any
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	priority := opts.Priority
	if priority == 0 {
		priority = PriorityFile
	}
	return r.putSource(&Source{
		Key:       "file:" + path,
		Priority:  priority,
		Data:      normalizeYAMLMap(data).(map[string]any),
		Timestamp: time.Now(),
	})
}

// LoadDirectory loads every *.yaml/*.yml file directly under dir as
// one source per file, keyed by path.
func (r *Resolver) LoadDirectory(dir string, opts LoadOptions) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read dir %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, e.Name()), opts); err != nil {
			return err
		}
	}
	return nil
}

// Update merges a partial map as a runtime source (priority 30 unless
// the source already exists at a different priority).
func (r *Resolver) Update(partial map[string]any, sourceKey string) error {
	priority := PriorityRuntime
	r.mu.RLock()
	if existing, ok := r.sources[sourceKey]; ok {
		priority = existing.Priority
	}
	r.mu.RUnlock()
	return r.putSource(&Source{
		Key:       sourceKey,
		Priority:  priority,
		Data:      partial,
		Timestamp: time.Now(),
	})
}

// SetPath writes a single dotted-path value as a runtime update,
// merging it in as its own tiny source so it always wins over file and
// default sources without disturbing them.
func (r *Resolver) SetPath(dotted string, value any) error {
	return r.Update(setPath(map[string]any{}, dotted, value), "runtime:"+dotted)
}

// Get returns the current immutable Snapshot.
func (r *Resolver) Get() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// GetPath reads a single dotted path out of the last-merged raw data,
// useful for plugin-specific config blocks that have no typed field.
func (r *Resolver) GetPath(dotted string, def any) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return getPath(r.rawMerged, dotted, def)
}

// Subscribe registers fn to be called after every successful merge. It
// returns an unsubscribe function.
func (r *Resolver) Subscribe(fn Subscriber) func() {
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

// SubscribeErrors registers fn to be called whenever a source update is
// rejected by validation or fails to load from disk.
func (r *Resolver) SubscribeErrors(fn ErrorSubscriber) func() {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	r.errSubs = append(r.errSubs, fn)
	idx := len(r.errSubs) - 1
	return func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		r.errSubs[idx] = nil
	}
}

// putSource inserts or replaces a source, recomputes the merge, and on
// success swaps the snapshot and notifies subscribers. On validation
// failure the previous snapshot is left untouched and an ErrorEvent
// fires instead (§4.1).
func (r *Resolver) putSource(src *Source) error {
	r.mu.Lock()
	prevSrc, existed := r.sources[src.Key]
	if !existed {
		r.order = append(r.order, src.Key)
	}
	r.sources[src.Key] = src
	// restore puts the source set back as it was before this update.
	restore := func() {
		if existed {
			r.sources[src.Key] = prevSrc
			return
		}
		delete(r.sources, src.Key)
		r.order = r.order[:len(r.order)-1]
	}

	ordered := make([]*Source, 0, len(r.sources))
	for _, key := range r.order {
		ordered = append(ordered, r.sources[key])
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	merged := map[string]any{}
	for _, s := range ordered {
		merged = deepMerge(merged, cloneMap(s.Data))
	}

	snap, err := decodeSnapshot(merged)
	if err != nil {
		restore()
		r.mu.Unlock()
		r.emitError(ErrorEvent{SourceKey: src.Key, Err: err, At: time.Now()})
		return err
	}
	if err := validate(snap); err != nil {
		restore()
		r.mu.Unlock()
		r.emitError(ErrorEvent{SourceKey: src.Key, Err: err, At: time.Now()})
		return err
	}

	prevSnap := r.snapshot
	prevRaw := r.rawMerged
	r.generation++
	snap.Generation = r.generation
	snap.Version = snap.Generation
	r.snapshot = snap
	r.rawMerged = merged
	r.mu.Unlock()

	changed := diffPaths("", prevRaw, merged)
	if prevRaw != nil {
		r.emitChange(ChangeEvent{
			Previous:     prevSnap,
			Current:      snap,
			ChangedPaths: changed,
			At:           time.Now(),
		})
	} else {
		r.emitChange(ChangeEvent{Current: snap, ChangedPaths: changed, At: time.Now()})
	}
	return nil
}

func (r *Resolver) emitChange(ev ChangeEvent) {
	r.subsMu.Lock()
	subs := append([]Subscriber(nil), r.subs...)
	r.subsMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(ev)
		}
	}
}

func (r *Resolver) emitError(ev ErrorEvent) {
	r.subsMu.Lock()
	subs := append([]ErrorSubscriber(nil), r.errSubs...)
	r.subsMu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(ev)
		}
	}
}

// EnableHotReload starts watching every loaded file source for
// changes, debouncing reloads by the given interval (§4.1/§9).
func (r *Resolver) EnableHotReload(debounce time.Duration) error {
	r.mu.Lock()
	if r.watcher != nil {
		r.mu.Unlock()
		return nil
	}
	paths := make([]string, 0, len(r.order))
	for _, key := range r.order {
		if len(key) > 5 && key[:5] == "file:" {
			paths = append(paths, key[5:])
		}
	}
	r.mu.Unlock()

	w, err := newWatcher(paths, debounce, r.reloadFile)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()
	return nil
}

// DisableHotReload stops the file watcher, if any.
func (r *Resolver) DisableHotReload() error {
	r.mu.Lock()
	w := r.watcher
	r.watcher = nil
	r.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Close()
}

func (r *Resolver) reloadFile(path string) {
	if err := r.LoadFile(path, LoadOptions{Priority: PriorityFile}); err != nil {
		r.emitError(ErrorEvent{SourceKey: "file:" + path, Err: err, At: time.Now()})
	}
}
