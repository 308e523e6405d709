package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher debounces fsnotify write events on a fixed set of files and
// invokes onChange once per settled burst, per file — the same
// debounce-loop shape a directory-watching detector uses, narrowed here
// to plain file watching instead of resource-directory watching.
type watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onChange func(path string)

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped chan struct{}
}

func newWatcher(paths []string, debounce time.Duration, onChange func(path string)) (*watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dirs := map[string]bool{}
	for _, p := range paths {
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}

	w := &watcher{
		fsw:      fsw,
		debounce: debounce,
		onChange: onChange,
		timers:   map[string]*time.Timer{},
		stopped:  make(chan struct{}),
	}
	watched := map[string]bool{}
	for _, p := range paths {
		abs, _ := filepath.Abs(p)
		watched[abs] = true
	}
	go w.run(watched)
	return w, nil
}

func (w *watcher) run(watched map[string]bool) {
	for {
		select {
		case <-w.stopped:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			abs, _ := filepath.Abs(ev.Name)
			if !watched[abs] {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceFire(ev.Name)
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *watcher) debounceFire(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.onChange(path)
	})
}

func (w *watcher) Close() error {
	close(w.stopped)
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
