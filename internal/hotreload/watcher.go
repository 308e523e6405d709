package hotreload

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// fileWatcher debounces fsnotify events on a dynamic set of watched
// paths, changed through Add and Remove, and invokes onChange once
// per settled burst. Uses the same debounce-timer idiom as
// internal/config's watcher, generalized here to a set that can grow
// and shrink as plugins are enrolled and unloaded.
type fileWatcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onChange func(path string)
	onError  func(error)

	mu      sync.Mutex
	watched map[string]bool // absolute path -> watched
	dirs    map[string]bool // watched directories
	timers  map[string]*time.Timer
	stopped chan struct{}
}

func newFileWatcher(debounce time.Duration, onChange func(path string), onError func(error)) (*fileWatcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &fileWatcher{
		fsw:      fsw,
		debounce: debounce,
		onChange: onChange,
		onError:  onError,
		watched:  map[string]bool{},
		dirs:     map[string]bool{},
		timers:   map[string]*time.Timer{},
		stopped:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Add enrolls path for watching. A directory is added to the
// underlying fsnotify watch itself, and changes to the files directly
// inside it fire; a file is covered through its parent directory.
func (w *fileWatcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		dir = abs
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.watched[abs] = true
	if !w.dirs[dir] {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
		w.dirs[dir] = true
	}
	return nil
}

// Remove stops tracking path; the parent directory watch is left in
// place since other enrolled files may still live there.
func (w *fileWatcher) Remove(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	w.mu.Lock()
	delete(w.watched, abs)
	if t, ok := w.timers[abs]; ok {
		t.Stop()
		delete(w.timers, abs)
	}
	w.mu.Unlock()
}

func (w *fileWatcher) run() {
	for {
		select {
		case <-w.stopped:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			abs, _ := filepath.Abs(ev.Name)
			w.mu.Lock()
			isWatched := w.watched[abs] || w.watched[filepath.Dir(abs)]
			w.mu.Unlock()
			if !isWatched {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceFire(abs)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}

func (w *fileWatcher) debounceFire(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.onChange(path)
	})
}

func (w *fileWatcher) Close() error {
	close(w.stopped)
	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}
