package hotreload

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sker/internal/conflict"
	"sker/internal/container"
	"sker/internal/isolation"
	"sker/internal/plugin"
	"sker/internal/registry"
)

type recordingLogger struct {
	mu    sync.Mutex
	infos []string
	errs  []string
}

func newRecordingLogger() *recordingLogger { return &recordingLogger{} }

func (l *recordingLogger) Info(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, format)
}

func (l *recordingLogger) Error(err error, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, format)
}

func (l *recordingLogger) errCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errs)
}

func writeManifest(t *testing.T, dir, name, version string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "name: " + name + "\nversion: " + version + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(content), 0o644))
}

type reloadableServiceClass struct{ text string }

func (s reloadableServiceClass) Descriptors() []*registry.HandlerDescriptor {
	return []*registry.HandlerDescriptor{
		registry.NewTool("greeting").Invoke(func(ctx context.Context, args map[string]any) (any, error) {
			return s.text, nil
		}).Build(),
	}
}

func newTestLoader() *plugin.Loader {
	reg := registry.New()
	isolate := isolation.New(container.New())
	detector := conflict.New()
	return plugin.NewLoader(plugin.LoaderConfig{EngineVersion: "0.1.0"}, isolate, detector, reg)
}

func TestStartTransitionsIdleToWatching(t *testing.T) {
	loader := newTestLoader()
	m := New(loader, Config{Debounce: 10 * time.Millisecond}, nil)
	assert.Equal(t, StateIdle, m.State())
	require.NoError(t, m.Start())
	assert.Equal(t, StateWatching, m.State())
	require.NoError(t, m.Stop())
	assert.Equal(t, StateIdle, m.State())
}

func TestFileChangeTriggersReload(t *testing.T) {
	plugin.RegisterFactory("greeter", func(c *container.Container) ([]plugin.ServiceClass, error) {
		return []plugin.ServiceClass{reloadableServiceClass{text: "v1"}}, nil
	})

	root := t.TempDir()
	dir := filepath.Join(root, "greeter")
	writeManifest(t, dir, "greeter", "1.0.0")

	candidates, err := plugin.Discover(root, plugin.DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	loader := newTestLoader()
	_, err = loader.Load(candidates[0])
	require.NoError(t, err)

	logger := newRecordingLogger()
	m := New(loader, Config{Debounce: 10 * time.Millisecond}, logger)
	require.NoError(t, m.Enroll("greeter", dir))
	require.NoError(t, m.Start())
	defer m.Stop()

	plugin.RegisterFactory("greeter", func(c *container.Container) ([]plugin.ServiceClass, error) {
		return []plugin.ServiceClass{reloadableServiceClass{text: "v2"}}, nil
	})
	writeManifest(t, dir, "greeter", "1.0.1")

	require.Eventually(t, func() bool {
		for _, p := range loader.List() {
			if p.Name == "greeter" && p.Version == "1.0.1" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond)
}

func TestUnenrollStopsWatchingDirectory(t *testing.T) {
	loader := newTestLoader()
	m := New(loader, Config{Debounce: 10 * time.Millisecond}, nil)
	dir := t.TempDir()
	require.NoError(t, m.Enroll("p", dir))
	require.NoError(t, m.Start())
	m.Unenroll(dir)
	assert.Equal(t, StateWatching, m.State())
	require.NoError(t, m.Stop())
}

func TestOnChangeLogsAndSurvivesMissingManifest(t *testing.T) {
	loader := newTestLoader()
	logger := newRecordingLogger()
	m := New(loader, Config{Debounce: 10 * time.Millisecond}, logger)
	dir := t.TempDir()
	require.NoError(t, m.Enroll("ghost", dir))
	require.NoError(t, m.Start())
	defer m.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		return logger.errCount() > 0
	}, 2*time.Second, 20*time.Millisecond)
}
