package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sker/internal/container"
	"sker/internal/hotreload"
	"sker/internal/plugin"
	"sker/internal/registry"
)

func writeManifest(t *testing.T, dir, name, version string, dev bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "name: " + name + "\nversion: " + version + "\n"
	if dev {
		content += "dev: true\n"
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(content), 0o644))
}

type greeterServiceClass struct{ text string }

func (s greeterServiceClass) Descriptors() []*registry.HandlerDescriptor {
	return []*registry.HandlerDescriptor{
		registry.NewTool("greet").Invoke(func(ctx context.Context, args map[string]any) (any, error) {
			return s.text, nil
		}).Build(),
	}
}

func newTestApp(t *testing.T, homeDir string) *Application {
	t.Helper()
	a, err := NewApplication(Options{HomeDir: homeDir, EngineVersion: "0.1.0"})
	require.NoError(t, err)
	return a
}

func TestStartAndStopRoundTrip(t *testing.T) {
	home := t.TempDir()
	a := newTestApp(t, home)

	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, StateRunning, a.State())

	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, StateStopped, a.State())
	require.NoError(t, a.Close())
}

func TestStartIsIdempotentWhenAlreadyRunning(t *testing.T) {
	home := t.TempDir()
	a := newTestApp(t, home)

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, StateRunning, a.State())
	require.NoError(t, a.Stop(context.Background()))
}

func TestStopIsIdempotentWhenAlreadyStopped(t *testing.T) {
	a := newTestApp(t, t.TempDir())
	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, StateStopped, a.State())
}

func TestStartLoadsDiscoveredPlugins(t *testing.T) {
	plugin.RegisterFactory("greeter-app", func(c *container.Container) ([]plugin.ServiceClass, error) {
		return []plugin.ServiceClass{greeterServiceClass{text: "hi"}}, nil
	})

	home := t.TempDir()
	writeManifest(t, filepath.Join(home, "plugins", "greeter-app"), "greeter-app", "1.0.0", false)

	a := newTestApp(t, home)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	names := map[string]bool{}
	for _, p := range a.loader.List() {
		names[p.Name] = true
	}
	assert.True(t, names["greeter-app"])

	_, found := a.reg.Lookup(registry.KindTool, "greet")
	assert.True(t, found)
}

func TestStartUnwindsPreviouslyLoadedPluginsOnFailure(t *testing.T) {
	plugin.RegisterFactory("good-app", func(c *container.Container) ([]plugin.ServiceClass, error) {
		return []plugin.ServiceClass{greeterServiceClass{text: "hi"}}, nil
	})
	// "bad-app" is deliberately left without a registered factory so its
	// Load fails and the errgroup reports the first error.

	home := t.TempDir()
	writeManifest(t, filepath.Join(home, "plugins", "good-app"), "good-app", "1.0.0", false)
	writeManifest(t, filepath.Join(home, "plugins", "bad-app"), "bad-app", "1.0.0", false)

	a := newTestApp(t, home)

	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateError, a.State())
	assert.Empty(t, a.loader.List())
}

func TestStopTearsDownHotReloadWatcher(t *testing.T) {
	plugin.RegisterFactory("dev-app", func(c *container.Container) ([]plugin.ServiceClass, error) {
		return []plugin.ServiceClass{greeterServiceClass{text: "hi"}}, nil
	})

	home := t.TempDir()
	writeManifest(t, filepath.Join(home, "plugins", "dev-app"), "dev-app", "1.0.0", true)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "config", "app.yaml"),
		[]byte("plugins:\n  discovery:\n    watch: true\n"), 0o644))

	a := newTestApp(t, home)
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, hotreload.StateWatching, a.hot.State())

	require.NoError(t, a.Stop(context.Background()))
	assert.Equal(t, hotreload.StateIdle, a.hot.State())
}

func TestGlobalMiddlewareIsAppliedToLoadedPlugins(t *testing.T) {
	plugin.RegisterFactory("mw-app", func(c *container.Container) ([]plugin.ServiceClass, error) {
		return []plugin.ServiceClass{greeterServiceClass{text: "hi"}}, nil
	})

	home := t.TempDir()
	writeManifest(t, filepath.Join(home, "plugins", "mw-app"), "mw-app", "1.0.0", false)
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "config", "app.yaml"),
		[]byte("security:\n  rateLimit:\n    enabled: true\n    maxRequests: 5\n    windowMs: 1000\n"), 0o644))

	a := newTestApp(t, home)
	require.NoError(t, a.Start(context.Background()))
	defer a.Stop(context.Background())

	result, err := a.dispatcher.Dispatch(context.Background(), registry.KindTool, "greet", map[string]any{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hi", result)
}

