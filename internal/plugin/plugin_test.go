package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sker/internal/conflict"
	"sker/internal/container"
	"sker/internal/isolation"
	"sker/internal/registry"
)

func writeManifest(t *testing.T, dir, name, version string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	content := "name: " + name + "\nversion: " + version + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(content), 0o644))
}

func TestDiscoverFindsValidManifest(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "echoer"), "echoer", "1.0.0")

	candidates, err := Discover(root, DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, candidates[0].IsValid)
	assert.Equal(t, "echoer", candidates[0].Manifest.Name)
}

func TestDiscoverSkipsInvalidByDefault(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "broken")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte("version: 1.0.0\n"), 0o644))

	candidates, err := Discover(root, DiscoveryOptions{})
	require.NoError(t, err)
	assert.Empty(t, candidates)

	candidates, err = Discover(root, DiscoveryOptions{AllowInvalid: true})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.False(t, candidates[0].IsValid)
}

type echoServiceClass struct{}

func (echoServiceClass) Descriptors() []*registry.HandlerDescriptor {
	return []*registry.HandlerDescriptor{
		registry.NewTool("echo").Invoke(func(ctx context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		}).Build(),
	}
}

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	reg := registry.New()
	isolate := isolation.New(container.New())
	detector := conflict.New()
	return NewLoader(LoaderConfig{EngineVersion: "0.1.0"}, isolate, detector, reg)
}

func TestLoadRegistersDescriptorsAndEnables(t *testing.T) {
	RegisterFactory("echoer", func(c *container.Container) ([]ServiceClass, error) {
		return []ServiceClass{echoServiceClass{}}, nil
	})
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "echoer"), "echoer", "1.0.0")
	candidates, err := Discover(root, DiscoveryOptions{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	l := newTestLoader(t)
	p, err := l.Load(candidates[0])
	require.NoError(t, err)
	assert.Equal(t, StateEnabled, p.State)

	_, found := l.reg.Lookup(registry.KindTool, "echo")
	assert.True(t, found)
}

func TestLoadFailsWithoutRegisteredFactory(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "ghost"), "ghost-plugin", "1.0.0")
	candidates, err := Discover(root, DiscoveryOptions{})
	require.NoError(t, err)

	l := newTestLoader(t)
	p, err := l.Load(candidates[0])
	assert.Error(t, err)
	assert.Equal(t, StateFailed, p.State)
}

func TestUnloadRemovesDescriptors(t *testing.T) {
	RegisterFactory("echoer2", func(c *container.Container) ([]ServiceClass, error) {
		return []ServiceClass{echoServiceClass{}}, nil
	})
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "echoer2"), "echoer2", "1.0.0")
	candidates, err := Discover(root, DiscoveryOptions{})
	require.NoError(t, err)

	l := newTestLoader(t)
	_, err = l.Load(candidates[0])
	require.NoError(t, err)

	require.NoError(t, l.Unload("echoer2"))
	_, found := l.reg.Lookup(registry.KindTool, "echo")
	assert.False(t, found)
	_, ok := l.Get("echoer2")
	assert.False(t, ok)
}
