package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolverSeedsDefaults(t *testing.T) {
	r, err := NewResolver()
	require.NoError(t, err)

	snap := r.Get()
	assert.Equal(t, "sker-daemon-mcp", snap.Server.Name)
	assert.Equal(t, TransportStdio, snap.Server.Transport.Type)
	assert.Equal(t, "info", snap.Logging.Level)
	assert.Equal(t, "service", snap.Plugins.Isolation.Default)
	assert.Equal(t, 1, snap.Generation)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  name: custom-daemon\nlogging:\n  level: debug\n"), 0o644))

	r, err := NewResolver()
	require.NoError(t, err)
	require.NoError(t, r.LoadFile(path, LoadOptions{}))

	snap := r.Get()
	assert.Equal(t, "custom-daemon", snap.Server.Name)
	assert.Equal(t, "debug", snap.Logging.Level)
	// untouched fields keep their defaults
	assert.Equal(t, TransportStdio, snap.Server.Transport.Type)
}

func TestEnvVarsOutrankFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	r, err := NewResolver()
	require.NoError(t, err)
	require.NoError(t, r.LoadFile(path, LoadOptions{}))

	warnings := r.LoadEnvVars([]string{"SKER_LOG_LEVEL=warn", "SKER_BOGUS=1"})
	require.Len(t, warnings, 1)

	snap := r.Get()
	assert.Equal(t, "warn", snap.Logging.Level)
}

func TestArraysOverwriteNotConcatenate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("plugins:\n  discovery:\n    directories: [other]\n"), 0o644))

	r, err := NewResolver()
	require.NoError(t, err)
	require.NoError(t, r.LoadFile(path, LoadOptions{}))

	snap := r.Get()
	require.Equal(t, []string{"other"}, snap.Plugins.Discovery.Directories)
}

func TestInvalidUpdateRejectedSnapshotUnchanged(t *testing.T) {
	r, err := NewResolver()
	require.NoError(t, err)
	before := r.Get()

	err = r.Update(map[string]any{"server": map[string]any{"transport": map[string]any{"type": "carrier-pigeon"}}}, "bad-update")
	require.Error(t, err)

	after := r.Get()
	assert.Equal(t, before.Generation, after.Generation)
	assert.Equal(t, TransportStdio, after.Server.Transport.Type)
}

func TestSubscribeReceivesChangedPaths(t *testing.T) {
	r, err := NewResolver()
	require.NoError(t, err)

	var got ChangeEvent
	unsub := r.Subscribe(func(ev ChangeEvent) { got = ev })
	defer unsub()

	require.NoError(t, r.SetPath("logging.level", "verbose"))

	assert.Contains(t, got.ChangedPaths, "logging.level")
	assert.Equal(t, "verbose", got.Current.Logging.Level)
}

func TestErrorSubscriberFiresOnRejectedUpdate(t *testing.T) {
	r, err := NewResolver()
	require.NoError(t, err)

	var got ErrorEvent
	unsub := r.SubscribeErrors(func(ev ErrorEvent) { got = ev })
	defer unsub()

	err = r.Update(map[string]any{"plugins": map[string]any{"loading": map[string]any{"maxConcurrent": 0}}}, "bad")
	require.Error(t, err)
	assert.Equal(t, "bad", got.SourceKey)
	assert.Error(t, got.Err)
}

func TestHotReloadPicksUpFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0o644))

	r, err := NewResolver()
	require.NoError(t, err)
	require.NoError(t, r.LoadFile(path, LoadOptions{}))
	require.NoError(t, r.EnableHotReload(50*time.Millisecond))
	defer r.DisableHotReload()

	done := make(chan struct{})
	unsub := r.Subscribe(func(ev ChangeEvent) {
		if ev.Current.Logging.Level == "debug" {
			close(done)
		}
	})
	defer unsub()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for hot reload")
	}
}

func TestGetPathFallsBackToDefault(t *testing.T) {
	r, err := NewResolver()
	require.NoError(t, err)
	assert.Equal(t, "fallback", r.GetPath("plugins.plugins.custom.nonexistent", "fallback"))
}

func TestEncodeDecodeSnapshotRoundTrip(t *testing.T) {
	r, err := NewResolver()
	require.NoError(t, err)
	snap := r.Get()

	m, err := encodeSnapshot(snap)
	require.NoError(t, err)
	again, err := decodeSnapshot(m)
	require.NoError(t, err)
	assert.Equal(t, snap.Server.Name, again.Server.Name)
	assert.Equal(t, snap.Logging.Level, again.Logging.Level)
}
