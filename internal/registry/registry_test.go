package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDescriptor(name string) *HandlerDescriptor {
	return NewTool(name).
		Param(InputParam{Name: "text", Schema: Schema{Type: "string"}, Required: true}).
		Invoke(func(ctx context.Context, args map[string]any) (any, error) {
			return args["text"], nil
		}).
		Build()
}

func TestInstallAndLookup(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Install("plugin-a", []*HandlerDescriptor{echoDescriptor("echo")}))

	d, ok := reg.Lookup(KindTool, "echo")
	require.True(t, ok)
	assert.Equal(t, "plugin-a", d.PluginName)
}

func TestInstallRejectsNameCollisionAcrossPlugins(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Install("plugin-a", []*HandlerDescriptor{echoDescriptor("echo")}))

	err := reg.Install("plugin-b", []*HandlerDescriptor{echoDescriptor("echo")})
	assert.Error(t, err)

	d, _ := reg.Lookup(KindTool, "echo")
	assert.Equal(t, "plugin-a", d.PluginName)
}

func TestInstallIsAllOrNothing(t *testing.T) {
	reg := New()
	descriptors := []*HandlerDescriptor{
		echoDescriptor("good"),
		{Kind: "bogus", Name: "bad"},
	}
	err := reg.Install("plugin-a", descriptors)
	require.Error(t, err)

	_, ok := reg.Lookup(KindTool, "good")
	assert.False(t, ok, "partial install must not leave any descriptor installed")
}

func TestUninstallAllForRemovesOwnedDescriptors(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Install("plugin-a", []*HandlerDescriptor{echoDescriptor("echo")}))
	reg.UninstallAllFor("plugin-a")

	_, ok := reg.Lookup(KindTool, "echo")
	assert.False(t, ok)
}

func TestSameNameAllowedAcrossKinds(t *testing.T) {
	reg := New()
	tool := echoDescriptor("thing")
	resource := NewResource("thing", "res://thing").Build()
	require.NoError(t, reg.Install("plugin-a", []*HandlerDescriptor{tool, resource}))

	_, ok := reg.Lookup(KindTool, "thing")
	assert.True(t, ok)
	_, ok = reg.Lookup(KindResource, "thing")
	assert.True(t, ok)
}

func TestBuilderSortsMiddlewareByPriority(t *testing.T) {
	d := NewTool("ordered").
		Middleware(
			MiddlewareEntry{ID: "b", Priority: 5},
			MiddlewareEntry{ID: "a", Priority: 1},
		).
		Build()
	require.Len(t, d.Middleware, 2)
	assert.Equal(t, "a", d.Middleware[0].ID)
	assert.Equal(t, "b", d.Middleware[1].ID)
}

func TestInputSchemaIsProductOfParams(t *testing.T) {
	d := NewTool("sum").
		Param(InputParam{Name: "a", Schema: Schema{Type: "integer"}, Required: true}).
		Param(InputParam{Name: "b", Schema: Schema{Type: "integer"}, Required: true}).
		Build()
	schema := d.InputSchema()
	assert.Len(t, schema.Properties, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, schema.Required)
}

func TestSnapshotReturnsConsistentView(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Install("plugin-a", []*HandlerDescriptor{echoDescriptor("echo")}))
	snap := reg.Snapshot()
	assert.Len(t, snap.Tools, 1)
	assert.Empty(t, snap.Resources)
}

func TestSubscribeFiresOnInstallAndUninstall(t *testing.T) {
	reg := New()
	calls := 0
	reg.Subscribe(func() { calls++ })

	require.NoError(t, reg.Install("plugin-a", []*HandlerDescriptor{echoDescriptor("echo")}))
	assert.Equal(t, 1, calls)

	reg.UninstallAllFor("plugin-a")
	assert.Equal(t, 2, calls)
}

func TestUnsubscribeStopsFutureNotifications(t *testing.T) {
	reg := New()
	calls := 0
	unsubscribe := reg.Subscribe(func() { calls++ })
	unsubscribe()

	require.NoError(t, reg.Install("plugin-a", []*HandlerDescriptor{echoDescriptor("echo")}))
	assert.Equal(t, 0, calls)
}
