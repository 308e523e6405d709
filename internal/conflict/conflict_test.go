package conflict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sker/internal/registry"
)

func toolDescriptor(name string) *registry.HandlerDescriptor {
	return registry.NewTool(name).Build()
}

func TestToolNameConflictDetectedAcrossCandidates(t *testing.T) {
	d := New()
	candidates := []CandidatePlugin{
		{Name: "a", Descriptors: []*registry.HandlerDescriptor{toolDescriptor("echo")}},
		{Name: "b", Descriptors: []*registry.HandlerDescriptor{toolDescriptor("echo")}},
	}
	conflicts := d.Detect(candidates, registry.Snapshot{})
	require.Len(t, conflicts, 1)
	assert.Equal(t, TypeToolName, conflicts[0].Type)
	assert.ElementsMatch(t, []string{"a", "b"}, conflicts[0].Plugins)
}

func TestToolNameConflictAgainstInstalledRegistry(t *testing.T) {
	d := New()
	installed := toolDescriptor("echo")
	installed.PluginName = "existing"
	candidates := []CandidatePlugin{
		{Name: "new", Descriptors: []*registry.HandlerDescriptor{toolDescriptor("echo")}},
	}
	conflicts := d.Detect(candidates, registry.Snapshot{Tools: []*registry.HandlerDescriptor{installed}})
	require.Len(t, conflicts, 1)
	assert.Contains(t, conflicts[0].Plugins, "existing")
}

func TestPluginNameVersionDuplicateIsError(t *testing.T) {
	d := New()
	candidates := []CandidatePlugin{
		{Name: "dup", Version: "1.0.0"},
		{Name: "dup", Version: "1.0.0"},
	}
	conflicts := d.Detect(candidates, registry.Snapshot{})
	require.Len(t, conflicts, 1)
	assert.Equal(t, SeverityError, conflicts[0].Severity)
}

func TestServiceClassConflictSeverityDependsOnIsolation(t *testing.T) {
	d := New()
	candidates := []CandidatePlugin{
		{Name: "a", ServiceClasses: []string{"Widget"}, IsolationLevel: "none"},
		{Name: "b", ServiceClasses: []string{"Widget"}},
	}
	conflicts := d.Detect(candidates, registry.Snapshot{})
	require.Len(t, conflicts, 1)
	assert.Equal(t, SeverityWarning, conflicts[0].Severity)
}

func TestCompatRuleFlagsUnsupportedVersion(t *testing.T) {
	d := New()
	candidates := []CandidatePlugin{{Name: "a", MCPVersion: "1999-01-01"}}
	conflicts := d.Detect(candidates, registry.Snapshot{})
	require.Len(t, conflicts, 1)
	assert.Equal(t, TypeCompat, conflicts[0].Type)
}

func TestCustomRuleIsInvoked(t *testing.T) {
	d := New()
	called := false
	d.RegisterRule(Rule{
		Name: "custom",
		Detect: func(candidates []CandidatePlugin, current registry.Snapshot) []Conflict {
			called = true
			return nil
		},
	})
	d.Detect(nil, registry.Snapshot{})
	assert.True(t, called)
}

func TestResolveFirstWins(t *testing.T) {
	c := Conflict{Type: TypeToolName, Plugins: []string{"a", "b"}}
	res, err := Resolve(c, StrategyFirstWins, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"b"}, res.AffectedPlugins)
}

func TestResolvePriorityPicksConfiguredWinner(t *testing.T) {
	c := Conflict{Type: TypeToolName, Plugins: []string{"a", "b"}}
	res, err := Resolve(c, StrategyPriority, []string{"b", "a"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"a"}, res.AffectedPlugins)
}

func TestResolveRejectsDisallowedStrategy(t *testing.T) {
	c := Conflict{Type: TypePluginNameVersion, Plugins: []string{"a"}}
	_, err := Resolve(c, StrategyFirstWins, nil)
	assert.Error(t, err)
}

func TestResolveManualNeverSucceeds(t *testing.T) {
	c := Conflict{Type: TypeToolName, Plugins: []string{"a", "b"}}
	res, err := Resolve(c, StrategyManual, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
}
