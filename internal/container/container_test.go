package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetResolvesValueProvider(t *testing.T) {
	c := New()
	c.RegisterValue("greeting", "hello")

	v, err := c.Get("greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestGetUnknownTokenFails(t *testing.T) {
	c := New()
	_, err := c.Get("missing")
	var target ErrUnknownToken
	assert.ErrorAs(t, err, &target)
}

func TestClassProviderInstantiatesLazilyAndCaches(t *testing.T) {
	c := New()
	calls := 0
	c.Register("svc", Provider{
		Kind: ProviderClass,
		Class: func(deps []any) (any, error) {
			calls++
			return struct{}{}, nil
		},
	})

	assert.Equal(t, 0, calls, "provider must not run before first Get")
	_, err := c.Get("svc")
	require.NoError(t, err)
	_, err = c.Get("svc")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "singleton must be cached per container")
}

func TestClassProviderResolvesDepsRecursively(t *testing.T) {
	c := New()
	c.RegisterValue("base", 2)
	c.Register("doubled", Provider{
		Kind: ProviderClass,
		Deps: []Token{"base"},
		Class: func(deps []any) (any, error) {
			return deps[0].(int) * 2, nil
		},
	})

	v, err := c.Get("doubled")
	require.NoError(t, err)
	assert.Equal(t, 4, v)
}

func TestCyclicDependencyDetected(t *testing.T) {
	c := New()
	c.Register("a", Provider{Kind: ProviderClass, Deps: []Token{"b"}, Class: func(deps []any) (any, error) { return nil, nil }})
	c.Register("b", Provider{Kind: ProviderClass, Deps: []Token{"a"}, Class: func(deps []any) (any, error) { return nil, nil }})

	_, err := c.Get("a")
	var target ErrCyclicDependency
	assert.True(t, errors.As(err, &target))
}

type fakeBridge struct {
	values map[Token]any
	denied map[Token]bool
}

func (b *fakeBridge) RequestFromParent(token Token) (any, bool, error) {
	if b.denied[token] {
		return nil, false, errors.New("permission denied")
	}
	v, ok := b.values[token]
	return v, ok, nil
}

func (b *fakeBridge) MultiFromParent(token Token) ([]any, error) {
	if v, ok := b.values[token]; ok {
		if list, isList := v.([]any); isList {
			return list, nil
		}
		return []any{v}, nil
	}
	return nil, nil
}

func TestChildDelegatesToParentThroughBridge(t *testing.T) {
	bridge := &fakeBridge{values: map[Token]any{"shared": "from-parent"}}
	child := NewChild(New(), bridge)

	v, err := child.Get("shared")
	require.NoError(t, err)
	assert.Equal(t, "from-parent", v)
}

func TestChildBridgeDenialSurfacesError(t *testing.T) {
	bridge := &fakeBridge{denied: map[Token]bool{"secret": true}}
	child := NewChild(New(), bridge)

	_, err := child.Get("secret")
	assert.Error(t, err)
}

func TestGetMultiConcatenatesChildThenParent(t *testing.T) {
	bridge := &fakeBridge{values: map[Token]any{"handlers": []any{"parent-1"}}}
	child := NewChild(New(), bridge)
	child.Register("handlers", Provider{Kind: ProviderValue, Value: "child-1", Multi: true})

	all, err := child.GetMulti("handlers")
	require.NoError(t, err)
	assert.Equal(t, []any{"child-1", "parent-1"}, all)
}
