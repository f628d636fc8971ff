package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func staticAdapter(names ...string) Adapter {
	return func(_ *Context) []*Definition {
		var defs []*Definition
		for _, name := range names {
			defs = append(defs, &Definition{
				Name: name,
				Execute: func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
					return json.RawMessage(`{}`), nil
				},
			})
		}
		return defs
	}
}

func TestContextIsEnabled(t *testing.T) {
	tc := &Context{EnabledTools: []string{"web_search"}}
	require.True(t, tc.IsEnabled("web_search"))
	require.False(t, tc.IsEnabled("image_generation"))
}

func TestRegistryMergesAdapters(t *testing.T) {
	registry := NewRegistry(staticAdapter("a"), staticAdapter("b", "c"))

	resolved := registry.Resolve(&Context{})
	require.Len(t, resolved, 3)
	require.Contains(t, resolved, "a")
	require.Contains(t, resolved, "b")
	require.Contains(t, resolved, "c")
}

func TestRegistryLaterAdapterWinsOnCollision(t *testing.T) {
	first := func(_ *Context) []*Definition {
		return []*Definition{{Name: "dup", Description: "first"}}
	}
	second := func(_ *Context) []*Definition {
		return []*Definition{{Name: "dup", Description: "second"}}
	}
	registry := NewRegistry(first, second)

	resolved := registry.Resolve(&Context{})
	require.Len(t, resolved, 1)
	require.Equal(t, "second", resolved["dup"].Description)
}

func TestRegistrySkipsNilAndUnnamedDefinitions(t *testing.T) {
	adapter := func(_ *Context) []*Definition {
		return []*Definition{nil, {Name: ""}, {Name: "real"}}
	}
	registry := NewRegistry(adapter)

	resolved := registry.Resolve(&Context{})
	require.Len(t, resolved, 1)
	require.Contains(t, resolved, "real")
}

func TestDisabledAdapterContributesNothing(t *testing.T) {
	gated := func(tc *Context) []*Definition {
		if !tc.IsEnabled("web_search") {
			return nil
		}
		return []*Definition{{Name: "web_search"}}
	}
	registry := NewRegistry(gated)

	require.Empty(t, registry.Resolve(&Context{}))
	require.Len(t, registry.Resolve(&Context{EnabledTools: []string{"web_search"}}), 1)
}
