package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildElementRejectsUnrecognizedKey(t *testing.T) {
	node := map[string]any{"kind": "manual", "bogus": "x"}
	_, err := buildElement("foo.bst", "", "foo.bst", node)
	assert.Error(t, err)
}

func TestBuildElementRequiresKind(t *testing.T) {
	_, err := buildElement("foo.bst", "", "foo.bst", map[string]any{})
	assert.Error(t, err)
}

func TestBuildElementParsesCoreFields(t *testing.T) {
	node := map[string]any{
		"kind": "manual",
		"sources": []any{
			map[string]any{"kind": "git", "url": "https://example.com/repo.git"},
		},
		"depends":              []any{"base.bst"},
		"build-depends":        []any{"libfoo.bst"},
		"runtime-depends":      []any{"libbar.bst"},
		"variables":            map[string]any{"prefix": "/usr"},
		"environment":          map[string]any{"PATH": "/usr/bin"},
		"environment-nocache":  []any{"PATH"},
		"config":               map[string]any{"build-commands": []any{"make"}},
		"public":               map[string]any{"bst": map[string]any{}},
		"sandbox":              map[string]any{"build-uid": 0},
		"description":          "an element",
	}

	elem, err := buildElement("foo.bst", "", "foo.bst", node)
	require.NoError(t, err)
	assert.Equal(t, "manual", elem.Kind)
	assert.Len(t, elem.Sources, 1)
	assert.Equal(t, "git", elem.Sources[0].Kind)
	assert.Len(t, elem.Depends, 3)
	assert.Equal(t, "/usr", elem.Variables["prefix"])
	assert.Equal(t, []string{"PATH"}, elem.EnvNoCache)
	assert.Equal(t, "an element", elem.Description)
}

func TestBuildElementRejectsNonMappingSource(t *testing.T) {
	node := map[string]any{"kind": "manual", "sources": []any{"not-a-mapping"}}
	_, err := buildElement("foo.bst", "", "foo.bst", node)
	assert.Error(t, err)
}

func TestElementIsJunction(t *testing.T) {
	elem := &Element{Kind: "junction"}
	assert.True(t, elem.IsJunction())
	elem.Kind = "manual"
	assert.False(t, elem.IsJunction())
}

func TestSortDependenciesOrdersByTopologyThenTypeThenName(t *testing.T) {
	deps := []Dependency{
		{Name: "z.bst", Type: DependRuntime},
		{Name: "a.bst", Type: DependBuild},
		{Name: "m.bst", Type: DependBuild},
	}
	topoIndex := map[string]int{"z.bst": 0, "a.bst": 2, "m.bst": 1}

	SortDependencies(deps, topoIndex)

	names := []string{deps[0].Name, deps[1].Name, deps[2].Name}
	assert.Equal(t, []string{"z.bst", "m.bst", "a.bst"}, names)
}

func TestSortDependenciesPutsBuildBeforeRuntimeWhenTopoTies(t *testing.T) {
	deps := []Dependency{
		{Name: "b.bst", Type: DependRuntime},
		{Name: "a.bst", Type: DependBuild},
	}
	topoIndex := map[string]int{}

	SortDependencies(deps, topoIndex)

	assert.Equal(t, "a.bst", deps[0].Name)
	assert.Equal(t, "b.bst", deps[1].Name)
}

func TestSortDependenciesPutsLocalBeforeJunctioned(t *testing.T) {
	deps := []Dependency{
		{Name: "a.bst", Junction: "sub", Type: DependBuild},
		{Name: "a.bst", Type: DependBuild},
	}
	topoIndex := map[string]int{}

	SortDependencies(deps, topoIndex)

	assert.Empty(t, deps[0].Junction)
	assert.Equal(t, "sub", deps[1].Junction)
}
