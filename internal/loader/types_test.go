package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDependencyStringShorthand(t *testing.T) {
	dep, err := parseDependency("libfoo.bst", DependAll)
	require := assert.New(t)
	require.NoError(err)
	require.Equal("libfoo.bst", dep.Name)
	require.Empty(dep.Junction)
}

func TestParseDependencyJunctionShorthand(t *testing.T) {
	dep, err := parseDependency("sub:libfoo.bst", DependAll)
	assert.NoError(t, err)
	assert.Equal(t, "libfoo.bst", dep.Name)
	assert.Equal(t, "sub", dep.Junction)
}

func TestParseDependencyMappingForm(t *testing.T) {
	raw := map[string]any{
		"filename": "libfoo.bst",
		"type":     "build",
		"junction": "sub",
	}
	dep, err := parseDependency(raw, DependAll)
	assert.NoError(t, err)
	assert.Equal(t, "libfoo.bst", dep.Name)
	assert.Equal(t, "sub", dep.Junction)
	assert.Equal(t, DependBuild, dep.Type)
}

func TestParseDependencyRejectsStrictFalse(t *testing.T) {
	raw := map[string]any{"filename": "libfoo.bst", "strict": false}
	_, err := parseDependency(raw, DependAll)
	assert.Error(t, err)
}

func TestParseDependencyRejectsRuntimeStrict(t *testing.T) {
	raw := map[string]any{"filename": "libfoo.bst", "type": "runtime", "strict": true}
	_, err := parseDependency(raw, DependAll)
	assert.Error(t, err)
}

func TestParseDependencyRejectsJunctionColonClash(t *testing.T) {
	raw := map[string]any{"filename": "sub:libfoo.bst", "junction": "sub"}
	_, err := parseDependency(raw, DependAll)
	assert.Error(t, err)
}

func TestParseDependencyRejectsMultipleColons(t *testing.T) {
	_, err := parseDependency("a:b:c", DependAll)
	assert.Error(t, err)
}

func TestDependencyTypePredicates(t *testing.T) {
	assert.True(t, DependAll.IsBuild())
	assert.True(t, DependAll.IsRuntime())
	assert.True(t, DependBuild.IsBuild())
	assert.False(t, DependBuild.IsRuntime())
	assert.False(t, DependRuntime.IsBuild())
	assert.True(t, DependRuntime.IsRuntime())
}

func TestElementID(t *testing.T) {
	assert.Equal(t, "foo.bst", ElementID("", "foo.bst"))
	assert.Equal(t, "sub:foo.bst", ElementID("sub", "foo.bst"))
}
