package cachekey_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/cachekey"
)

func baseState() cachekey.ElementState {
	return cachekey.ElementState{
		Kind:        "autotools",
		Variables:   map[string]string{"prefix": "/usr"},
		Environment: map[string]string{"PATH": "/usr/bin"},
		Config:      map[string]any{"configure-commands": []any{"./configure"}},
		Public:      map[string]any{},
		SourceFingerprints: []cachekey.SourceFingerprint{
			{Kind: "git", UniqueKey: "deadbeef"},
		},
		BuildDependencies: []cachekey.DependencyKey{
			{Name: "base", Key: "aaaa"},
			{Name: "libfoo", Key: "bbbb"},
		},
	}
}

func TestStrongKeyStableAcrossRuns(t *testing.T) {
	state := baseState()
	k1, err := cachekey.Strong(state)
	require.NoError(t, err)
	k2, err := cachekey.Strong(state)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)
}

func TestStrongKeyIndependentOfDependencyOrder(t *testing.T) {
	state := baseState()
	reordered := state
	reordered.BuildDependencies = []cachekey.DependencyKey{
		{Name: "libfoo", Key: "bbbb"},
		{Name: "base", Key: "aaaa"},
	}
	k1, err := cachekey.Strong(state)
	require.NoError(t, err)
	k2, err := cachekey.Strong(reordered)
	require.NoError(t, err)
	assert.Equal(t, k1, k2)
}

func TestStrongKeyChangesWithDependencyKey(t *testing.T) {
	state := baseState()
	k1, err := cachekey.Strong(state)
	require.NoError(t, err)

	changed := baseState()
	changed.BuildDependencies[1].Key = "cccc"
	k2, err := cachekey.Strong(changed)
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
}

func TestWeakKeyIgnoresDependencyKeyChanges(t *testing.T) {
	state := baseState()
	names := []string{"base", "libfoo"}

	w1, err := cachekey.Weak(state, names)
	require.NoError(t, err)

	changed := baseState()
	changed.BuildDependencies[1].Key = "totally-different"
	w2, err := cachekey.Weak(changed, names)
	require.NoError(t, err)

	assert.Equal(t, w1, w2, "weak key must only depend on dependency names")
}

func TestWeakKeyChangesWithDependencyName(t *testing.T) {
	state := baseState()
	w1, err := cachekey.Weak(state, []string{"base", "libfoo"})
	require.NoError(t, err)
	w2, err := cachekey.Weak(state, []string{"base", "libbar"})
	require.NoError(t, err)
	assert.NotEqual(t, w1, w2)
}

func TestEnvironmentMinusNoCache(t *testing.T) {
	env := map[string]string{"PATH": "/usr/bin", "BUILD_ID": "1234"}
	filtered := cachekey.EnvironmentMinusNoCache(env, []string{"BUILD_ID"})
	assert.Equal(t, map[string]string{"PATH": "/usr/bin"}, filtered)
}
