package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixpointResolveSubstitutesChainedReferences(t *testing.T) {
	resolved, err := fixpointResolve(map[string]string{
		"prefix":  "/usr",
		"bindir":  "%{prefix}/bin",
		"install": "install -d %{bindir}",
	})
	require.NoError(t, err)
	assert.Equal(t, "/usr", resolved["prefix"])
	assert.Equal(t, "/usr/bin", resolved["bindir"])
	assert.Equal(t, "install -d /usr/bin", resolved["install"])
}

func TestFixpointResolveRejectsUndeclaredVariable(t *testing.T) {
	_, err := fixpointResolve(map[string]string{
		"bindir": "%{prefix}/bin",
	})
	assert.ErrorContains(t, err, "unresolved variable")
}

func TestFixpointResolveRejectsCycle(t *testing.T) {
	_, err := fixpointResolve(map[string]string{
		"a": "%{b}",
		"b": "%{a}",
	})
	assert.ErrorContains(t, err, "unresolved variable")
}

func TestResolveVariablesSubstitutesIntoEnvironmentAndConfig(t *testing.T) {
	elem := &Element{
		Variables:   map[string]string{"prefix": "/opt", "max-jobs": "4"},
		Environment: map[string]string{"PATH": "%{prefix}/bin"},
		Config: map[string]any{
			"build-commands": []any{"make -j%{max-jobs}", "make install DESTDIR=%{prefix}"},
		},
	}
	require.NoError(t, resolveVariables("foo.bst", elem))

	assert.Equal(t, "/opt/bin", elem.Environment["PATH"])
	commands := elem.Config["build-commands"].([]any)
	assert.Equal(t, "make -j4", commands[0])
	assert.Equal(t, "make install DESTDIR=/opt", commands[1])
}

func TestResolveVariablesRejectsUnresolvedReferenceInConfig(t *testing.T) {
	elem := &Element{
		Variables: map[string]string{"prefix": "/opt"},
		Config:    map[string]any{"build-commands": []any{"make install DESTDIR=%{missing}"}},
	}
	err := resolveVariables("foo.bst", elem)
	assert.ErrorContains(t, err, "unresolved variable")
	assert.ErrorContains(t, err, "missing")
}
