package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIncludesMergesFieldLevel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(`
variables:
  prefix: /usr
  debug: "no"
`), 0o644))

	node := map[string]any{
		"(@)": "base.yaml",
		"variables": map[string]any{
			"debug": "yes",
		},
	}

	resolved, err := resolveIncludes(node, dir, map[string]bool{})
	require.NoError(t, err)
	vars := resolved["variables"].(map[string]any)
	assert.Equal(t, "/usr", vars["prefix"])
	assert.Equal(t, "yes", vars["debug"])
}

func TestResolveIncludesDetectsCircularInclude(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.yaml")
	pathB := filepath.Join(dir, "b.yaml")
	require.NoError(t, os.WriteFile(pathA, []byte("(@): b.yaml\n"), 0o644))
	require.NoError(t, os.WriteFile(pathB, []byte("(@): a.yaml\n"), 0o644))

	node, err := decodeYAMLNode(pathA)
	require.NoError(t, err)
	_, err = resolveIncludes(node, dir, map[string]bool{pathA: true})
	assert.Error(t, err)
}

func TestResolveConditionalsAppliesMatchingClause(t *testing.T) {
	node := map[string]any{
		"variables": map[string]any{"prefix": "/usr"},
		"(?)": []any{
			[]any{"debug", map[string]any{"variables": map[string]any{"cflags": "-g"}}},
			[]any{"!debug", map[string]any{"variables": map[string]any{"cflags": "-O2"}}},
		},
	}

	resolved, err := resolveConditionals(node, map[string]string{"debug": "true"})
	require.NoError(t, err)
	vars := resolved["variables"].(map[string]any)
	assert.Equal(t, "/usr", vars["prefix"])
	assert.Equal(t, "-g", vars["cflags"])
}

func TestResolveConditionalsSkipsNonMatchingClause(t *testing.T) {
	node := map[string]any{
		"(?)": []any{
			[]any{"debug", map[string]any{"variables": map[string]any{"cflags": "-g"}}},
		},
	}
	resolved, err := resolveConditionals(node, map[string]string{"debug": "false"})
	require.NoError(t, err)
	assert.NotContains(t, resolved, "variables")
}

func TestEvalExprOperators(t *testing.T) {
	options := map[string]string{"debug": "true", "arch": "x86_64"}

	cases := []struct {
		expr string
		want bool
	}{
		{"debug", true},
		{"!debug", false},
		{"arch == \"x86_64\"", true},
		{"arch == \"aarch64\"", false},
		{"arch != \"aarch64\"", true},
		{"debug and arch == \"x86_64\"", true},
		{"!debug or arch == \"x86_64\"", true},
		{"(debug)", true},
		{"!(debug)", false},
	}
	for _, c := range cases {
		got, err := evalExpr(c.expr, options)
		require.NoError(t, err, c.expr)
		assert.Equal(t, c.want, got, c.expr)
	}
}

func TestEvalExprRejectsMalformedExpression(t *testing.T) {
	_, err := evalExpr("debug debug", map[string]string{"debug": "true"})
	assert.Error(t, err)
}
