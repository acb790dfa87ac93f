package plugin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSourceStagesRelativeToElementFile(t *testing.T) {
	projectDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "files", "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "files", "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "files", "sub", "b.txt"), []byte("b"), 0o644))

	src := NewLocalSource()
	require.NoError(t, src.Configure(Node{
		Data: map[string]any{"path": "files"},
		File: filepath.Join(projectDir, "elements", "hello.bst"),
	}))

	assert.NoError(t, src.Preflight(context.Background()))
	assert.Equal(t, Cached, src.Consistency())

	dest := t.TempDir()
	require.NoError(t, src.Stage(context.Background(), dest))

	got, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(got))
}

func TestLocalSourceConfigureRequiresPath(t *testing.T) {
	src := NewLocalSource()
	assert.Error(t, src.Configure(Node{Data: map[string]any{}}))
}

func TestLocalSourcePreflightFailsWhenMissing(t *testing.T) {
	src := NewLocalSource()
	require.NoError(t, src.Configure(Node{
		Data: map[string]any{"path": "does-not-exist"},
		File: filepath.Join(t.TempDir(), "elements", "hello.bst"),
	}))
	assert.Error(t, src.Preflight(context.Background()))
}
