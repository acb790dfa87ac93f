package plugin_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/plugin"
)

type recordingSandbox struct {
	marks []string
	runs  [][]string
}

func (s *recordingSandbox) Mark(path string, readOnly bool) error {
	s.marks = append(s.marks, path)
	return nil
}

func (s *recordingSandbox) StageTree(ctx context.Context, destPath, treeDigest string, overlap plugin.OverlapPolicy) error {
	return nil
}

func (s *recordingSandbox) Run(ctx context.Context, argv []string, opts plugin.RunOptions) error {
	s.runs = append(s.runs, argv)
	return nil
}

func (s *recordingSandbox) Root() string      { return "/" }
func (s *recordingSandbox) Stdout() io.Writer { return io.Discard }
func (s *recordingSandbox) Stderr() io.Writer { return io.Discard }

func TestBuildElementConfigureAndAssemble(t *testing.T) {
	e := plugin.NewBuildElement()
	err := e.Configure(plugin.Node{Data: map[string]any{
		"configure-commands": []any{"./configure --prefix=/usr"},
		"build-commands":     []any{"make"},
		"install-commands":   []any{"make install"},
		"pre-build-commands": []any{"echo starting"},
	}})
	require.NoError(t, err)
	require.Len(t, e.Groups, 3)

	sandbox := &recordingSandbox{}
	require.NoError(t, e.ConfigureSandbox(sandbox))
	assert.ElementsMatch(t, []string{plugin.NewBuildElement().BuildRoot, plugin.NewBuildElement().InstallRoot}, sandbox.marks)

	outputPath, err := e.Assemble(context.Background(), sandbox)
	require.NoError(t, err)
	assert.Equal(t, e.InstallRoot, outputPath)

	// pre-build-commands, build-commands in order
	require.Len(t, sandbox.runs, 4)
	assert.Contains(t, sandbox.runs[1][3], "echo starting")
	assert.Contains(t, sandbox.runs[2][3], "make")
}

func TestBuildElementGenerateScript(t *testing.T) {
	e := plugin.NewBuildElement()
	require.NoError(t, e.Configure(plugin.Node{Data: map[string]any{
		"build-commands": []any{"make"},
	}}))
	script, err := e.GenerateScript()
	require.NoError(t, err)
	assert.Contains(t, script, "make")
	assert.Contains(t, script, "#!/bin/sh")
}
