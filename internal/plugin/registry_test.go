package plugin_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/plugin"
)

type stubSource struct{}

func (stubSource) Configure(plugin.Node) error                { return nil }
func (stubSource) Preflight(context.Context) error            { return nil }
func (stubSource) UniqueKey() (any, error)                    { return "stub", nil }
func (stubSource) Consistency() plugin.Consistency             { return plugin.Cached }
func (stubSource) LoadRef(plugin.Node) error                  { return nil }
func (stubSource) GetRef() (string, bool)                     { return "", false }
func (stubSource) SetRef(string, plugin.Node) error           { return nil }
func (stubSource) Track(context.Context) (string, error)      { return "", nil }
func (stubSource) Fetch(context.Context) error                { return nil }
func (stubSource) Stage(context.Context, string) error        { return nil }
func (stubSource) InitWorkspace(context.Context, string) error { return nil }

func TestRegistryRegisterAndConstructSource(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.RegisterSource("stub", func() plugin.Source { return stubSource{} }))

	src, err := r.NewSource("stub")
	require.NoError(t, err)
	assert.Equal(t, plugin.Cached, src.Consistency())
	assert.Equal(t, []string{"stub"}, r.SourceKinds())
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	r := plugin.NewRegistry()
	require.NoError(t, r.RegisterSource("stub", func() plugin.Source { return stubSource{} }))
	err := r.RegisterSource("stub", func() plugin.Source { return stubSource{} })
	require.Error(t, err)
}

func TestRegistryUnknownKind(t *testing.T) {
	r := plugin.NewRegistry()
	_, err := r.NewSource("nonexistent")
	require.Error(t, err)
}
