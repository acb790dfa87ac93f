package enum_test

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/logging/enum"
)

func TestNewPanicsWithoutOptions(t *testing.T) {
	assert.Panics(t, func() { enum.New() })
}

func TestNewDefaultsToFirstOption(t *testing.T) {
	f := enum.New("a", "b", "c")
	assert.Equal(t, "a", f.String())
}

func TestSetRejectsUnknownValue(t *testing.T) {
	f := enum.New("a", "b")
	require.Error(t, f.Set("z"))
	assert.Equal(t, "a", f.String())
}

func TestVarAndGetRoundTrip(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	enum.Var(fs, "mode", []string{"fast", "slow"}, "usage")

	require.NoError(t, fs.Set("mode", "slow"))
	value, err := enum.Get(fs, "mode")
	require.NoError(t, err)
	assert.Equal(t, "slow", value)
}

func TestGetUnregisteredFlag(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := enum.Get(fs, "missing")
	assert.Error(t, err)
}
