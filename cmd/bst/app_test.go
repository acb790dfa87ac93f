package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCmd(t *testing.T, values []string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "x"}
	cmd.Flags().StringSlice(optionFlag, values, "")
	return cmd
}

func TestParseOptionFlagsSplitsKeyValuePairs(t *testing.T) {
	cmd := newFlagCmd(t, []string{"arch=x86_64", "debug=true"})
	got, err := parseOptionFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"arch": "x86_64", "debug": "true"}, got)
}

func TestParseOptionFlagsRejectsMissingEquals(t *testing.T) {
	cmd := newFlagCmd(t, []string{"not-a-pair"})
	_, err := parseOptionFlags(cmd)
	assert.Error(t, err)
}

func TestUserConfigPathIsUnderDotConfig(t *testing.T) {
	path := userConfigPath()
	if path == "" {
		t.Skip("no home directory resolvable in this environment")
	}
	assert.Contains(t, path, ".config/bst/bst.conf")
}
