package logging_test

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/logging"
)

func newTestCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{Use: "test"}
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	logging.RegisterFlags(cmd.PersistentFlags())
	require.NoError(t, cmd.ParseFlags(nil))
	return cmd, &out
}

func TestFromCommandDefaultsToTextWarnStdout(t *testing.T) {
	cmd, out := newTestCommand(t)
	logger, err := logging.FromCommand(cmd)
	require.NoError(t, err)

	logger.Info("should not appear")
	logger.Warn("should appear")
	assert.NotContains(t, out.String(), "should not appear")
	assert.Contains(t, out.String(), "should appear")
}

func TestFromCommandJSONFormat(t *testing.T) {
	cmd, out := newTestCommand(t)
	require.NoError(t, cmd.Flags().Set(logging.FormatFlagName, logging.FormatJSON))
	require.NoError(t, cmd.Flags().Set(logging.LevelFlagName, logging.LevelDebug))

	logger, err := logging.FromCommand(cmd)
	require.NoError(t, err)
	logger.Debug("structured message")
	assert.Contains(t, out.String(), `"msg":"structured message"`)
}

func TestFromCommandRejectsInvalidFlagValue(t *testing.T) {
	cmd, _ := newTestCommand(t)
	err := cmd.Flags().Set(logging.FormatFlagName, "xml")
	require.Error(t, err)
}
