// Package logging wires the process-wide structured logger to cobra flags:
// a closed enum.Flag per concern (--log-format/--log-level/--log-output),
// read back into a log/slog handler once flags are parsed.
package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/buildstream-go/buildstream/internal/logging/enum"
)

const (
	FormatFlagName = "log-format"

	FormatText = "text"
	FormatJSON = "json"
)

const (
	LevelFlagName = "log-level"

	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

const (
	OutputFlagName = "log-output"

	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// RegisterFlags adds the logging flags as persistent flags on flagset, so
// every bst subcommand inherits them.
func RegisterFlags(flagset *pflag.FlagSet) {
	enum.Var(flagset, FormatFlagName, []string{FormatText, FormatJSON},
		"log output format: text (human-readable) or json (structured)")
	enum.Var(flagset, LevelFlagName, []string{LevelWarn, LevelInfo, LevelDebug, LevelError},
		"minimum log level: debug, info, warn (default), or error")
	enum.Var(flagset, OutputFlagName, []string{OutputStdout, OutputStderr},
		"log output destination: stdout (default) or stderr")
}

// FromCommand builds a *slog.Logger from cmd's registered logging flags.
func FromCommand(cmd *cobra.Command) (*slog.Logger, error) {
	level, err := levelFromCommand(cmd)
	if err != nil {
		return nil, err
	}
	format, err := enum.Get(cmd.Flags(), FormatFlagName)
	if err != nil {
		return nil, fmt.Errorf("logging: failed to read %s: %w", FormatFlagName, err)
	}
	output, err := enum.Get(cmd.Flags(), OutputFlagName)
	if err != nil {
		return nil, fmt.Errorf("logging: failed to read %s: %w", OutputFlagName, err)
	}

	var w io.Writer
	switch output {
	case OutputStderr:
		w = cmd.ErrOrStderr()
	default:
		w = cmd.OutOrStdout()
	}

	var handler slog.Handler
	switch format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	default:
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler), nil
}

func levelFromCommand(cmd *cobra.Command) (slog.Level, error) {
	raw, err := enum.Get(cmd.Flags(), LevelFlagName)
	if err != nil {
		return slog.LevelWarn, fmt.Errorf("logging: failed to read %s: %w", LevelFlagName, err)
	}
	switch raw {
	case LevelDebug:
		return slog.LevelDebug, nil
	case LevelInfo:
		return slog.LevelInfo, nil
	case LevelError:
		return slog.LevelError, nil
	case LevelWarn:
		return slog.LevelWarn, nil
	default:
		return slog.LevelWarn, fmt.Errorf("logging: invalid log level %q", raw)
	}
}
