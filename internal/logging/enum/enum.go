// Package enum implements a pflag.Value that only accepts one of a fixed
// set of strings, defaulting to the first option. Adapted from the
// teacher's cli/internal/flags/enum package (reconstructed here from its
// retained test file, since its implementation file was not part of the
// retrieval pack).
package enum

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

// Flag is a pflag.Value restricted to a closed set of options.
type Flag struct {
	options []string
	value   string
}

var _ pflag.Value = (*Flag)(nil)

// New creates a Flag over options, defaulting to options[0]. Panics if
// options is empty: a flag with no valid values is a programming error.
func New(options ...string) *Flag {
	if len(options) == 0 {
		panic("enum: at least one option is required")
	}
	return &Flag{options: options, value: options[0]}
}

func (f *Flag) String() string { return f.value }

func (f *Flag) Type() string { return "enum" }

// Set validates value against the option set, leaving the flag unchanged
// on rejection.
func (f *Flag) Set(value string) error {
	for _, opt := range f.options {
		if opt == value {
			f.value = value
			return nil
		}
	}
	return fmt.Errorf("enum: invalid value %q, must be one of [%s]", value, strings.Join(f.options, ", "))
}

// Var registers a new enum flag named name on flagset.
func Var(flagset *pflag.FlagSet, name string, options []string, usage string) {
	flagset.Var(New(options...), name, usage)
}

// VarP is Var with a single-letter shorthand.
func VarP(flagset *pflag.FlagSet, name, shorthand string, options []string, usage string) {
	flagset.VarP(New(options...), name, shorthand, usage)
}

// Get retrieves the current string value of an enum flag registered via Var
// or VarP, failing if name is not a registered flag or was registered as
// something other than an enum.
func Get(flagset *pflag.FlagSet, name string) (string, error) {
	f := flagset.Lookup(name)
	if f == nil {
		return "", fmt.Errorf("enum: flag %q not registered", name)
	}
	v, ok := f.Value.(*Flag)
	if !ok {
		return "", fmt.Errorf("enum: flag %q is not an enum flag", name)
	}
	return v.String(), nil
}
