package bstcontext

import (
	"fmt"
	"path/filepath"
	"time"
)

// The error kinds below implement a typed taxonomy: every failure that
// crosses a component boundary carries (Element, Action, Reason) and is
// discriminated with errors.As rather than string matching.

// LoadError reports a failure in the loader: unresolved includes, an
// unresolved or cyclic variable reference, a circular dependency, or
// invalid element/project YAML.
type LoadError struct {
	Element, Action, Reason string
	Err                     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load: %s: %s: %s", e.Element, e.Action, e.Reason)
}
func (e *LoadError) Unwrap() error { return e.Err }

// PluginError reports a failure constructing or configuring a plugin:
// unknown kind, or a Configure call rejecting its Node.
type PluginError struct {
	Element, Action, Reason string
	Err                     error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("plugin: %s: %s: %s", e.Element, e.Action, e.Reason)
}
func (e *PluginError) Unwrap() error { return e.Err }

// SourceError reports a Source lifecycle failure (track/fetch/stage).
// Temporary distinguishes network-ish failures the scheduler should retry
// from permanent ones.
type SourceError struct {
	Element, Action, Reason string
	Temp                    bool
	Err                     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source: %s: %s: %s", e.Element, e.Action, e.Reason)
}
func (e *SourceError) Unwrap() error   { return e.Err }
func (e *SourceError) Temporary() bool { return e.Temp }

// ElementError reports a failure in an Element plugin's own lifecycle
// (Configure, ConfigureSandbox, GenerateScript) distinct from the build
// command failures SandboxError reports.
type ElementError struct {
	Element, Action, Reason string
	Err                     error
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("element: %s: %s: %s", e.Element, e.Action, e.Reason)
}
func (e *ElementError) Unwrap() error { return e.Err }

// CASError reports a content-addressable-store failure: NotFound,
// CorruptObject, ArtifactTooLarge, or a remote-protocol transport error.
type CASError struct {
	Element, Action, Reason string
	Temp                    bool
	Err                     error
}

func (e *CASError) Error() string {
	return fmt.Sprintf("cas: %s: %s: %s", e.Element, e.Action, e.Reason)
}
func (e *CASError) Unwrap() error   { return e.Err }
func (e *CASError) Temporary() bool { return e.Temp }

// SandboxError reports an assembly failure: a build command's non-zero
// exit, or a failure staging/collecting the sandbox's filesystem tree.
type SandboxError struct {
	Element, Action, Reason string
	Err                     error
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox: %s: %s: %s", e.Element, e.Action, e.Reason)
}
func (e *SandboxError) Unwrap() error { return e.Err }

// SchedulerError reports a scheduler-level failure: a cancelled run, or a
// queue-level invariant violation (as opposed to a single element's
// Failed outcome, which is recorded in a scheduler.Result, not returned as
// an error).
type SchedulerError struct {
	Element, Action, Reason string
	Err                     error
}

func (e *SchedulerError) Error() string {
	return fmt.Sprintf("scheduler: %s: %s: %s", e.Element, e.Action, e.Reason)
}
func (e *SchedulerError) Unwrap() error { return e.Err }

// LogFilePath returns the per-element, per-action log file path 
// mandates: "logdir/<element-name>-<action>-<timestamp>.log".
func LogFilePath(logDir, element, action string, at time.Time) string {
	name := fmt.Sprintf("%s-%s-%s.log", element, action, at.UTC().Format("20060102T150405Z"))
	return filepath.Join(logDir, name)
}
