package plugin

import (
	"context"
	"fmt"
)

// CommandGroup is one named, ordered list of shell commands plus its
// pre-/post- variants, as declared by BuildElement config keys like
// `configure-commands`.
type CommandGroup struct {
	Name     string
	Pre      []string
	Commands []string
	Post     []string
}

// All returns the group's commands in execution order: pre, then main,
// then post.
func (g CommandGroup) All() []string {
	out := make([]string, 0, len(g.Pre)+len(g.Commands)+len(g.Post))
	out = append(out, g.Pre...)
	out = append(out, g.Commands...)
	out = append(out, g.Post...)
	return out
}

// BuildElement is the default Element implementation driven by a table of
// named command groups: it stages build dependencies at "/", stages
// sources at "$build-root", runs the command groups in declared order,
// and collects "$install-root".
type BuildElement struct {
	BuildRoot   string
	InstallRoot string
	Groups      []CommandGroup
	config      map[string]any
}

const (
	defaultBuildRoot   = "/buildstream/build"
	defaultInstallRoot = "/buildstream/install"
)

// NewBuildElement constructs a BuildElement with BuildStream's conventional
// build/install root paths.
func NewBuildElement() *BuildElement {
	return &BuildElement{BuildRoot: defaultBuildRoot, InstallRoot: defaultInstallRoot}
}

var _ Element = (*BuildElement)(nil)

func (e *BuildElement) Configure(node Node) error {
	e.config = node.Data
	for _, key := range []string{"configure-commands", "build-commands", "install-commands"} {
		raw, ok := node.Data[key]
		if !ok {
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("plugin: buildelement: %q must be a list of commands", key)
		}
		group := CommandGroup{Name: key}
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("plugin: buildelement: %q entries must be strings", key)
			}
			group.Commands = append(group.Commands, s)
		}
		if pre, ok := node.Data["pre-"+key].([]any); ok {
			group.Pre = toStrings(pre)
		}
		if post, ok := node.Data["post-"+key].([]any); ok {
			group.Post = toStrings(post)
		}
		e.Groups = append(e.Groups, group)
	}
	return nil
}

func toStrings(items []any) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (e *BuildElement) Preflight(ctx context.Context) error { return nil }

func (e *BuildElement) UniqueKey() (any, error) {
	return e.config, nil
}

func (e *BuildElement) ConfigureSandbox(sandbox SandboxConfigurator) error {
	if err := sandbox.Mark(e.BuildRoot, false); err != nil {
		return fmt.Errorf("plugin: buildelement: failed to mark build root: %w", err)
	}
	if err := sandbox.Mark(e.InstallRoot, false); err != nil {
		return fmt.Errorf("plugin: buildelement: failed to mark install root: %w", err)
	}
	return nil
}

func (e *BuildElement) Stage(ctx context.Context, sandbox Sandbox) error {
	// Dependency artifacts are staged at "/" and sources at the build root
	// by the build driver in cmd/bst (work.go), which calls each
	// Source.Stage directly; BuildElement itself has nothing extra to
	// stage beyond declaring its roots in ConfigureSandbox.
	return nil
}

func (e *BuildElement) Assemble(ctx context.Context, sandbox Sandbox) (string, error) {
	for _, group := range e.Groups {
		for _, cmd := range group.All() {
			if err := sandbox.Run(ctx, []string{"sh", "-e", "-c", cmd}, RunOptions{
				Env:          map[string]string{"PWD": e.BuildRoot},
				ReadOnlyRoot: true,
			}); err != nil {
				return "", fmt.Errorf("plugin: buildelement: command group %q failed on %q: %w", group.Name, cmd, err)
			}
		}
	}
	return e.InstallRoot, nil
}

func (e *BuildElement) GenerateScript() (string, error) {
	script := "#!/bin/sh\nset -e\n"
	for _, group := range e.Groups {
		script += fmt.Sprintf("# %s\n", group.Name)
		for _, cmd := range group.All() {
			script += cmd + "\n"
		}
	}
	return script, nil
}
