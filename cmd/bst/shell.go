package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
)

func newShellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <element>",
		Short: "Open an interactive shell at an element's assembly staging point",
		Args:  cobra.ExactArgs(1),
		RunE:  runShell,
	}
}

// runShell stages the target element exactly as a build would, up to but
// not including Assemble, then execs the project's configured shell
// command interactively against that staged root.
func runShell(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bsCtx := bstcontext.FromContext(ctx)

	_, elements, err := newLoader().Load(ctx, []string{args[0]})
	if err != nil {
		return &bstcontext.LoadError{Action: "shell", Reason: "failed to resolve element", Err: err}
	}
	elem, ok := elements[args[0]]
	if !ok {
		return fmt.Errorf("bst shell: unknown element %s", args[0])
	}

	rt := newBuildRuntime(elements, Root.registry, bsCtx, Root.project.FailOnOverlap)
	root, cleanup, err := rt.stageForShell(ctx, elem.ID())
	if err != nil {
		return err
	}
	defer cleanup()

	command := Root.project.Shell.Command
	if len(command) == 0 {
		command = []string{"sh"}
	}

	// #nosec G204 -- command is the project's own declared shell.command,
	// not attacker-controlled input.
	c := exec.CommandContext(ctx, command[0], command[1:]...)
	c.Dir = root
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr
	return c.Run()
}
