package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/plugin"
	"github.com/buildstream-go/buildstream/internal/sandbox"
)

func newCheckoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkout <element> <directory>",
		Short: "Extract a built element's artifact into a directory",
		Args:  cobra.ExactArgs(2),
		RunE:  runCheckout,
	}
}

func runCheckout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bsCtx := bstcontext.FromContext(ctx)

	_, elements, err := newLoader().Load(ctx, []string{args[0]})
	if err != nil {
		return &bstcontext.LoadError{Action: "checkout", Reason: "failed to resolve element", Err: err}
	}
	elem, ok := elements[args[0]]
	if !ok {
		return fmt.Errorf("bst checkout: unknown element %s", args[0])
	}

	rec, found, err := lookupArtifact(bsCtx.CAS(), elem.ID())
	if err != nil {
		return &bstcontext.CASError{Element: elem.ID(), Action: "checkout", Reason: "failed to resolve cached artifact", Err: err}
	}
	if !found {
		return fmt.Errorf("bst checkout: %s has not been built", elem.ID())
	}

	dest := args[1]
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return &bstcontext.SandboxError{Element: elem.ID(), Action: "checkout", Reason: "failed to create destination directory", Err: err}
	}

	sbx, err := sandbox.New(dest, bsCtx.CAS(), os.Stdout, os.Stderr)
	if err != nil {
		return &bstcontext.SandboxError{Element: elem.ID(), Action: "checkout", Reason: "failed to open destination", Err: err}
	}
	if err := sbx.StageDependency(ctx, "/", rec.Tree, plugin.OverlapWarn, func(path string) {
		bsCtx.Logger().Warn("overlapping path while checking out", "element", elem.ID(), "path", path)
	}); err != nil {
		return &bstcontext.SandboxError{Element: elem.ID(), Action: "checkout", Reason: "failed to extract artifact", Err: err}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checked out %s to %s\n", elem.ID(), dest)
	return nil
}
