package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/scheduler"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <element>...",
		Short: "Download built artifacts from a configured artifact remote",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPull,
	}
}

func runPull(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bsCtx := bstcontext.FromContext(ctx)

	remote, err := pullRemote()
	if err != nil {
		return err
	}
	client, err := dialArtifactRemote(remote)
	if err != nil {
		return err
	}
	defer client.Close()

	graph, elements, err := newLoader().Load(ctx, args)
	if err != nil {
		return &bstcontext.LoadError{Action: "pull", Reason: "failed to resolve element graph", Err: err}
	}

	rt := newBuildRuntime(elements, Root.registry, bsCtx, Root.project.FailOnOverlap)
	pullGraph := edgelessCopy(graph)
	fetchers, _, _, retries := bsCtx.QueueSizes()
	controller, cctx := scheduler.NewController(ctx)
	result, err := scheduler.NewQueueProcessor("pull", pullGraph, rt.pullWork(client), scheduler.QueueOptions{
		Concurrency:   fetchers,
		MaxRetries:    retries,
		FailurePolicy: failurePolicyFor(bsCtx.ErrorPolicy()),
	}, controller).Run(cctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pulled %d, failed %d, skipped %d\n", len(result.Succeeded), len(result.Failed), len(result.Skipped))
	if len(result.Failed) > 0 {
		return fmt.Errorf("bst pull: %d element(s) failed", len(result.Failed))
	}
	return nil
}
