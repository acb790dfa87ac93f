package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/scheduler"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <element>...",
		Short: "Fetch sources required to build the given elements",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFetch,
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bsCtx := bstcontext.FromContext(ctx)

	graph, elements, err := newLoader().Load(ctx, args)
	if err != nil {
		return &bstcontext.LoadError{Action: "fetch", Reason: "failed to resolve element graph", Err: err}
	}
	rt := newBuildRuntime(elements, Root.registry, bsCtx, Root.project.FailOnOverlap)

	fetchers, _, _, retries := bsCtx.QueueSizes()
	controller, cctx := scheduler.NewController(ctx)

	done := make(chan struct{})
	go bsCtx.Bus().Run(done)
	defer close(done)

	fetchGraph := edgelessCopy(graph)
	q := scheduler.NewQueueProcessor("fetch", fetchGraph, rt.fetchWork, scheduler.QueueOptions{
		Concurrency:   fetchers,
		MaxRetries:    retries,
		FailurePolicy: failurePolicyFor(bsCtx.ErrorPolicy()),
	}, controller)

	result, err := q.Run(cctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "fetched %d, failed %d, skipped %d\n", len(result.Succeeded), len(result.Failed), len(result.Skipped))
	if len(result.Failed) > 0 {
		return fmt.Errorf("bst fetch: %d element(s) failed", len(result.Failed))
	}
	return nil
}
