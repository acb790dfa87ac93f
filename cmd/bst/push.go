package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/scheduler"
)

func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <element>...",
		Short: "Upload built artifacts to the configured push remote",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runPush,
	}
}

// runPush only uploads elements this local cache already has a recorded
// artifact for; an element that has never been built is silently skipped
// rather than triggering an implicit build.
func runPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bsCtx := bstcontext.FromContext(ctx)

	remote, err := pushRemote()
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
		return &bstcontext.LoadError{Action: "push", Reason: "failed to resolve element graph", Err: err}
	}

	rt := newBuildRuntime(elements, Root.registry, bsCtx, Root.project.FailOnOverlap)
	for id := range elements {
		if rec, found, err := lookupArtifact(bsCtx.CAS(), id); err == nil && found {
			rt.results[id] = rec
		}
	}

	pushGraph := edgelessCopy(graph)
	_, _, pushers, retries := bsCtx.QueueSizes()
	controller, cctx := scheduler.NewController(ctx)
	result, err := scheduler.NewQueueProcessor("push", pushGraph, rt.pushWork(client), scheduler.QueueOptions{
		Concurrency:   pushers,
		MaxRetries:    retries,
		FailurePolicy: failurePolicyFor(bsCtx.ErrorPolicy()),
	}, controller).Run(cctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pushed %d, failed %d, skipped %d\n", len(result.Succeeded), len(result.Failed), len(result.Skipped))
	if len(result.Failed) > 0 {
		return fmt.Errorf("bst push: %d element(s) failed", len(result.Failed))
	}
	return nil
}
