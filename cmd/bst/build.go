package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
	"github.com/buildstream-go/buildstream/internal/scheduler"
)

func newBuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <element>...",
		Short: "Build one or more elements and their dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBuild,
	}
}

// runBuild resolves the element graph for the requested targets and drives
// it through the fetch -> build -> push pipeline, printing
// a summary table once every queue has drained.
func runBuild(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bsCtx := bstcontext.FromContext(ctx)

	graph, elements, err := newLoader().Load(ctx, args)
	if err != nil {
		return &bstcontext.LoadError{Action: "build", Reason: "failed to resolve element graph", Err: err}
	}

	rt := newBuildRuntime(elements, Root.registry, bsCtx, Root.project.FailOnOverlap)

	fetchers, builders, pushers, retries := bsCtx.QueueSizes()
	controller, cctx := scheduler.NewController(ctx)

	onEvent, finish := newProgressReporter(len(elements))
	defer finish()

	done := make(chan struct{})
	go bsCtx.Bus().Run(done)
	defer close(done)

	pipeline := scheduler.Pipeline{
		Graph:      graph,
		Controller: controller,
		Fetch: scheduler.QueueSpec{
			Concurrency:   fetchers,
			MaxRetries:    retries,
			FailurePolicy: failurePolicyFor(bsCtx.ErrorPolicy()),
		},
		Build: scheduler.QueueSpec{
			Concurrency:   builders,
			FailurePolicy: failurePolicyFor(bsCtx.ErrorPolicy()),
		},
		Push: scheduler.QueueSpec{
			Concurrency:   pushers,
			FailurePolicy: failurePolicyFor(bsCtx.ErrorPolicy()),
			Skip:          func(id string) bool { return true }, // `bst build` never pushes; `bst push` does
		},
		Work: scheduler.ElementWork{
			Fetch: rt.fetchWork,
			Build: rt.buildWork,
			Push:  func(ctx context.Context, id string) error { return nil },
		},
		OnEvent: onEvent,
	}

	report, err := pipeline.Run(cctx)
	printReport(cmd.OutOrStdout(), report)
	if err != nil {
		return err
	}
	if len(report.Build.Failed) > 0 {
		return fmt.Errorf("bst build: %d element(s) failed", len(report.Build.Failed))
	}
	return nil
}

func failurePolicyFor(policy string) scheduler.FailurePolicy {
	switch policy {
	case "quit":
		return scheduler.PolicyQuit
	case "terminate":
		return scheduler.PolicyTerminate
	case "interactive":
		return scheduler.PolicyInteractive
	default:
		return scheduler.PolicyContinue
	}
}
