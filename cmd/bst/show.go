package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/buildstream-go/buildstream/internal/bstcontext"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <element>...",
		Short: "Show the resolved dependency graph for the given elements",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runShow,
	}
}

// runShow prints every resolved element in dependency order alongside its
// kind and cache state, the way  "already cached" distinction
// is surfaced to a user deciding whether a build will do real work.
func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	bsCtx := bstcontext.FromContext(ctx)

	graph, elements, err := newLoader().Load(ctx, args)
	if err != nil {
		return &bstcontext.LoadError{Action: "show", Reason: "failed to resolve element graph", Err: err}
	}
	order, err := graph.TopologicalSort()
	if err != nil {
		return &bstcontext.LoadError{Action: "show", Reason: "dependency graph is not acyclic", Err: err}
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"Element", "Kind", "Cached"})
	for _, id := range order {
		elem := elements[id]
		cached := "no"
		if _, found, err := lookupArtifact(bsCtx.CAS(), id); err == nil && found {
			cached = "yes"
		}
		t.AppendRow(table.Row{id, elem.Kind, cached})
	}
	t.Render()
	return nil
}
