package main

import "github.com/buildstream-go/buildstream/internal/dag"

// edgelessCopy returns a graph with the same vertex set as g but no edges,
// the shape a standalone fetch queue runs over: fetching one element's
// sources never waits on another element's sources (mirrors the fetch
// graph scheduler.Pipeline.Run builds internally).
func edgelessCopy(g *dag.Graph[string]) *dag.Graph[string] {
	out := dag.New[string]()
	for _, id := range g.SortedKeys() {
		_ = out.AddVertex(id)
	}
	return out
}
