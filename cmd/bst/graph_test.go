package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildstream-go/buildstream/internal/dag"
)

func TestEdgelessCopyKeepsVerticesDropsEdges(t *testing.T) {
	g := dag.New[string]()
	require.NoError(t, g.AddVertex("a.bst"))
	require.NoError(t, g.AddVertex("b.bst"))
	require.NoError(t, g.AddEdge("a.bst", "b.bst"))

	out := edgelessCopy(g)
	assert.ElementsMatch(t, []string{"a.bst", "b.bst"}, out.SortedKeys())
	// every vertex is a root once edges are dropped, unlike in g where
	// b.bst depends on a.bst.
	assert.ElementsMatch(t, []string{"a.bst", "b.bst"}, out.Roots())
	assert.Equal(t, []string{"a.bst"}, g.Roots())
}
