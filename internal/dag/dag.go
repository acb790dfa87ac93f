// Package dag implements a generic directed acyclic graph used both by the
// loader to represent the resolved element graph and by the
// scheduler to walk it in dependency order.
//
// Generalized from a fixed vertex-identity type to any cmp.Ordered key and
// extended with the stable tiebreak ordering the loader needs.
package dag

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
)

// ErrSelfReference is returned when AddEdge is asked to connect a vertex to
// itself.
var ErrSelfReference = fmt.Errorf("dag: self-references are not allowed")

// Vertex is one node of a Graph.
type Vertex[K cmp.Ordered] struct {
	ID         K
	Attributes map[string]any
	Edges      map[K]struct{}

	InDegree, OutDegree int
}

// Graph is a directed acyclic graph keyed by K. Per 
// "arena + indices" design note, elements are intended to be stored in a
// flat arena and referenced here by a small, comparable ElementID key
// rather than by pointer, so the graph can be traversed bidirectionally
// without introducing reference cycles in Go's memory model.
type Graph[K cmp.Ordered] struct {
	Vertices map[K]*Vertex[K]
}

// New creates an empty Graph.
func New[K cmp.Ordered]() *Graph[K] {
	return &Graph[K]{Vertices: make(map[K]*Vertex[K])}
}

// AddVertex adds a new node to the graph. Adding the same ID twice is an
// error; the loader is expected to dedupe by (junction-chain, name) before
// calling AddVertex.
func (g *Graph[K]) AddVertex(id K) error {
	if _, exists := g.Vertices[id]; exists {
		return fmt.Errorf("dag: vertex %v already exists", id)
	}
	g.Vertices[id] = &Vertex[K]{ID: id, Attributes: map[string]any{}, Edges: map[K]struct{}{}}
	return nil
}

// EnsureVertex adds id if absent and is otherwise a no-op, for callers that
// discover vertices and edges in the same pass.
func (g *Graph[K]) EnsureVertex(id K) *Vertex[K] {
	if v, ok := g.Vertices[id]; ok {
		return v
	}
	v := &Vertex[K]{ID: id, Attributes: map[string]any{}, Edges: map[K]struct{}{}}
	g.Vertices[id] = v
	return v
}

// CycleError reports a dependency cycle, 
// *CircularDependency*.
type CycleError[K cmp.Ordered] struct {
	Cycle []K
}

func (e *CycleError[K]) Error() string {
	s := ""
	for i, k := range e.Cycle {
		if i > 0 {
			s += " -> "
		}
		s += fmt.Sprint(k)
	}
	return fmt.Sprintf("dag: circular dependency: %s", s)
}

// AddEdge adds a directed edge from -> to. If doing so would create a
// cycle, the edge is rejected and a *CycleError is returned, naming the
// cycle.
func (g *Graph[K]) AddEdge(from, to K) error {
	fromNode, ok := g.Vertices[from]
	if !ok {
		return fmt.Errorf("dag: vertex %v does not exist", from)
	}
	toNode, ok := g.Vertices[to]
	if !ok {
		return fmt.Errorf("dag: vertex %v does not exist", to)
	}
	if from == to {
		return ErrSelfReference
	}
	if _, exists := fromNode.Edges[to]; exists {
		return nil
	}

	fromNode.Edges[to] = struct{}{}
	fromNode.OutDegree++
	toNode.InDegree++

	if hasCycle, cycle := g.HasCycle(); hasCycle {
		delete(fromNode.Edges, to)
		fromNode.OutDegree--
		toNode.InDegree--
		return fmt.Errorf("dag: adding edge %v -> %v would create a cycle: %w", from, to, &CycleError[K]{Cycle: cycle})
	}
	return nil
}

// Roots returns every vertex with no incoming edges.
func (g *Graph[K]) Roots() []K {
	var roots []K
	for id, v := range g.Vertices {
		if v.InDegree == 0 {
			roots = append(roots, id)
		}
	}
	slices.Sort(roots)
	return roots
}

// SortedKeys returns every vertex ID in ascending order, the deterministic
// iteration order every traversal below is built on.
func (g *Graph[K]) SortedKeys() []K {
	keys := make([]K, 0, len(g.Vertices))
	for k := range g.Vertices {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// TopologicalSort returns vertices in dependency order (dependencies before
// dependents), or fails with *CycleError. Ties are broken by ascending key,
// so the result is deterministic run to run.
func (g *Graph[K]) TopologicalSort() ([]K, error) {
	if hasCycle, cycle := g.HasCycle(); hasCycle {
		return nil, &CycleError[K]{Cycle: cycle}
	}

	visited := make(map[K]bool, len(g.Vertices))
	order := make([]K, 0, len(g.Vertices))

	var visit func(K)
	visit = func(id K) {
		visited[id] = true
		neighbors := make([]K, 0, len(g.Vertices[id].Edges))
		for n := range g.Vertices[id].Edges {
			neighbors = append(neighbors, n)
		}
		slices.Sort(neighbors)
		slices.Reverse(neighbors)
		for _, n := range neighbors {
			if !visited[n] {
				visit(n)
			}
		}
		order = append(order, id)
	}

	keys := g.SortedKeys()
	slices.Reverse(keys)
	for _, id := range keys {
		if !visited[id] {
			visit(id)
		}
	}
	// order is a post-order (dependents before dependencies); reversing it
	// puts dependencies first.
	slices.Reverse(order)
	return order, nil
}

// HasCycle reports whether the graph currently contains a cycle, returning
// the cycle's vertex sequence if so.
func (g *Graph[K]) HasCycle() (bool, []K) {
	visited := make(map[K]bool, len(g.Vertices))
	onStack := make(map[K]bool, len(g.Vertices))
	var path []K

	var dfs func(K) bool
	dfs = func(id K) bool {
		visited[id] = true
		onStack[id] = true
		path = append(path, id)

		neighbors := make([]K, 0, len(g.Vertices[id].Edges))
		for n := range g.Vertices[id].Edges {
			neighbors = append(neighbors, n)
		}
		slices.Sort(neighbors)

		for _, n := range neighbors {
			if !visited[n] {
				if dfs(n) {
					return true
				}
			} else if onStack[n] {
				path = append(path, n)
				return true
			}
		}

		onStack[id] = false
		path = path[:len(path)-1]
		return false
	}

	for _, id := range g.SortedKeys() {
		if !visited[id] {
			path = nil
			if dfs(id) {
				start := 0
				for i, v := range path[:len(path)-1] {
					if v == path[len(path)-1] {
						start = i
						break
					}
				}
				return true, path[start:]
			}
		}
	}
	return false, nil
}

// Reverse returns a new Graph with every edge flipped, used to walk
// dependents for cache-key propagation and failure-policy skip marking.
func (g *Graph[K]) Reverse() *Graph[K] {
	rev := New[K]()
	for id := range g.Vertices {
		_ = rev.AddVertex(id)
	}
	for id, v := range g.Vertices {
		for child := range v.Edges {
			_ = rev.AddEdge(child, id)
		}
	}
	return rev
}

// Clone returns a shallow copy of the graph (new vertex map, shared
// Attributes maps), used by the scheduler to snapshot readiness state
// without racing the loader.
func (g *Graph[K]) Clone() *Graph[K] {
	return &Graph[K]{Vertices: maps.Clone(g.Vertices)}
}

// Descendants returns every vertex reachable from id by following edges
// forward, used to compute the reverse-dependency skip set on failure.
func (g *Graph[K]) Descendants(id K) []K {
	visited := map[K]bool{}
	var out []K
	var visit func(K)
	visit = func(cur K) {
		v, ok := g.Vertices[cur]
		if !ok {
			return
		}
		neighbors := make([]K, 0, len(v.Edges))
		for n := range v.Edges {
			neighbors = append(neighbors, n)
		}
		slices.Sort(neighbors)
		for _, n := range neighbors {
			if !visited[n] {
				visited[n] = true
				out = append(out, n)
				visit(n)
			}
		}
	}
	visit(id)
	return out
}
