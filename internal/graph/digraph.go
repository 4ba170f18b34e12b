// Package graph provides the small adjacency-list digraph used to check
// for circular dependencies: once among tasks joined by After, and once
// among SDF channels carrying zero delay, where a cycle of zero-delay
// edges makes a graph's static partitioning invalid.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/slices"
)

// ErrCycleDetected is returned by TopologicalOrder when the graph contains
// a cycle.
var ErrCycleDetected = errors.New("graph: cycle detected")

// Digraph is a directed graph stored as an adjacency list. V should be a
// small, cheaply-comparable type (an integer-sized ID works best).
type Digraph[V comparable] struct {
	adj map[V][]V
}

// New returns an empty Digraph.
func New[V comparable]() *Digraph[V] {
	return &Digraph[V]{adj: make(map[V][]V)}
}

// AddNode adds a vertex unconnected to anything. It reports whether the
// node was newly added.
func (g *Digraph[V]) AddNode(node V) bool {
	if _, ok := g.adj[node]; ok {
		return false
	}
	g.adj[node] = nil
	return true
}

// AddEdge adds a directed edge from -> to, implicitly adding either
// endpoint that doesn't already exist. Duplicate edges are ignored.
func (g *Digraph[V]) AddEdge(from, to V) {
	g.AddNode(from)
	g.AddNode(to)
	for _, existing := range g.adj[from] {
		if existing == to {
			return
		}
	}
	g.adj[from] = append(g.adj[from], to)
}

// Has reports whether node is in the graph.
func (g *Digraph[V]) Has(node V) bool {
	_, ok := g.adj[node]
	return ok
}

// Neighbours returns the out-edges of node, in no particular order. ok is
// false if node is not in the graph.
func (g *Digraph[V]) Neighbours(node V) (out []V, ok bool) {
	l, ok := g.adj[node]
	if !ok {
		return nil, false
	}
	return slices.Clone(l), true
}

// Nodes returns every vertex, in no particular order.
func (g *Digraph[V]) Nodes() []V {
	nodes := make([]V, 0, len(g.adj))
	for n := range g.adj {
		nodes = append(nodes, n)
	}
	return nodes
}

type line struct {
	node string
	outs []string
}

// String renders the graph as one "node -> out1 out2 ..." line per
// vertex, sorted for determinism.
func (g *Digraph[V]) String() string {
	var lines []line
	for node, to := range g.adj {
		toStr := make([]string, len(to))
		for i, n := range to {
			toStr[i] = fmt.Sprint(n)
		}
		slices.Sort(toStr)
		lines = append(lines, line{node: fmt.Sprint(node), outs: toStr})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].node < lines[j].node })

	var sb strings.Builder
	for i, l := range lines {
		sb.WriteString(l.node)
		sb.WriteString(" ->")
		for _, o := range l.outs {
			sb.WriteRune(' ')
			sb.WriteString(o)
		}
		if i < len(lines)-1 {
			sb.WriteRune('\n')
		}
	}
	return sb.String()
}

// TopologicalOrder returns a total order over the graph's vertices
// consistent with every edge, or ErrCycleDetected if none exists.
func (g *Digraph[V]) TopologicalOrder() (order []V, err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok && errors.Is(e, ErrCycleDetected) {
				order, err = nil, e
				return
			}
			panic(r)
		}
	}()

	const (
		unseen = iota
		inProgress
		done
	)
	seen := make(map[V]int, len(g.adj))
	order = make([]V, len(g.adj))
	i := len(g.adj) - 1

	var visit func(v V)
	visit = func(v V) {
		switch seen[v] {
		case inProgress:
			panic(ErrCycleDetected)
		case done:
			return
		}
		seen[v] = inProgress
		for _, next := range g.adj[v] {
			visit(next)
		}
		seen[v] = done
		order[i] = v
		i--
	}

	// Visiting in a stable order makes the resulting topological order
	// deterministic for a fixed set of AddEdge calls, which in turn makes
	// task/group and SDF-partition tests reproducible.
	vorder := g.Nodes()
	slices.SortFunc(vorder, func(a, b V) bool { return fmt.Sprint(a) < fmt.Sprint(b) })
	for _, v := range vorder {
		if seen[v] == unseen {
			visit(v)
		}
	}

	return order, nil
}
