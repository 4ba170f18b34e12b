// Package sdf implements the synchronous-dataflow graph layer: nodes
// communicating through bounded channels with statically analyzable rates,
// partitioned across a small number of long-running driver goroutines and
// launched for a fixed (or infinite) iteration count.
package sdf

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"go.lepak.sg/mare/internal/graph"
)

// Infinite, passed to Launch/LaunchAndWait, runs the graph until Cancel.
const Infinite int64 = -1

// Graph owns a set of nodes and the channels wiring them together. It is
// built up with AddNode before Launch and is immutable afterwards.
type Graph struct {
	mu    sync.Mutex
	nodes []*Node

	consumerOf map[Chan]*Node
	producerOf map[Chan]*Node

	launched   bool
	partitions []*partition

	eg     *errgroup.Group
	egCtx  context.Context
	cancel context.CancelFunc
}

// NewGraph returns an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		consumerOf: make(map[Chan]*Node),
		producerOf: make(map[Chan]*Node),
	}
}

// AddNode registers n's channels and adds it to the graph. It fails if the
// graph has already launched.
func (g *Graph) AddNode(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.launched {
		return &UsageError{Op: "AddNode", Msg: "graph already launched"}
	}
	for _, in := range n.inputs {
		g.consumerOf[in] = n
	}
	for _, out := range n.outputs {
		g.producerOf[out] = n
	}
	g.nodes = append(g.nodes, n)
	return nil
}

// validateAndPartition checks the zero-delay cycle invariant and computes
// (or reads back the manual) partition assignment. Called once, from
// Launch, while g.mu is held.
func (g *Graph) validateAndPartition() ([][]*Node, error) {
	index := make(map[*Node]int, len(g.nodes))
	for i, n := range g.nodes {
		index[n] = i
	}

	zeroDelay := graph.New[int]()
	for i := range g.nodes {
		zeroDelay.AddNode(i)
	}
	for ch, producer := range g.producerOf {
		consumer, ok := g.consumerOf[ch]
		if !ok || ch.hasDelay() {
			continue
		}
		zeroDelay.AddEdge(index[producer], index[consumer])
	}
	order, err := zeroDelay.TopologicalOrder()
	if err != nil {
		return nil, ErrCycleNoDelay
	}

	manual := false
	for _, n := range g.nodes {
		if n.partition >= 0 {
			manual = true
			break
		}
	}

	if manual {
		byPartition := make(map[int][]*Node)
		for _, n := range g.nodes {
			p := n.partition
			if p < 0 {
				p = 0
			}
			byPartition[p] = append(byPartition[p], n)
		}
		var idxs []int
		for p := range byPartition {
			idxs = append(idxs, p)
		}
		sort.Ints(idxs)
		parts := make([][]*Node, 0, len(idxs))
		for _, p := range idxs {
			parts = append(parts, orderByTopo(byPartition[p], order, index))
		}
		return parts, nil
	}

	return balancedPartitions(g.nodes, order, index), nil
}

// orderByTopo returns the subset of nodes in topological order, so each
// partition's driver schedule respects cross-partition data dependencies.
func orderByTopo(subset []*Node, order []int, index map[*Node]int) []*Node {
	pos := make(map[int]int, len(order))
	for i, nodeIdx := range order {
		pos[nodeIdx] = i
	}
	out := make([]*Node, len(subset))
	copy(out, subset)
	sort.Slice(out, func(i, j int) bool {
		return pos[index[out[i]]] < pos[index[out[j]]]
	})
	return out
}

// balancedPartitions greedily assigns nodes (highest cost first) to
// whichever partition currently has the lowest total cost - the standard
// longest-processing-time heuristic for balanced bin packing, applied
// because the spec only requires "sum of cost per partition is balanced",
// not an optimal partition.
func balancedPartitions(nodes []*Node, order []int, index map[*Node]int) [][]*Node {
	n := len(nodes)
	if n == 0 {
		return nil
	}
	numPartitions := n
	if numPartitions > 8 {
		numPartitions = 8
	}

	sorted := make([]*Node, n)
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].cost > sorted[j].cost })

	loads := make([]float64, numPartitions)
	buckets := make([][]*Node, numPartitions)
	for _, node := range sorted {
		least := 0
		for i := 1; i < numPartitions; i++ {
			if loads[i] < loads[least] {
				least = i
			}
		}
		buckets[least] = append(buckets[least], node)
		loads[least] += node.cost
	}

	parts := make([][]*Node, 0, numPartitions)
	for _, b := range buckets {
		if len(b) == 0 {
			continue
		}
		parts = append(parts, orderByTopo(b, order, index))
	}
	return parts
}

// Launch partitions the graph and starts one driver goroutine per
// partition, running for n iterations (Infinite for unbounded). It
// returns once the graph is wired up and drivers have started; use Wait
// or LaunchAndWait to block for completion.
func (g *Graph) Launch(n int64) error {
	g.mu.Lock()
	if g.launched {
		g.mu.Unlock()
		return &UsageError{Op: "Launch", Msg: "graph already launched"}
	}
	parts, err := g.validateAndPartition()
	if err != nil {
		g.mu.Unlock()
		return err
	}
	for ch := range g.consumerOf {
		ch.lockLaunched()
	}
	g.launched = true

	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)
	g.eg, g.egCtx, g.cancel = eg, egCtx, cancel

	g.partitions = make([]*partition, len(parts))
	for i, nodes := range parts {
		p := newPartition(i, nodes)
		g.partitions[i] = p
		g.eg.Go(func() error { return p.run(g.egCtx, n) })
	}
	g.mu.Unlock()
	return nil
}

// Wait blocks until every partition has finished - reached its iteration
// limit, reached a scheduled cancel point, or errored - and returns the
// first error any node body produced, if any.
func (g *Graph) Wait(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- g.eg.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LaunchAndWait launches the graph for n iterations and blocks until every
// partition completes.
func (g *Graph) LaunchAndWait(ctx context.Context, n int64) error {
	if err := g.Launch(n); err != nil {
		return err
	}
	return g.Wait(ctx)
}

// Pause blocks the caller until every partition has completed exactly
// iter iterations, then stops each at its next safe point (the boundary
// before the next iteration begins). It returns the synced iteration
// count, which is always iter on success.
func (g *Graph) Pause(ctx context.Context, iter int64) (int64, error) {
	for _, p := range g.partitions {
		p.requestPause(iter)
	}
	for _, p := range g.partitions {
		if err := p.waitPaused(ctx, iter); err != nil {
			return 0, err
		}
	}
	return iter, nil
}

// Resume restarts every paused partition from its saved resume point.
func (g *Graph) Resume() {
	for _, p := range g.partitions {
		p.resume()
	}
}

// Cancel schedules a one-shot cancellation that takes effect once every
// partition reaches iter, resuming any paused partition so that it can get
// there; it does not block.
func (g *Graph) Cancel(iter int64) {
	for _, p := range g.partitions {
		p.requestCancel(iter)
	}
}

// PartitionQuery reports one partition's completed-iteration count, for
// Query's per-partition breakdown.
type PartitionQuery struct {
	Iterations int64
	Paused     bool
}

// Query reports the current completed-iteration count of every partition.
func (g *Graph) Query() []PartitionQuery {
	out := make([]PartitionQuery, len(g.partitions))
	for i, p := range g.partitions {
		out[i] = p.query()
	}
	return out
}
