package mare

import (
	"context"

	"go.lepak.sg/mare/sdf"
)

// SDFChan is the type-erased channel handle an SDFNode's inputs/outputs
// are built from.
type SDFChan = sdf.Chan

// SDFChannel is a bounded, single-producer/single-consumer FIFO carrying
// values of type V between two SDF nodes.
type SDFChannel[V any] struct {
	inner *sdf.Channel[V]
}

// NewSDFChannel returns a channel with room for capacity elements.
func NewSDFChannel[V any](capacity int) (*SDFChannel[V], error) {
	c, err := sdf.NewChannel[V](capacity)
	if err != nil {
		return nil, wrapUsage(err)
	}
	return &SDFChannel[V]{inner: c}, nil
}

// Preload fills the channel with initial values before the owning graph
// launches, establishing a feedback delay of len(vals) samples.
func (c *SDFChannel[V]) Preload(vals []V) error {
	return wrapUsage(c.inner.Preload(vals))
}

// Chan returns the type-erased handle to pass to NewSDFNode.
func (c *SDFChannel[V]) Chan() SDFChan { return c.inner }

// Read removes and returns the oldest value, blocking until one is
// available or ctx is done. Application code outside a node body may use
// this to feed or drain a graph's boundary channels.
func (c *SDFChannel[V]) Read(ctx context.Context) (V, error) {
	return c.inner.Read(ctx)
}

// Write adds v as the newest value, blocking until there is room or ctx
// is done.
func (c *SDFChannel[V]) Write(ctx context.Context, v V) error {
	return c.inner.Write(ctx, v)
}

// SDFNodeContext is the introspective view a node body runs with.
type SDFNodeContext = sdf.NodeContext

// SDFNodeFunc is a node body, run once per node per graph iteration.
type SDFNodeFunc = sdf.NodeFunc

// SDFNodeStats is a snapshot of a node's completed-iteration count.
type SDFNodeStats = sdf.NodeStats

// SDFNode is one function in an SDF graph.
type SDFNode struct {
	inner *sdf.Node
}

// NewSDFNode returns a node with the given name, body, and ordered
// input/output channels.
func NewSDFNode(name string, fn SDFNodeFunc, inputs, outputs []SDFChan) *SDFNode {
	return &SDFNode{inner: sdf.NewNode(name, fn, inputs, outputs)}
}

// SDFUnary adapts a typed single-input, single-output function into an
// SDFNodeFunc.
func SDFUnary[TIn, TOut any](f func(TIn) (TOut, error)) SDFNodeFunc {
	return sdf.Unary(f)
}

// SDFBinary adapts a typed two-input, single-output function into an
// SDFNodeFunc.
func SDFBinary[TIn1, TIn2, TOut any](f func(TIn1, TIn2) (TOut, error)) SDFNodeFunc {
	return sdf.Binary(f)
}

// AssignCost sets n's cost hint, consulted by the static partitioner when
// no node in the graph has a manual partition assignment.
func (n *SDFNode) AssignCost(cost float64) { n.inner.AssignCost(cost) }

// SetPartition pins n to a specific partition index.
func (n *SDFNode) SetPartition(idx int) { n.inner.SetPartition(idx) }

// Stats returns n's current iteration count.
func (n *SDFNode) Stats() SDFNodeStats { return n.inner.Stats() }

// SDFInfinite, passed to Launch/LaunchAndWait, runs a graph until Cancel.
const SDFInfinite int64 = sdf.Infinite

// SDFPartitionQuery reports one partition's progress, as returned by
// SDFGraph.Query.
type SDFPartitionQuery = sdf.PartitionQuery

// SDFGraph is a synchronous-dataflow graph: a set of nodes wired together
// by channels, partitioned across driver goroutines and launched for a
// fixed or unbounded iteration count.
type SDFGraph struct {
	inner *sdf.Graph
}

// CreateSDFGraph returns a new, empty SDF graph.
func (rt *Runtime) CreateSDFGraph() *SDFGraph {
	return &SDFGraph{inner: sdf.NewGraph()}
}

// AddNode registers n's channels and adds it to the graph. It fails once
// the graph has launched.
func (g *SDFGraph) AddNode(n *SDFNode) error {
	return wrapUsage(g.inner.AddNode(n.inner))
}

// Launch partitions the graph and starts one driver goroutine per
// partition, running for n iterations (SDFInfinite for unbounded). It
// returns once drivers have started; use Wait or LaunchAndWait to block
// for completion.
func (g *SDFGraph) Launch(n int64) error {
	return wrapUsage(g.inner.Launch(n))
}

// Wait blocks until every partition has finished and returns the first
// error any node body produced, if any. That error is a node body's own
// error (or ctx's), not a misuse error, so it is returned unwrapped.
func (g *SDFGraph) Wait(ctx context.Context) error {
	return g.inner.Wait(ctx)
}

// LaunchAndWait launches the graph for n iterations and blocks until
// every partition completes. Only the Launch half can fail with a misuse
// error; the wait half surfaces node body errors unwrapped, same as Wait.
func (g *SDFGraph) LaunchAndWait(ctx context.Context, n int64) error {
	if err := g.Launch(n); err != nil {
		return err
	}
	return g.Wait(ctx)
}

// Pause blocks until every partition has completed exactly iter
// iterations, then stops each at its next safe point. It returns the
// synced iteration count, which is always iter on success. A failure here
// is ctx expiring or the partition loop returning early, not a misuse
// error, so it is returned unwrapped.
func (g *SDFGraph) Pause(ctx context.Context, iter int64) (int64, error) {
	return g.inner.Pause(ctx, iter)
}

// Resume restarts every paused partition from its saved resume point.
func (g *SDFGraph) Resume() { g.inner.Resume() }

// Cancel schedules a one-shot cancellation that takes effect once every
// partition reaches iter, resuming any paused partition so that it can get
// there; it does not block.
func (g *SDFGraph) Cancel(iter int64) { g.inner.Cancel(iter) }

// Query reports the current completed-iteration count of every
// partition.
func (g *SDFGraph) Query() []SDFPartitionQuery { return g.inner.Query() }

// DestroySDFGraph releases g. A Graph holds no resources beyond its own
// goroutines, which Wait or a completed Cancel already reclaims, so this
// exists only for parity with the original's explicit destroy call and
// is safe to skip once Wait has returned.
func DestroySDFGraph(g *SDFGraph) { g.inner = nil }
