package sdf

import (
	"context"
	"fmt"
	"sync"
)

// NodeContext is the introspective view a node body runs with: it sees
// already-popped inputs and stages outputs for the driver to push, rather
// than reading or writing channels itself - the driver owns every channel
// operation, matching "pop all input channels, invoke body, push all
// output channels" exactly.
type NodeContext interface {
	NumIn() int
	NumOut() int
	In(i int) (any, error)
	Out(i int, v any) error
}

type nodeContext struct {
	ins  []any
	outs []any
}

func (c *nodeContext) NumIn() int  { return len(c.ins) }
func (c *nodeContext) NumOut() int { return len(c.outs) }

func (c *nodeContext) In(i int) (any, error) {
	if i < 0 || i >= len(c.ins) {
		return nil, fmt.Errorf("sdf: input index %d out of range [0,%d)", i, len(c.ins))
	}
	return c.ins[i], nil
}

func (c *nodeContext) Out(i int, v any) error {
	if i < 0 || i >= len(c.outs) {
		return fmt.Errorf("sdf: output index %d out of range [0,%d)", i, len(c.outs))
	}
	c.outs[i] = v
	return nil
}

// NodeFunc is a node body. It runs once per node per graph iteration.
type NodeFunc func(ctx context.Context, nc NodeContext) error

// NodeStats is a snapshot of a node's iteration count.
type NodeStats struct {
	Iterations uint64
}

// Node is one function in an SDF graph: a body, its ordered input and
// output channels, an optional cost used by static partitioning, and an
// optional manual partition assignment.
type Node struct {
	name    string
	fn      NodeFunc
	inputs  []Chan
	outputs []Chan
	cost    float64

	partition int // -1 = let the graph's partitioner decide

	statsMu    sync.Mutex
	iterations uint64
}

// NewNode returns a Node with the given name, body, inputs and outputs.
// Cost defaults to 1.0, matching the task package's default attrs.cost;
// AssignCost and SetPartition adjust it before the owning graph is
// launched.
func NewNode(name string, fn NodeFunc, inputs, outputs []Chan) *Node {
	return &Node{
		name:      name,
		fn:        fn,
		inputs:    inputs,
		outputs:   outputs,
		cost:      1.0,
		partition: -1,
	}
}

// AssignCost sets the node's cost hint, consulted by the static
// partitioner when no manual partition assignment is present.
func (n *Node) AssignCost(cost float64) { n.cost = cost }

// SetPartition pins the node to a specific partition index. Once any node
// in a graph has a manual assignment, the graph takes every node's
// partition field verbatim instead of computing a cost-balanced one.
func (n *Node) SetPartition(idx int) { n.partition = idx }

// Stats returns the node's current iteration count, taking the node's own
// stats mutex for the duration of the read - the corrected contract for
// the payload stats accessor this is grounded on, which took an unbound
// lock in the original.
func (n *Node) Stats() NodeStats {
	n.statsMu.Lock()
	defer n.statsMu.Unlock()
	return NodeStats{Iterations: n.iterations}
}

func (n *Node) recordIteration() {
	n.statsMu.Lock()
	n.iterations++
	n.statsMu.Unlock()
}

// invoke pops ins, already read by the driver, runs the body, and returns
// the staged outputs for the driver to push.
func (n *Node) invoke(ctx context.Context, ins []any) ([]any, error) {
	nc := &nodeContext{ins: ins, outs: make([]any, len(n.outputs))}
	if err := n.fn(ctx, nc); err != nil {
		return nil, err
	}
	return nc.outs, nil
}

// Unary adapts a typed single-input, single-output function into a
// NodeFunc, for the common case where a node's introspective flexibility
// isn't needed.
func Unary[TIn, TOut any](f func(TIn) (TOut, error)) NodeFunc {
	return func(ctx context.Context, nc NodeContext) error {
		raw, err := nc.In(0)
		if err != nil {
			return err
		}
		out, err := f(raw.(TIn))
		if err != nil {
			return err
		}
		return nc.Out(0, out)
	}
}

// Binary adapts a typed two-input, single-output function into a
// NodeFunc, used by feedback-style nodes that combine a primary input
// with a delayed second one.
func Binary[TIn1, TIn2, TOut any](f func(TIn1, TIn2) (TOut, error)) NodeFunc {
	return func(ctx context.Context, nc NodeContext) error {
		a, err := nc.In(0)
		if err != nil {
			return err
		}
		b, err := nc.In(1)
		if err != nil {
			return err
		}
		out, err := f(a.(TIn1), b.(TIn2))
		if err != nil {
			return err
		}
		return nc.Out(0, out)
	}
}
