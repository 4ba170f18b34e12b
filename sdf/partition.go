package sdf

import (
	"context"
	"sync"

	"go.lepak.sg/mare/internal/futex"
)

// partition is one long-running driver goroutine executing an ordered
// node schedule. Its progress is tracked as iterDone, nodeIndex and the
// paused flag, a simplified form of the {before_first_iter, iter,
// node_index, node_interrupted} tuple this is grounded on. The driver only
// checks pause/cancel at iteration boundaries, so it never pauses
// mid-iteration, and query() reports only iterDone and paused.
type partition struct {
	idx   int
	nodes []*Node

	mu           sync.Mutex
	iterDone     int64
	nodeIndex    int
	paused       bool
	pauseTarget  int64 // -1 = none requested
	cancelTarget int64 // -1 = none requested
	resumeGen    int64

	ctrl *futex.Futex
}

func newPartition(idx int, nodes []*Node) *partition {
	return &partition{
		idx:          idx,
		nodes:        nodes,
		pauseTarget:  -1,
		cancelTarget: -1,
		ctrl:         futex.New(),
	}
}

// run drives the partition's node schedule for limit iterations (Infinite
// for unbounded), honoring pause and cancel requests at each iteration
// boundary.
func (p *partition) run(ctx context.Context, limit int64) error {
	for {
		if stop, err := p.checkBoundary(ctx, limit); stop {
			return err
		}

		for i, n := range p.nodes {
			p.mu.Lock()
			p.nodeIndex = i
			p.mu.Unlock()

			ins := make([]any, len(n.inputs))
			for j, ch := range n.inputs {
				v, err := ch.readAny(ctx)
				if err != nil {
					return err
				}
				ins[j] = v
			}
			outs, err := n.invoke(ctx, ins)
			if err != nil {
				return err
			}
			for j, ch := range n.outputs {
				if err := ch.writeAny(ctx, outs[j]); err != nil {
					return err
				}
			}
			n.recordIteration()
		}

		p.mu.Lock()
		p.iterDone++
		p.nodeIndex = 0
		p.mu.Unlock()
		p.ctrl.Wake(0)
	}
}

// checkBoundary is called before each iteration starts. It reports
// whether the driver should stop (limit reached, or a scheduled cancel
// took effect) and handles parking the driver when a pause is due,
// looping internally until resumed.
func (p *partition) checkBoundary(ctx context.Context, limit int64) (bool, error) {
	for {
		p.mu.Lock()
		done := p.iterDone
		if p.cancelTarget >= 0 && done >= p.cancelTarget {
			p.mu.Unlock()
			return true, nil
		}
		if limit >= 0 && done >= limit {
			p.mu.Unlock()
			return true, nil
		}
		if p.pauseTarget >= 0 && done >= p.pauseTarget {
			p.paused = true
			myGen := p.resumeGen
			p.mu.Unlock()
			p.ctrl.Wake(0)

			if err := p.waitResumed(ctx, myGen); err != nil {
				return true, err
			}

			p.mu.Lock()
			p.paused = false
			// keep a pause requested for a later iteration while parked
			if p.pauseTarget <= done {
				p.pauseTarget = -1
			}
			p.mu.Unlock()
			continue
		}
		p.mu.Unlock()
		return false, nil
	}
}

// waitResumed blocks until resumeGen advances past myGen. It loops on the
// shared control futex: WaitUntil evaluates its condition once per call
// without re-checking after a wake, so looping here is what gives this the
// usual condition-variable "re-check on every wake" behavior for a futex
// that several different callers (pause-waiters, the driver itself) park
// on with different predicates.
func (p *partition) waitResumed(ctx context.Context, myGen int64) error {
	for {
		var advanced bool
		err := p.ctrl.WaitUntil(ctx, func() bool {
			p.mu.Lock()
			advanced = p.resumeGen > myGen
			p.mu.Unlock()
			return advanced
		})
		if err != nil {
			return err
		}
		if advanced {
			return nil
		}
	}
}

func (p *partition) requestPause(iter int64) {
	p.mu.Lock()
	p.pauseTarget = iter
	p.mu.Unlock()
}

// waitPaused blocks until this partition reports paused at iter (or has
// already finished at/after iter with nothing left to pause). See
// waitResumed for why this loops around WaitUntil.
func (p *partition) waitPaused(ctx context.Context, iter int64) error {
	for {
		var reached bool
		err := p.ctrl.WaitUntil(ctx, func() bool {
			p.mu.Lock()
			reached = p.paused && p.iterDone >= iter
			p.mu.Unlock()
			return reached
		})
		if err != nil {
			return err
		}
		if reached {
			return nil
		}
	}
}

func (p *partition) resume() {
	p.mu.Lock()
	p.resumeGen++
	p.mu.Unlock()
	p.ctrl.Wake(0)
}

func (p *partition) requestCancel(iter int64) {
	p.mu.Lock()
	p.cancelTarget = iter
	// a paused driver is released so that it can run on to iter
	p.resumeGen++
	p.mu.Unlock()
	p.ctrl.Wake(0)
}

func (p *partition) query() PartitionQuery {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PartitionQuery{Iterations: p.iterDone, Paused: p.paused}
}
