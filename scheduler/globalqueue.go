package scheduler

import (
	"sync"

	"go.lepak.sg/mare/task"
)

// globalQueue is the process-wide FIFO submission path used by foreign
// (non-pool) goroutines calling Launch, and by a worker whose local deque
// has hit its soft limit. It is a plain mutex-guarded slice rather than a
// bounded Go channel: a channel send would block the caller (including a
// worker mid-Run) once full, which the overflow design explicitly wants
// to avoid.
type globalQueue struct {
	mu    sync.Mutex
	items []*task.Task
}

func (q *globalQueue) push(t *task.Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

func (q *globalQueue) pop() (*task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t, true
}

func (q *globalQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
