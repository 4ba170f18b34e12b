// Package eventlog dispatches the structured events the engine emits at
// every lifecycle crossing (task launched/ready/running/completed/
// canceled, group created/canceled, worker steal/park/wake, SDF node
// fired/blocked, pause/resume/cancel boundaries) to a zerolog.Logger.
//
// The field set mirrors the ftrace line format the logging sink used to
// consume (event name, object id, payload fields) but is not a stability
// contract, exactly as documented for the original text format: callers
// should not parse log output.
package eventlog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Log wraps a zerolog.Logger and an optional async dispatch queue, so that
// the hot path (a worker notifying a successor, a channel blocking) never
// waits on the sink actually writing the event out.
type Log struct {
	base  zerolog.Logger
	queue chan func(zerolog.Logger)

	closeOnce sync.Once
	done      chan struct{}
}

// Nop returns a Log that discards every event, the default until a caller
// attaches a real sink - the core never requires one.
func Nop() *Log {
	return New(zerolog.Nop(), 0)
}

// New returns a Log dispatching onto base through a buffered async queue.
// A buffer of 0 disables the queue and every event is written inline,
// which is only appropriate for tests.
func New(base zerolog.Logger, bufferSize ...int) *Log {
	n := 1024
	if len(bufferSize) > 0 {
		n = bufferSize[0]
	}
	l := &Log{base: base, done: make(chan struct{})}
	if n <= 0 {
		return l
	}
	l.queue = make(chan func(zerolog.Logger), n)
	go l.drain()
	return l
}

func (l *Log) drain() {
	for fn := range l.queue {
		fn(l.base)
	}
	close(l.done)
}

// Close stops accepting new events and blocks until every queued event has
// been dispatched to the sink. It is idempotent.
func (l *Log) Close() {
	l.closeOnce.Do(func() {
		if l.queue != nil {
			close(l.queue)
			<-l.done
		}
	})
}

func (l *Log) dispatch(fn func(zerolog.Logger)) {
	if l.queue == nil {
		fn(l.base)
		return
	}
	select {
	case l.queue <- fn:
	default:
		// queue saturated: degrade to a synchronous write rather than
		// silently dropping an event or blocking a worker indefinitely.
		fn(l.base)
	}
}

// Event emits a single structured event. objID identifies the task, group,
// worker, or node the event concerns; fields are additional key/value
// pairs appended verbatim.
func (l *Log) Event(event string, objID string, fields map[string]any) {
	now := time.Now()
	l.dispatch(func(base zerolog.Logger) {
		e := base.Info().Str("event", event).Str("obj_id", objID).Time("ts", now)
		for k, v := range fields {
			e = e.Interface(k, v)
		}
		e.Send()
	})
}

// Error emits an error-level event, used for engine-internal failures
// (panics recovered from a task body, storage allocation failures) rather
// than routine lifecycle transitions.
func (l *Log) Error(event string, objID string, err error, fields map[string]any) {
	l.dispatch(func(base zerolog.Logger) {
		e := base.Error().Str("event", event).Str("obj_id", objID).Err(err)
		for k, v := range fields {
			e = e.Interface(k, v)
		}
		e.Send()
	})
}
