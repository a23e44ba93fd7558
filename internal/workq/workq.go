// Package workq is the deferred-work context: a single worker draining work
// items one at a time. Submitting is safe from interrupt-like goroutines; it
// never blocks.
package workq

import (
	"context"
	"sync/atomic"
)

// Work is a reusable work item. A Work is pending from Submit until its
// handler starts, and submitting a pending item is a no-op.
type Work struct {
	name    string
	fn      func()
	pending atomic.Bool
	runs    atomic.Uint64
}

// NewWork creates a work item running fn.
func NewWork(name string, fn func()) *Work {
	return &Work{name: name, fn: fn}
}

// Name returns the item name.
func (w *Work) Name() string { return w.name }

// Pending reports whether the item is queued and not yet started.
func (w *Work) Pending() bool { return w.pending.Load() }

// Runs returns how many times the handler has started.
func (w *Work) Runs() uint64 { return w.runs.Load() }

// Queue holds pending items in submission order.
type Queue struct {
	ch      chan *Work
	stopped chan struct{}
	drops   atomic.Uint32
}

// NewQueue creates a queue with room for depth distinct pending items.
func NewQueue(depth int) *Queue {
	if depth <= 0 {
		depth = 8
	}
	return &Queue{
		ch:      make(chan *Work, depth),
		stopped: make(chan struct{}),
	}
}

// Submit queues w. It returns false when w was already pending or the queue
// is full.
func (q *Queue) Submit(w *Work) bool {
	if !w.pending.CompareAndSwap(false, true) {
		return false
	}
	select {
	case q.ch <- w:
		return true
	default:
		w.pending.Store(false)
		q.drops.Add(1)
		return false
	}
}

// Start runs the worker until ctx is done.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.stopped)
		for {
			select {
			case <-ctx.Done():
				return
			case w := <-q.ch:
				run(w)
			}
		}
	}()
}

// Stopped is closed once the worker started by Start has exited.
func (q *Queue) Stopped() <-chan struct{} { return q.stopped }

// RunPending runs every item queued at the time of the call on the calling
// goroutine and returns how many ran. It must not be mixed with Start.
func (q *Queue) RunPending() int {
	n := 0
	for {
		select {
		case w := <-q.ch:
			run(w)
			n++
		default:
			return n
		}
	}
}

// Drops returns how many submissions were rejected because the queue was full.
func (q *Queue) Drops() uint32 { return q.drops.Load() }

func run(w *Work) {
	// Cleared before the handler so a resubmit during the run queues again.
	w.pending.Store(false)
	w.runs.Add(1)
	w.fn()
}
