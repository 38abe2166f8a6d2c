package sched

import "sync"

// runQueue is a thread-safe FIFO queue of ready-to-run strands.
//
// The queue is unbounded: a running strand may spawn or unpark
// arbitrarily many strands without blocking.
//
// Unlike an externally-fed event queue, the run queue never needs a
// blocking wait: strands are enqueued only by the running strand or
// before Run starts, so an empty queue means nothing can become
// runnable - the Run loop decides completion or deadlock on the spot
// instead of waiting.
//
// Thread-safety covers spawning from other goroutines before Run
// starts. In practice, almost all traffic comes from the single
// running strand.
type runQueue struct {
	mu      sync.Mutex
	strands []*Strand
	closed  bool
}

// newRunQueue creates an empty run queue.
func newRunQueue() *runQueue {
	return &runQueue{
		strands: make([]*Strand, 0, 16),
	}
}

// Enqueue adds a strand to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *runQueue) Enqueue(st *Strand) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.strands = append(q.strands, st)
	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (nil, false) if the queue is empty.
func (q *runQueue) TryDequeue() (*Strand, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.strands) == 0 {
		return nil, false
	}

	st := q.strands[0]

	// CRITICAL: Nil out the slot so the backing array doesn't retain the
	// strand after it finishes. Without this, retired strands (and their
	// locals) stay reachable until the slice reallocates.
	q.strands[0] = nil

	if len(q.strands) == 1 {
		// Last element - reset to empty slice with original capacity
		q.strands = q.strands[:0]
	} else {
		q.strands = q.strands[1:]
	}

	return st, true
}

// Len returns the current queue length.
func (q *runQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.strands)
}

// Closed reports whether Close has been called.
func (q *runQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close marks the queue closed. Subsequent Enqueue calls return false.
func (q *runQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}
