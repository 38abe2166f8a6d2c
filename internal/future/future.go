// Package future provides the settle-once deferred-result handle used
// by the invocation dispatcher.
//
// A Handle is settled exactly once, with either a value or a failure.
// Later settlement attempts are no-ops. Strands block on a pending
// handle cooperatively: Get parks the calling strand, and settlement
// unparks waiters in park order, so waiting never blocks the scheduler
// and resume order stays deterministic.
package future

import (
	"sync"

	"github.com/weftrun/weft/internal/sched"
)

// Handle is a deferred result: a slot that will eventually hold either
// a value or a failure, but never both.
//
// Thread-safety: Handle methods are safe for concurrent use. Under the
// scheduler's single-runner execution the mutex is uncontended; it
// exists so tests can settle handles without a scheduler.
//
// Get must only be called from a running strand. Settling from outside
// the scheduler is allowed only before Run starts or after it returns.
type Handle struct {
	mu      sync.Mutex
	settled bool
	value   any
	failure error
	waiters []*sched.Strand
}

// New creates an unsettled handle.
func New() *Handle {
	return &Handle{}
}

// Completed creates a handle already settled with a value.
func Completed(value any) *Handle {
	return &Handle{settled: true, value: value}
}

// Failed creates a handle already settled with a failure.
// Panics if err is nil: a nil failure is a settled success, and callers
// who mean that should use Completed.
func Failed(err error) *Handle {
	if err == nil {
		panic("future: Failed with nil error")
	}
	return &Handle{settled: true, failure: err}
}

// Complete settles the handle with a value.
// Returns false if the handle was already settled (the attempt is a
// no-op; the original outcome is preserved).
func (h *Handle) Complete(value any) bool {
	return h.settle(value, nil)
}

// Fail settles the handle with a failure.
// Returns false if the handle was already settled.
// Panics if err is nil.
func (h *Handle) Fail(err error) bool {
	if err == nil {
		panic("future: Fail with nil error")
	}
	return h.settle(nil, err)
}

// Ready reports whether the handle has been settled.
func (h *Handle) Ready() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.settled
}

// Peek returns the outcome without blocking.
// ok is false while the handle is pending; value and err are then nil.
func (h *Handle) Peek() (value any, err error, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.settled {
		return nil, nil, false
	}
	return h.value, h.failure, true
}

// Get returns the settled outcome, parking the calling strand until the
// handle settles. Returns immediately if already settled.
//
// Must be called from the running strand. Waiters resume in the order
// they parked.
func (h *Handle) Get(st *sched.Strand) (any, error) {
	h.mu.Lock()
	if h.settled {
		value, failure := h.value, h.failure
		h.mu.Unlock()
		return value, failure
	}
	h.waiters = append(h.waiters, st)
	h.mu.Unlock()

	// Single-runner execution guarantees nothing settles the handle
	// between the registration above and the park below: the settling
	// strand cannot run until this one hands the baton back.
	st.Park("await handle")

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value, h.failure
}

// settle records the outcome and wakes waiters, exactly once.
func (h *Handle) settle(value any, failure error) bool {
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return false
	}
	h.settled = true
	h.value = value
	h.failure = failure
	waiters := h.waiters
	h.waiters = nil
	h.mu.Unlock()

	// Unpark outside the lock, in park order. Each waiter rejoins the
	// tail of the run queue, so earlier waiters resume earlier.
	for _, st := range waiters {
		st.Unpark()
	}
	return true
}
