package sched

import (
	"fmt"
	"runtime/debug"

	"github.com/weftrun/weft/internal/trace"
)

// strandState tracks where a strand is in its lifecycle.
//
// Transitions are only made by the strand itself (while it holds the
// baton) or by the scheduler/running strand while the subject strand is
// quiescent. The single-runner discipline is what makes the unguarded
// field safe: at most one goroutine can be looking at it.
type strandState int

const (
	stateReady strandState = iota + 1
	stateRunning
	stateParked
	stateDone
)

// strandKilled is the panic value used to unwind a strand's body when
// the scheduler shuts down with the strand still live. It is recovered
// by the strand's own finish handler and never escapes.
type strandKilled struct{}

// IsShutdownPanic reports whether a recovered value is the scheduler's
// internal strand-shutdown signal. Code that recovers panics while
// running on a strand MUST re-panic such values so the unwind reaches
// the strand runner.
func IsShutdownPanic(r any) bool {
	_, ok := r.(strandKilled)
	return ok
}

// Strand is a scheduler-managed logical thread.
//
// A strand's goroutine runs only while it holds the baton; every
// Yield/Park/return hands the baton back to the scheduler. Strand-local
// storage is therefore single-owner state: no other strand can run, let
// alone touch it, while the owner does.
//
// All methods except Unpark must be called from the strand's own body
// while it is running. Unpark is called by whichever strand (or pre-Run
// code) makes the parked strand runnable again.
type Strand struct {
	id    int64
	name  string
	token string
	sched *Scheduler
	body  func(*Strand)

	resume chan struct{} // scheduler -> strand: you have the baton
	quit   chan struct{} // closed when the scheduler abandons the strand

	state      strandState
	parkReason string
	failure    error

	// locals is lazily allocated, keyed by unexported types per the
	// context.Context convention. Only the owning strand touches it.
	locals map[any]any
}

// ID returns the strand's scheduler-assigned numeric ID.
// IDs are assigned in spawn order starting at 1.
func (s *Strand) ID() int64 {
	return s.id
}

// Name returns the strand's human-readable name.
func (s *Strand) Name() string {
	return s.name
}

// Token returns the run correlation token the strand carries.
func (s *Strand) Token() string {
	return s.token
}

// Scheduler returns the scheduler that owns this strand.
func (s *Strand) Scheduler() *Scheduler {
	return s.sched
}

// Spawn creates a child strand inheriting this strand's run token and
// enqueues it at the tail of the run queue. The child does not run
// until this strand next hands the baton back.
func (s *Strand) Spawn(name string, body func(*Strand)) *Strand {
	return s.sched.spawn(name, s.token, body)
}

// Yield hands the baton back to the scheduler and requeues this strand
// at the tail of the run queue. Returns when the strand is resumed.
func (s *Strand) Yield() {
	s.state = stateReady
	s.handoff()
}

// Park suspends the strand until another strand calls Unpark. The
// reason string appears in deadlock reports and debug logs.
//
// A strand that parks with nobody left to unpark it turns into a
// deadlock, which Run reports rather than hanging.
func (s *Strand) Park(reason string) {
	s.state = stateParked
	s.parkReason = reason
	s.handoff()
	s.parkReason = ""
}

// Unpark makes a parked strand runnable again, enqueuing it at the tail
// of the run queue. No-op if the strand is not parked.
//
// Call from a running strand (or before Run starts). Unpark order is
// preserved: strands unparked earlier resume earlier.
func (s *Strand) Unpark() {
	if s.state != stateParked {
		return
	}
	s.state = stateReady
	s.sched.queue.Enqueue(s)
}

// Local returns the strand-local value stored under key.
func (s *Strand) Local(key any) (any, bool) {
	v, ok := s.locals[key]
	return v, ok
}

// SetLocal stores a strand-local value under key.
func (s *Strand) SetLocal(key, value any) {
	if s.locals == nil {
		s.locals = make(map[any]any)
	}
	s.locals[key] = value
}

// ClearLocal removes the strand-local value stored under key.
func (s *Strand) ClearLocal(key any) {
	delete(s.locals, key)
}

// Record emits a trace event attributed to this strand.
// No-op when the scheduler has no recorder configured.
func (s *Strand) Record(kind string, detail map[string]string) {
	rec := s.sched.rec
	if rec == nil {
		return
	}
	rec.Record(trace.Event{
		Strand:     s.id,
		StrandName: s.name,
		Token:      s.token,
		Kind:       kind,
		Detail:     detail,
	})
}

// run is the strand's goroutine body. It waits for the first baton
// handoff before touching anything, so a spawned-but-never-scheduled
// strand does no work at all.
func (s *Strand) run() {
	select {
	case <-s.resume:
	case <-s.quit:
		s.state = stateDone
		return
	}
	defer s.finish()
	s.body(s)
}

// finish settles the strand after its body returns or panics, records
// the lifecycle event, and rings the bell one last time.
//
// Must be installed with defer directly (not wrapped) so recover() sees
// the body's panic.
func (s *Strand) finish() {
	if r := recover(); r != nil {
		if IsShutdownPanic(r) {
			// Scheduler shut down while this strand was live. There is
			// nobody listening on the bell; just exit.
			s.state = stateDone
			return
		}
		s.failure = &RuntimeError{
			Code:    ErrCodeStrandPanic,
			Message: fmt.Sprintf("strand body panicked: %v", r),
			Token:   s.token,
			Strand:  s.name,
			Details: map[string]string{
				"stack": string(debug.Stack()),
			},
		}
	}

	s.state = stateDone

	detail := map[string]string{"failed": "false"}
	if s.failure != nil {
		detail["failed"] = "true"
	}
	s.Record(trace.KindStrandFinish, detail)

	select {
	case s.sched.bell <- s:
	case <-s.quit:
	}
}

// handoff rings the bell and waits for the next baton. Called with the
// desired post-handoff state already set (ready or parked).
//
// Panics with the shutdown signal if the scheduler abandons the strand
// mid-handoff; finish() recovers it.
func (s *Strand) handoff() {
	select {
	case s.sched.bell <- s:
	case <-s.quit:
		panic(strandKilled{})
	}
	select {
	case <-s.resume:
	case <-s.quit:
		panic(strandKilled{})
	}
}
