package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/weftrun/weft/internal/trace"
)

// DefaultMaxSteps is the default maximum number of baton handoffs per run.
// This prevents runaway strands from spinning forever on Yield.
const DefaultMaxSteps = 10000

// Scheduler owns a set of strands and runs them one at a time.
//
// CRITICAL: All strand execution happens under the Run loop's baton.
// External callers spawn root strands before Run; running strands spawn
// children and unpark waiters while they hold the baton.
//
// Thread-safety model:
//   - Spawn(): safe from any goroutine before Run; safe from the
//     running strand during Run
//   - Run(): must be called from exactly one goroutine, once
//   - Stop(): safe from any goroutine
//
// INVARIANTS:
//   - At most one strand runs at any instant
//   - Ready strands resume in FIFO order
//   - Strand IDs are assigned in spawn order
type Scheduler struct {
	clock    *Clock
	queue    *runQueue
	tokenGen TokenGenerator
	quota    *QuotaEnforcer
	maxSteps int
	rec      *trace.Recorder

	// bell is the shared strand -> scheduler baton return channel. Only
	// the strand currently holding the baton ever sends on it.
	bell chan *Strand

	mu      sync.Mutex
	strands map[int64]*Strand
	ids     atomic.Int64
}

// Option configures scheduler parameters.
type Option func(*Scheduler)

// WithMaxSteps sets the maximum baton handoffs per run.
//
// Default: 10000 (DefaultMaxSteps).
// Use WithMaxSteps(10) for testing quota enforcement.
func WithMaxSteps(maxSteps int) Option {
	return func(s *Scheduler) {
		s.maxSteps = maxSteps
	}
}

// WithClock sets a pre-configured clock.
// Used for replay to resume from a specific sequence number.
func WithClock(c *Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithTokenGenerator sets the run token generator.
// Tests use NewFixedGenerator for deterministic tokens.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(s *Scheduler) {
		s.tokenGen = g
	}
}

// WithRecorder attaches a trace recorder. All strand lifecycle and
// dispatch events for this scheduler's strands flow into it.
func WithRecorder(r *trace.Recorder) Option {
	return func(s *Scheduler) {
		s.rec = r
	}
}

// New creates a Scheduler.
//
// Defaults: fresh clock, UUIDv7 run tokens, DefaultMaxSteps quota, no
// trace recorder.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    NewClock(),
		queue:    newRunQueue(),
		tokenGen: UUIDv7Generator{},
		maxSteps: DefaultMaxSteps,
		bell:     make(chan *Strand),
		strands:  make(map[int64]*Strand),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.quota = NewQuotaEnforcer(s.maxSteps)
	return s
}

// Spawn creates a root strand with a freshly generated run token and
// enqueues it ready-to-run.
// Thread-safe before Run starts and from the running strand.
func (s *Scheduler) Spawn(name string, body func(*Strand)) *Strand {
	return s.spawn(name, s.tokenGen.Generate(), body)
}

// spawn registers a strand, starts its gated goroutine, and enqueues it.
// Child spawns arrive here via Strand.Spawn with the parent's token.
func (s *Scheduler) spawn(name, token string, body func(*Strand)) *Strand {
	st := &Strand{
		id:     s.ids.Add(1),
		name:   name,
		token:  token,
		sched:  s,
		body:   body,
		resume: make(chan struct{}),
		quit:   make(chan struct{}),
		state:  stateReady,
	}

	s.mu.Lock()
	s.strands[st.id] = st
	s.mu.Unlock()

	st.Record(trace.KindStrandSpawn, nil)
	go st.run()

	if !s.queue.Enqueue(st) {
		// Scheduler already stopped: the strand will never run.
		slog.Debug("spawn after stop dropped", "strand", name, "token", token)
		close(st.quit)
		s.retire(st)
	}
	return st
}

// Run starts the baton-passing loop.
// Returns when all strands finish, the context is cancelled, Stop() is
// called, the step quota trips, or a deadlock is detected.
//
// CRITICAL: Must be called from exactly ONE goroutine, once per
// scheduler. All strand execution happens under this loop.
//
// The loop never blocks waiting for work: strands become runnable only
// through the strand currently holding the baton, so an empty queue
// with live strands means every one of them is parked - a deadlock,
// reported immediately. Cancellation and Stop take effect at the next
// baton handoff.
//
// ERROR HANDLING: A panic in a strand body is logged with the strand
// context and the run continues - surviving strands are unaffected.
// Quota and deadlock are fatal: the run cannot meaningfully continue.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting", "queued", s.queue.Len(), "max_steps", s.maxSteps)
	defer s.release()

	for {
		if err := ctx.Err(); err != nil {
			slog.Info("scheduler stopping: context cancelled")
			s.queue.Close()
			return err
		}
		if s.queue.Closed() {
			slog.Info("scheduler stopping: queue closed")
			return nil
		}

		st, ok := s.queue.TryDequeue()
		if !ok {
			live, parked := s.census()
			if live == 0 {
				slog.Info("scheduler stopping: all strands finished", "steps", s.quota.Current())
				return nil
			}
			// Nothing is runnable and nothing is running: no strand can
			// ever unpark another. Fail rather than hang.
			s.queue.Close()
			err := NewDeadlockError(parked)
			slog.Error("scheduler deadlock", "parked", len(parked), "error", err)
			return err
		}

		if err := s.step(st); err != nil {
			s.queue.Close()
			return err
		}
	}
}

// Stop gracefully shuts down the scheduler.
// Closes the run queue, which will cause Run() to return. Strands that
// have not finished are abandoned.
func (s *Scheduler) Stop() {
	s.queue.Close()
}

// Steps returns the number of baton handoffs so far.
// Used for diagnostics and tests.
func (s *Scheduler) Steps() int {
	return s.quota.Current()
}

// Recorder returns the attached trace recorder, or nil.
func (s *Scheduler) Recorder() *trace.Recorder {
	return s.rec
}

// Clock returns the scheduler's logical clock.
func (s *Scheduler) Clock() *Clock {
	return s.clock
}

// step hands the baton to one strand and waits for it back.
// CRITICAL: Called only from the Run() goroutine.
func (s *Scheduler) step(st *Strand) error {
	if err := s.quota.Check(st.token); err != nil {
		slog.Error("step quota exceeded", "strand", st.name, "steps", s.quota.Current())
		return NewQuotaError(st.token, s.quota.Current(), s.quota.MaxSteps())
	}

	seq := s.clock.Next()
	slog.Debug("resuming strand", "strand", st.name, "id", st.id, "seq", seq)

	st.state = stateRunning
	st.resume <- struct{}{}
	back := <-s.bell

	switch back.state {
	case stateReady:
		s.queue.Enqueue(back)

	case stateParked:
		slog.Debug("strand parked", "strand", back.name, "id", back.id, "reason", back.parkReason)

	case stateDone:
		if back.failure != nil {
			slog.Error("strand failed", "strand", back.name, "id", back.id, "error", back.failure)
		}
		s.retire(back)

	default:
		// A strand handed the baton back without declaring its state.
		return &RuntimeError{
			Code:    ErrCodeStrandPanic,
			Message: fmt.Sprintf("strand %q returned baton in invalid state %d", back.name, back.state),
			Token:   back.token,
			Strand:  back.name,
		}
	}
	return nil
}

// census counts live strands and describes the parked ones.
// The parked list is sorted for deterministic deadlock reports.
func (s *Scheduler) census() (live int, parked []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range s.strands {
		live++
		if st.state == stateParked {
			parked = append(parked, fmt.Sprintf("%s[%d]: %s", st.name, st.id, st.parkReason))
		}
	}
	sort.Strings(parked)
	return live, parked
}

// retire removes a finished strand from the registry.
func (s *Scheduler) retire(st *Strand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.strands, st.id)
}

// release abandons all remaining strands on Run exit. Their gated
// goroutines unwind via the shutdown signal without running user code.
func (s *Scheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, st := range s.strands {
		close(st.quit)
		delete(s.strands, id)
	}
}
