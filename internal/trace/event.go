package trace

import "sync"

// Event kinds recorded by the runtime.
//
// Strand lifecycle events come from the scheduler; dispatch and relay
// events come from the invocation dispatcher. Resume/yield transitions
// are deliberately NOT recorded - they would dominate the trace without
// adding information the seq ordering doesn't already carry.
const (
	// KindStrandSpawn is recorded when a strand is created.
	KindStrandSpawn = "strand_spawn"

	// KindStrandFinish is recorded when a strand's body returns or panics.
	KindStrandFinish = "strand_finish"

	// KindDispatch is recorded at every dispatcher entry, before the
	// relay-vs-spawn decision is acted on.
	KindDispatch = "dispatch"

	// KindDispatchError is recorded when a dispatch fails with a
	// protocol error (reentrancy, unpublished result, nil callable).
	KindDispatchError = "dispatch_error"

	// KindRelayOpen is recorded when the dispatcher opens the relay
	// on the calling strand.
	KindRelayOpen = "relay_open"

	// KindRelayPublish is recorded when a callable hands a result
	// handle to the open relay.
	KindRelayPublish = "relay_publish"

	// KindRelayConsume is recorded when the dispatcher takes the
	// published handle and closes the relay.
	KindRelayConsume = "relay_consume"

	// KindRelayClose is recorded when the relay is closed without
	// its handle being returned (callable failure, unpublished slot).
	KindRelayClose = "relay_close"

	// KindHandleSettle is recorded when the dispatcher settles a
	// handle it created (spawned execution or captured failure).
	KindHandleSettle = "handle_settle"
)

// Event is one runtime occurrence in a recorded trace.
//
// Detail values are strings only. Callers format numbers themselves
// (strconv/fmt) so events stay trivially canonicalizable - no floats,
// no nulls, no nested structures.
type Event struct {
	// Seq is the recorder-assigned position, starting at 1.
	// Strictly increasing across the whole trace.
	Seq int64 `json:"seq"`

	// Strand is the numeric ID of the strand the event occurred on.
	Strand int64 `json:"strand"`

	// StrandName is the human-readable strand name.
	StrandName string `json:"strand_name"`

	// Token is the run correlation token the strand carries.
	Token string `json:"token"`

	// Kind is one of the Kind* constants.
	Kind string `json:"kind"`

	// Detail holds event-specific context (callable name, outcome, ...).
	Detail map[string]string `json:"detail,omitempty"`
}

// Recorder collects events in occurrence order and assigns seq numbers.
//
// Seq assignment is the recorder's job, not the caller's: the single
// counter is what makes two traces comparable position by position.
//
// Thread-safety: Recorder is safe for concurrent use. Under the
// scheduler's single-runner execution only one strand records at a
// time, but the mutex keeps the type safe for tests that record
// directly.
type Recorder struct {
	mu     sync.Mutex
	seq    int64
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		events: make([]Event, 0, 64),
	}
}

// Record appends the event, assigning the next seq number.
// Returns the assigned seq. Any Seq value already set on the event
// is overwritten.
func (r *Recorder) Record(e Event) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e.Seq = r.seq
	r.events = append(r.events, e)
	return e.Seq
}

// Events returns a copy of the recorded events in seq order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}
