// Package workload compiles declarative dispatch scenarios from CUE and
// runs them against the scheduler. A workload is a named sequence of
// steps; each step describes one dispatch - its callable shape, how it
// is classified, and how the simulated callable behaves.
package workload

// Workload is a compiled description of a dispatch sequence. Steps run
// in declaration order on a single root strand; a step's arguments may
// reference the results of earlier steps.
type Workload struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// StepKind selects the callable family a step dispatches.
type StepKind string

const (
	// KindFunc dispatches a value-returning callable.
	KindFunc StepKind = "func"
	// KindProc dispatches a procedure; its handle settles with nil.
	KindProc StepKind = "proc"
)

// DispatchMode describes how the call site reaches the callable.
type DispatchMode string

const (
	// ModeInterface marks the call as interface-dispatched.
	ModeInterface DispatchMode = "interface"
	// ModeDirect marks a direct call, which never takes the relay path.
	ModeDirect DispatchMode = "direct"
)

// Outcome scripts what the simulated callable does when it runs.
type Outcome string

const (
	// OutcomeReturn returns the step value through the ordinary return.
	OutcomeReturn Outcome = "return"
	// OutcomeFail returns an error built from the step's error text.
	OutcomeFail Outcome = "fail"
	// OutcomePanic panics with the step's error text.
	OutcomePanic Outcome = "panic"
	// OutcomePublish publishes a completed handle when the relay is
	// open, and falls back to returning the value when it is not.
	OutcomePublish Outcome = "publish"
	// OutcomePublishFailed publishes a failed handle when the relay is
	// open, and falls back to returning the error when it is not.
	OutcomePublishFailed Outcome = "publish_failed"
	// OutcomeSilent returns without publishing. On the relay path this
	// provokes a RESULT_NOT_PUBLISHED dispatch error.
	OutcomeSilent Outcome = "silent"
)

// Arg is one bound argument: a literal string or int, or a reference to
// an earlier step's settled result.
type Arg struct {
	// Literal is the inline value. nil when Ref is set.
	Literal any `json:"literal,omitempty"`
	// Ref names an earlier step whose result is passed.
	Ref string `json:"ref,omitempty"`
}

// Step is one dispatch in a workload.
type Step struct {
	Name string `json:"name"`

	Kind  StepKind     `json:"kind"`
	Arity int          `json:"arity"`
	Mode  DispatchMode `json:"mode"`

	// Tagged puts the relay capability on the step's receiver type.
	// Tagged + ModeInterface is the relay path; everything else spawns.
	Tagged bool `json:"tagged"`

	Args []Arg `json:"args,omitempty"`

	Outcome Outcome `json:"outcome"`

	// Value is the scripted result for return/publish outcomes. When
	// nil, the result is derived from the bound arguments instead.
	Value any `json:"value,omitempty"`

	// Error is the failure text for fail/panic/publish_failed outcomes.
	Error string `json:"error,omitempty"`
}

// Relay reports whether the step's classification takes the relay path.
func (s Step) Relay() bool {
	return s.Tagged && s.Mode == ModeInterface
}

// relayReceiver is the receiver type used for tagged steps.
type relayReceiver struct{}

func (relayReceiver) RelayCapable() {}

// plainReceiver is the receiver type used for untagged steps.
type plainReceiver struct{}
