package dispatch

import "github.com/weftrun/weft/internal/sched"

// The Func and Proc families wrap callables of arity 0 through 6 with
// their dispatch descriptors. Funcs return a value, Procs do not; both
// may fail. Every callable receives the strand it runs on: the calling
// strand on the relay path, a spawned strand otherwise.
//
// Arguments are bound at Invoke time - the typed parameters are
// captured before any dispatch decision is made.

// Func0 is a value-returning callable taking no arguments.
type Func0[R any] struct {
	Descriptor
	Fn func(*sched.Strand) (R, error)
}

// Func1 is a value-returning callable taking one argument.
type Func1[A1, R any] struct {
	Descriptor
	Fn func(*sched.Strand, A1) (R, error)
}

// Func2 is a value-returning callable taking two arguments.
type Func2[A1, A2, R any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2) (R, error)
}

// Func3 is a value-returning callable taking three arguments.
type Func3[A1, A2, A3, R any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2, A3) (R, error)
}

// Func4 is a value-returning callable taking four arguments.
type Func4[A1, A2, A3, A4, R any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2, A3, A4) (R, error)
}

// Func5 is a value-returning callable taking five arguments.
type Func5[A1, A2, A3, A4, A5, R any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2, A3, A4, A5) (R, error)
}

// Func6 is a value-returning callable taking six arguments.
type Func6[A1, A2, A3, A4, A5, A6, R any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2, A3, A4, A5, A6) (R, error)
}

// Proc0 is a callable returning nothing, taking no arguments.
type Proc0 struct {
	Descriptor
	Fn func(*sched.Strand) error
}

// Proc1 is a callable returning nothing, taking one argument.
type Proc1[A1 any] struct {
	Descriptor
	Fn func(*sched.Strand, A1) error
}

// Proc2 is a callable returning nothing, taking two arguments.
type Proc2[A1, A2 any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2) error
}

// Proc3 is a callable returning nothing, taking three arguments.
type Proc3[A1, A2, A3 any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2, A3) error
}

// Proc4 is a callable returning nothing, taking four arguments.
type Proc4[A1, A2, A3, A4 any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2, A3, A4) error
}

// Proc5 is a callable returning nothing, taking five arguments.
type Proc5[A1, A2, A3, A4, A5 any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2, A3, A4, A5) error
}

// Proc6 is a callable returning nothing, taking six arguments.
type Proc6[A1, A2, A3, A4, A5, A6 any] struct {
	Descriptor
	Fn func(*sched.Strand, A1, A2, A3, A4, A5, A6) error
}
