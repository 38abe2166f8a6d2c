package dispatch

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/weftrun/weft/internal/future"
	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/trace"
)

// Invoke0 through Invoke6 and InvokeProc0 through InvokeProc6 dispatch
// a callable and return a handle to its eventual result.
//
// Exactly one of (handle, error) is non-nil. A non-nil error is always
// a *ProtocolError: the dispatch itself was used incorrectly. Callable
// execution failures never surface here - they settle the handle.
//
// Relay path (async-eligible callable): the callable runs in place on
// the calling strand; the handle it publishes is returned as-is, still
// pending if the callable left it pending.
//
// Spawn path (everything else): a child strand is spawned to run the
// callable and the unsettled handle is returned immediately. Arguments
// are already bound; the child settles the handle when it runs.

// Invoke0 dispatches a value-returning callable with no arguments.
func Invoke0[R any](st *sched.Strand, f Func0[R]) (*future.Handle, error) {
	if f.Fn == nil {
		return nil, nilCallableError(st, f.Descriptor)
	}
	return dispatch(st, f.Descriptor, func(run *sched.Strand) (any, error) {
		return f.Fn(run)
	})
}

// Invoke1 dispatches a value-returning callable with one argument.
func Invoke1[A1, R any](st *sched.Strand, f Func1[A1, R], a1 A1) (*future.Handle, error) {
	if f.Fn == nil {
		return nil, nilCallableError(st, f.Descriptor)
	}
	return dispatch(st, f.Descriptor, func(run *sched.Strand) (any, error) {
		return f.Fn(run, a1)
	})
}

// Invoke2 dispatches a value-returning callable with two arguments.
func Invoke2[A1, A2, R any](st *sched.Strand, f Func2[A1, A2, R], a1 A1, a2 A2) (*future.Handle, error) {
	if f.Fn == nil {
		return nil, nilCallableError(st, f.Descriptor)
	}
	return dispatch(st, f.Descriptor, func(run *sched.Strand) (any, error) {
		return f.Fn(run, a1, a2)
	})
}

// Invoke3 dispatches a value-returning callable with three arguments.
func Invoke3[A1, A2, A3, R any](st *sched.Strand, f Func3[A1, A2, A3, R], a1 A1, a2 A2, a3 A3) (*future.Handle, error) {
	if f.Fn == nil {
		return nil, nilCallableError(st, f.Descriptor)
	}
	return dispatch(st, f.Descriptor, func(run *sched.Strand) (any, error) {
		return f.Fn(run, a1, a2, a3)
	})
}

// Invoke4 dispatches a value-returning callable with four arguments.
func Invoke4[A1, A2, A3, A4, R any](st *sched.Strand, f Func4[A1, A2, A3, A4, R], a1 A1, a2 A2, a3 A3, a4 A4) (*future.Handle, error) {
	if f.Fn == nil {
		return nil, nilCallableError(st, f.Descriptor)
	}
	return dispatch(st, f.Descriptor, func(run *sched.Strand) (any, error) {
		return f.Fn(run, a1, a2, a3, a4)
	})
}

// Invoke5 dispatches a value-returning callable with five arguments.
func Invoke5[A1, A2, A3, A4, A5, R any](st *sched.Strand, f Func5[A1, A2, A3, A4, A5, R], a1 A1, a2 A2, a3 A3, a4 A4, a5 A5) (*future.Handle, error) {
	if f.Fn == nil {
		return nil, nilCallableError(st, f.Descriptor)
	}
	return dispatch(st, f.Descriptor, func(run *sched.Strand) (any, error) {
		return f.Fn(run, a1, a2, a3, a4, a5)
	})
}

// Invoke6 dispatches a value-returning callable with six arguments.
func Invoke6[A1, A2, A3, A4, A5, A6, R any](st *sched.Strand, f Func6[A1, A2, A3, A4, A5, A6, R], a1 A1, a2 A2, a3 A3, a4 A4, a5 A5, a6 A6) (*future.Handle, error) {
	if f.Fn == nil {
		return nil, nilCallableError(st, f.Descriptor)
	}
	return dispatch(st, f.Descriptor, func(run *sched.Strand) (any, error) {
		return f.Fn(run, a1, a2, a3, a4, a5, a6)
	})
}

// InvokeProc0 dispatches a procedure with no arguments.
// The handle settles with a nil value on success.
func InvokeProc0(st *sched.Strand, p Proc0) (*future.Handle, error) {
	if p.Fn == nil {
		return nil, nilCallableError(st, p.Descriptor)
	}
	return dispatch(st, p.Descriptor, func(run *sched.Strand) (any, error) {
		return nil, p.Fn(run)
	})
}

// InvokeProc1 dispatches a procedure with one argument.
func InvokeProc1[A1 any](st *sched.Strand, p Proc1[A1], a1 A1) (*future.Handle, error) {
	if p.Fn == nil {
		return nil, nilCallableError(st, p.Descriptor)
	}
	return dispatch(st, p.Descriptor, func(run *sched.Strand) (any, error) {
		return nil, p.Fn(run, a1)
	})
}

// InvokeProc2 dispatches a procedure with two arguments.
func InvokeProc2[A1, A2 any](st *sched.Strand, p Proc2[A1, A2], a1 A1, a2 A2) (*future.Handle, error) {
	if p.Fn == nil {
		return nil, nilCallableError(st, p.Descriptor)
	}
	return dispatch(st, p.Descriptor, func(run *sched.Strand) (any, error) {
		return nil, p.Fn(run, a1, a2)
	})
}

// InvokeProc3 dispatches a procedure with three arguments.
func InvokeProc3[A1, A2, A3 any](st *sched.Strand, p Proc3[A1, A2, A3], a1 A1, a2 A2, a3 A3) (*future.Handle, error) {
	if p.Fn == nil {
		return nil, nilCallableError(st, p.Descriptor)
	}
	return dispatch(st, p.Descriptor, func(run *sched.Strand) (any, error) {
		return nil, p.Fn(run, a1, a2, a3)
	})
}

// InvokeProc4 dispatches a procedure with four arguments.
func InvokeProc4[A1, A2, A3, A4 any](st *sched.Strand, p Proc4[A1, A2, A3, A4], a1 A1, a2 A2, a3 A3, a4 A4) (*future.Handle, error) {
	if p.Fn == nil {
		return nil, nilCallableError(st, p.Descriptor)
	}
	return dispatch(st, p.Descriptor, func(run *sched.Strand) (any, error) {
		return nil, p.Fn(run, a1, a2, a3, a4)
	})
}

// InvokeProc5 dispatches a procedure with five arguments.
func InvokeProc5[A1, A2, A3, A4, A5 any](st *sched.Strand, p Proc5[A1, A2, A3, A4, A5], a1 A1, a2 A2, a3 A3, a4 A4, a5 A5) (*future.Handle, error) {
	if p.Fn == nil {
		return nil, nilCallableError(st, p.Descriptor)
	}
	return dispatch(st, p.Descriptor, func(run *sched.Strand) (any, error) {
		return nil, p.Fn(run, a1, a2, a3, a4, a5)
	})
}

// InvokeProc6 dispatches a procedure with six arguments.
func InvokeProc6[A1, A2, A3, A4, A5, A6 any](st *sched.Strand, p Proc6[A1, A2, A3, A4, A5, A6], a1 A1, a2 A2, a3 A3, a4 A4, a5 A5, a6 A6) (*future.Handle, error) {
	if p.Fn == nil {
		return nil, nilCallableError(st, p.Descriptor)
	}
	return dispatch(st, p.Descriptor, func(run *sched.Strand) (any, error) {
		return nil, p.Fn(run, a1, a2, a3, a4, a5, a6)
	})
}

// thunk is an arity-erased callable with its arguments already bound.
type thunk func(*sched.Strand) (any, error)

// dispatch routes a bound callable down the relay or spawn path.
// CRITICAL: Must be called from the running strand.
func dispatch(st *sched.Strand, d Descriptor, run thunk) (*future.Handle, error) {
	eligible := AsyncEligible(d)
	name := callableName(d)

	st.Record(trace.KindDispatch, map[string]string{
		"callable": name,
		"eligible": strconv.FormatBool(eligible),
	})
	slog.Debug("dispatching callable",
		"callable", name,
		"eligible", eligible,
		"strand", st.Name(),
	)

	if eligible {
		return dispatchRelay(st, name, run)
	}
	return dispatchSpawn(st, name, run)
}

// dispatchRelay runs the callable in place and returns the handle it
// published. The relay is closed on every exit path.
func dispatchRelay(st *sched.Strand, name string, run thunk) (*future.Handle, error) {
	if err := openRelay(st, name); err != nil {
		recordDispatchError(st, name, err)
		return nil, err
	}

	if failure := runDiscarding(st, run); failure != nil {
		// Thrown failure takes priority over anything published.
		discardRelay(st, name, "callable_failed")
		st.Record(trace.KindHandleSettle, map[string]string{
			"callable": name,
			"outcome":  "failed",
		})
		slog.Debug("relay callable failed", "callable", name, "error", failure)
		return future.Failed(failure), nil
	}

	h, err := consumeAndClose(st, name)
	if err != nil {
		recordDispatchError(st, name, err)
		return nil, err
	}
	return h, nil
}

// dispatchSpawn creates an unsettled handle, spawns a child strand to
// run the callable, and returns without waiting.
func dispatchSpawn(st *sched.Strand, name string, run thunk) (*future.Handle, error) {
	h := future.New()
	st.Spawn(name, func(child *sched.Strand) {
		value, failure := call(child, run)
		if failure != nil {
			h.Fail(failure)
			child.Record(trace.KindHandleSettle, map[string]string{
				"callable": name,
				"outcome":  "failed",
			})
			return
		}
		h.Complete(value)
		child.Record(trace.KindHandleSettle, map[string]string{
			"callable": name,
			"outcome":  "completed",
		})
	})
	return h, nil
}

// call runs a bound callable with panic capture, normalizing any
// failure. The scheduler's shutdown unwind is re-panicked untouched.
func call(st *sched.Strand, run thunk) (value any, failure error) {
	defer func() {
		if r := recover(); r != nil {
			if sched.IsShutdownPanic(r) {
				panic(r)
			}
			value = nil
			failure = future.NormalizePanic(r)
		}
	}()

	out, err := run(st)
	if err != nil {
		return nil, future.NormalizeError(err)
	}
	return out, nil
}

// runDiscarding runs a bound callable for its relay effects only; the
// ordinary return value is ignored per the relay-path contract.
func runDiscarding(st *sched.Strand, run thunk) error {
	_, failure := call(st, run)
	return failure
}

// nilCallableError rejects a descriptor with no function. The dispatch
// event is still recorded so every dispatcher entry appears in the
// trace, rejected or not.
func nilCallableError(st *sched.Strand, d Descriptor) error {
	name := callableName(d)
	st.Record(trace.KindDispatch, map[string]string{
		"callable": name,
		"eligible": strconv.FormatBool(AsyncEligible(d)),
	})
	err := &ProtocolError{
		Code:     ErrCodeNilCallable,
		Message:  "descriptor has no function to run",
		Strand:   st.Name(),
		Callable: name,
	}
	recordDispatchError(st, name, err)
	return err
}

func recordDispatchError(st *sched.Strand, name string, err error) {
	detail := map[string]string{"callable": name}
	var pe *ProtocolError
	if errors.As(err, &pe) {
		detail["code"] = string(pe.Code)
	}
	st.Record(trace.KindDispatchError, detail)
	slog.Debug("dispatch protocol error", "callable", name, "strand", st.Name(), "error", err)
}

func callableName(d Descriptor) string {
	if d.Name == "" {
		return "anonymous"
	}
	return d.Name
}
