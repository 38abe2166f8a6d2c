package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/weftrun/weft/internal/dispatch"
	"github.com/weftrun/weft/internal/future"
	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/trace"
)

// Runner executes workloads against a fresh scheduler per run.
type Runner struct {
	maxSteps int
	tokenGen sched.TokenGenerator
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxSteps caps the scheduler step quota for each run.
func WithMaxSteps(n int) Option {
	return func(r *Runner) {
		r.maxSteps = n
	}
}

// WithTokenGenerator sets the run token source. Fixed tokens make
// digests reproducible across runs.
func WithTokenGenerator(g sched.TokenGenerator) Option {
	return func(r *Runner) {
		r.tokenGen = g
	}
}

// NewRunner creates a runner with the given options.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		maxSteps: sched.DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunResult is the outcome of one workload run: per-step results plus
// the full trace and its digest.
type RunResult struct {
	Workload string        `json:"workload"`
	Token    string        `json:"token"`
	Steps    []StepResult  `json:"steps"`
	Events   []trace.Event `json:"events"`
	Digest   string        `json:"digest"`
}

// StepResult is the settled outcome of one step. At most one of
// Failure, Protocol, and Skipped is set; Value is meaningful only when
// all three are empty.
type StepResult struct {
	Step string `json:"step"`

	// Value is the settled result.
	Value any `json:"value,omitempty"`

	// Failure is the settled failure text, when the callable failed.
	Failure string `json:"failure,omitempty"`

	// Protocol is the dispatch error text, when the dispatch itself was
	// rejected and no handle exists.
	Protocol string `json:"protocol,omitempty"`

	// Skipped explains why the step was never dispatched.
	Skipped string `json:"skipped,omitempty"`
}

// Run executes the workload and returns its result. The workload must
// validate cleanly.
//
// A non-nil error reports a run-level failure (deadlock, quota, cancel);
// the result still carries whatever trace was recorded up to that
// point.
func (r *Runner) Run(ctx context.Context, w *Workload) (*RunResult, error) {
	if errs := Validate(w); len(errs) > 0 {
		return nil, fmt.Errorf("workload %q: %w", w.Name, errs[0])
	}

	rec := trace.NewRecorder()
	opts := []sched.Option{
		sched.WithRecorder(rec),
		sched.WithMaxSteps(r.maxSteps),
	}
	if r.tokenGen != nil {
		opts = append(opts, sched.WithTokenGenerator(r.tokenGen))
	}
	s := sched.New(opts...)

	result := &RunResult{
		Workload: w.Name,
		Steps:    make([]StepResult, len(w.Steps)),
	}
	for i, step := range w.Steps {
		result.Steps[i] = StepResult{Step: step.Name}
	}

	handles := make(map[string]*future.Handle, len(w.Steps))

	s.Spawn(w.Name, func(root *sched.Strand) {
		result.Token = root.Token()

		for i, step := range w.Steps {
			r.runStep(root, step, handles, &result.Steps[i])
		}

		// Settle pass: resolve every handle so spawn-path children
		// finish before the root strand does.
		for i, step := range w.Steps {
			h, ok := handles[step.Name]
			if !ok {
				continue
			}
			value, err := h.Get(root)
			if err != nil {
				result.Steps[i].Failure = err.Error()
				continue
			}
			result.Steps[i].Value = value
		}
	})

	slog.Debug("running workload", "workload", w.Name, "steps", len(w.Steps))
	runErr := s.Run(ctx)

	result.Events = rec.Events()
	digest, digestErr := trace.Digest(result.Events)
	if digestErr != nil {
		return result, fmt.Errorf("digesting trace: %w", digestErr)
	}
	result.Digest = digest

	if runErr != nil {
		return result, runErr
	}
	return result, nil
}

// runStep binds arguments, dispatches one step, and files the handle.
// Dispatch rejections and unresolvable references are recorded on the
// step result; they never abort the remaining steps.
func (r *Runner) runStep(root *sched.Strand, step Step, handles map[string]*future.Handle, sr *StepResult) {
	args, skip := resolveArgs(root, step, handles)
	if skip != "" {
		sr.Skipped = skip
		return
	}

	h, err := dispatchStep(root, step, args)
	if err != nil {
		sr.Protocol = err.Error()
		return
	}
	handles[step.Name] = h
}

// resolveArgs produces the bound argument values for a step. A ref
// resolves by waiting on the referenced step's handle; a reference to a
// failed or never-dispatched step skips this step.
func resolveArgs(root *sched.Strand, step Step, handles map[string]*future.Handle) ([]any, string) {
	args := make([]any, len(step.Args))
	for i, arg := range step.Args {
		if arg.Ref == "" {
			args[i] = arg.Literal
			continue
		}
		h, ok := handles[arg.Ref]
		if !ok {
			return nil, fmt.Sprintf("args[%d]: step %q produced no handle", i, arg.Ref)
		}
		value, err := h.Get(root)
		if err != nil {
			return nil, fmt.Sprintf("args[%d]: step %q failed: %v", i, arg.Ref, err)
		}
		args[i] = value
	}
	return args, ""
}

// dispatchStep routes a step through the invoke entry matching its kind
// and arity.
func dispatchStep(root *sched.Strand, step Step, args []any) (*future.Handle, error) {
	desc := descriptorFor(step)
	perform := func(st *sched.Strand, bound []any) (any, error) {
		return performOutcome(st, step, bound)
	}

	if step.Kind == KindProc {
		effect := func(st *sched.Strand, bound []any) error {
			_, err := perform(st, bound)
			return err
		}
		switch step.Arity {
		case 0:
			return dispatch.InvokeProc0(root, dispatch.Proc0{Descriptor: desc,
				Fn: func(st *sched.Strand) error { return effect(st, nil) }})
		case 1:
			return dispatch.InvokeProc1(root, dispatch.Proc1[any]{Descriptor: desc,
				Fn: func(st *sched.Strand, a1 any) error { return effect(st, []any{a1}) }}, args[0])
		case 2:
			return dispatch.InvokeProc2(root, dispatch.Proc2[any, any]{Descriptor: desc,
				Fn: func(st *sched.Strand, a1, a2 any) error { return effect(st, []any{a1, a2}) }}, args[0], args[1])
		case 3:
			return dispatch.InvokeProc3(root, dispatch.Proc3[any, any, any]{Descriptor: desc,
				Fn: func(st *sched.Strand, a1, a2, a3 any) error { return effect(st, []any{a1, a2, a3}) }}, args[0], args[1], args[2])
		case 4:
			return dispatch.InvokeProc4(root, dispatch.Proc4[any, any, any, any]{Descriptor: desc,
				Fn: func(st *sched.Strand, a1, a2, a3, a4 any) error { return effect(st, []any{a1, a2, a3, a4}) }}, args[0], args[1], args[2], args[3])
		case 5:
			return dispatch.InvokeProc5(root, dispatch.Proc5[any, any, any, any, any]{Descriptor: desc,
				Fn: func(st *sched.Strand, a1, a2, a3, a4, a5 any) error { return effect(st, []any{a1, a2, a3, a4, a5}) }}, args[0], args[1], args[2], args[3], args[4])
		default:
			return dispatch.InvokeProc6(root, dispatch.Proc6[any, any, any, any, any, any]{Descriptor: desc,
				Fn: func(st *sched.Strand, a1, a2, a3, a4, a5, a6 any) error { return effect(st, []any{a1, a2, a3, a4, a5, a6}) }}, args[0], args[1], args[2], args[3], args[4], args[5])
		}
	}

	switch step.Arity {
	case 0:
		return dispatch.Invoke0(root, dispatch.Func0[any]{Descriptor: desc,
			Fn: func(st *sched.Strand) (any, error) { return perform(st, nil) }})
	case 1:
		return dispatch.Invoke1(root, dispatch.Func1[any, any]{Descriptor: desc,
			Fn: func(st *sched.Strand, a1 any) (any, error) { return perform(st, []any{a1}) }}, args[0])
	case 2:
		return dispatch.Invoke2(root, dispatch.Func2[any, any, any]{Descriptor: desc,
			Fn: func(st *sched.Strand, a1, a2 any) (any, error) { return perform(st, []any{a1, a2}) }}, args[0], args[1])
	case 3:
		return dispatch.Invoke3(root, dispatch.Func3[any, any, any, any]{Descriptor: desc,
			Fn: func(st *sched.Strand, a1, a2, a3 any) (any, error) { return perform(st, []any{a1, a2, a3}) }}, args[0], args[1], args[2])
	case 4:
		return dispatch.Invoke4(root, dispatch.Func4[any, any, any, any, any]{Descriptor: desc,
			Fn: func(st *sched.Strand, a1, a2, a3, a4 any) (any, error) { return perform(st, []any{a1, a2, a3, a4}) }}, args[0], args[1], args[2], args[3])
	case 5:
		return dispatch.Invoke5(root, dispatch.Func5[any, any, any, any, any, any]{Descriptor: desc,
			Fn: func(st *sched.Strand, a1, a2, a3, a4, a5 any) (any, error) { return perform(st, []any{a1, a2, a3, a4, a5}) }}, args[0], args[1], args[2], args[3], args[4])
	default:
		return dispatch.Invoke6(root, dispatch.Func6[any, any, any, any, any, any, any]{Descriptor: desc,
			Fn: func(st *sched.Strand, a1, a2, a3, a4, a5, a6 any) (any, error) { return perform(st, []any{a1, a2, a3, a4, a5, a6}) }}, args[0], args[1], args[2], args[3], args[4], args[5])
	}
}

// descriptorFor builds the dispatch descriptor matching the step's
// declared classification.
func descriptorFor(step Step) dispatch.Descriptor {
	var receiver any
	if step.Tagged {
		receiver = relayReceiver{}
	} else {
		receiver = plainReceiver{}
	}
	return dispatch.Descriptor{
		Receiver:     receiver,
		ViaInterface: step.Mode == ModeInterface,
		Name:         step.Name,
	}
}

// performOutcome runs the scripted behavior of a step's callable.
func performOutcome(st *sched.Strand, step Step, bound []any) (any, error) {
	value := step.Value
	if value == nil {
		value = deriveValue(bound)
	}

	switch step.Outcome {
	case OutcomePublish:
		if dispatch.RelayOpen(st) {
			return nil, dispatch.Publish(st, future.Completed(value))
		}
		return value, nil
	case OutcomePublishFailed:
		if dispatch.RelayOpen(st) {
			return nil, dispatch.Publish(st, future.Failed(errors.New(step.Error)))
		}
		return nil, errors.New(step.Error)
	case OutcomeFail:
		return nil, errors.New(step.Error)
	case OutcomePanic:
		panic(step.Error)
	case OutcomeSilent:
		return nil, nil
	default:
		return value, nil
	}
}

// deriveValue combines bound arguments into a step result when the step
// declares no explicit value: integer arguments sum, anything else is
// joined with "+".
func deriveValue(bound []any) any {
	if len(bound) == 0 {
		return nil
	}

	sum := int64(0)
	allInts := true
	for _, v := range bound {
		switch n := v.(type) {
		case int64:
			sum += n
		case int:
			sum += int64(n)
		default:
			allInts = false
		}
	}
	if allInts {
		return sum
	}

	parts := make([]string, len(bound))
	for i, v := range bound {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "+")
}
