package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/workload"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Kind     string
	Mode     string
	Tagged   bool
	Outcome  string
	Value    string
	Error    string
	Args     []string
	Token    string
	MaxSteps int
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <callable-name>",
		Short: "Dispatch a single callable and show its settled outcome",
		Long: `Dispatch one callable described entirely by flags.

The callable's shape (kind, mode, tag) decides the path: a tagged
receiver behind interface dispatch takes the relay, everything else
spawns a strand. The scripted outcome then settles the handle, and the
command prints the classification, the settled result, and the trace
digest.

Values given with --value and --arg parse as integers first; anything
that is not a base-10 integer is passed through as a string.

Example:
  weft invoke fetch --tagged --outcome publish --value 42
  weft invoke audit --kind proc --mode direct --arg 7 --arg 35`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeCallable(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Kind, "kind", "func", "callable kind (func, proc)")
	cmd.Flags().StringVar(&opts.Mode, "mode", "interface", "dispatch mode (interface, direct)")
	cmd.Flags().BoolVar(&opts.Tagged, "tagged", false, "put the relay capability on the receiver type")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "publish", "scripted outcome (return, fail, panic, publish, publish_failed, silent)")
	cmd.Flags().StringVar(&opts.Value, "value", "", "scripted result (empty: derived from the arguments)")
	cmd.Flags().StringVar(&opts.Error, "error", "", "failure text for fail/panic/publish_failed outcomes")
	cmd.Flags().StringArrayVar(&opts.Args, "arg", nil, "literal argument (repeatable, up to 6)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "fixed run token (default: fresh UUIDv7)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", sched.DefaultMaxSteps, "scheduler handoff quota")

	return cmd
}

func invokeCallable(opts *InvokeOptions, name string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	step, err := stepFromFlags(opts, name)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return NewExitError(ExitCommandError, err.Error())
	}

	w := &workload.Workload{
		Name:  name,
		Steps: []workload.Step{step},
	}

	runnerOpts := []workload.Option{workload.WithMaxSteps(opts.MaxSteps)}
	if opts.Token != "" {
		runnerOpts = append(runnerOpts, workload.WithTokenGenerator(sched.NewFixedGenerator(opts.Token)))
	}
	runner := workload.NewRunner(runnerOpts...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, runErr := runner.Run(ctx, w)
	if result == nil {
		// Rejected before dispatch: the step never validated.
		_ = formatter.Error(ErrCodeGeneric, runErr.Error(), nil)
		return NewExitError(ExitCommandError, runErr.Error())
	}

	entry := RunEntry{Name: name, Result: result}
	if runErr != nil {
		entry.RunError = runErr.Error()
	}

	if formatter.Format == "json" {
		if runErr != nil {
			if err := formatter.Error(ErrCodeGeneric, entry.RunError, entry); err != nil {
				return err
			}
			return NewExitError(ExitFailure, entry.RunError)
		}
		return formatter.Success(entry)
	}

	path := "spawn"
	if step.Relay() {
		path = "relay"
	}
	tag := "plain"
	if step.Tagged {
		tag = "tagged"
	}
	fmt.Fprintf(formatter.Writer, "callable: %s (%s/%s, %s)\n", name, step.Kind, step.Mode, tag)
	fmt.Fprintf(formatter.Writer, "path: %s\n", path)
	fmt.Fprintf(formatter.Writer, "token: %s\n", result.Token)
	for _, sr := range result.Steps {
		writeStepOutcome(formatter, sr)
	}
	fmt.Fprintf(formatter.Writer, "digest: %s\n", result.Digest)

	if runErr != nil {
		fmt.Fprintf(formatter.Writer, "run error: %s\n", entry.RunError)
		return NewExitError(ExitFailure, entry.RunError)
	}
	return nil
}

// stepFromFlags builds the single dispatched step, validating the enum
// flags up front since nothing here passes through the CUE compiler.
func stepFromFlags(opts *InvokeOptions, name string) (workload.Step, error) {
	step := workload.Step{
		Name:   name,
		Tagged: opts.Tagged,
		Error:  opts.Error,
	}

	switch kind := workload.StepKind(opts.Kind); kind {
	case workload.KindFunc, workload.KindProc:
		step.Kind = kind
	default:
		return step, fmt.Errorf("unknown kind %q (valid: func, proc)", opts.Kind)
	}

	switch mode := workload.DispatchMode(opts.Mode); mode {
	case workload.ModeInterface, workload.ModeDirect:
		step.Mode = mode
	default:
		return step, fmt.Errorf("unknown mode %q (valid: interface, direct)", opts.Mode)
	}

	switch outcome := workload.Outcome(opts.Outcome); outcome {
	case workload.OutcomeReturn, workload.OutcomeFail, workload.OutcomePanic,
		workload.OutcomePublish, workload.OutcomePublishFailed, workload.OutcomeSilent:
		step.Outcome = outcome
	default:
		return step, fmt.Errorf("unknown outcome %q (valid: return, fail, panic, publish, publish_failed, silent)", opts.Outcome)
	}

	for _, raw := range opts.Args {
		step.Args = append(step.Args, workload.Arg{Literal: parseScalar(raw)})
	}
	step.Arity = len(step.Args)

	if opts.Value != "" {
		step.Value = parseScalar(opts.Value)
	}

	return step, nil
}

// parseScalar interprets a flag value as an int64 when possible.
func parseScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
