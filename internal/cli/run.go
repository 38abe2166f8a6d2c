package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/workload"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	MaxSteps int
	Token    string
}

// RunEntry is the outcome of running one workload.
type RunEntry struct {
	Name     string              `json:"name"`
	Result   *workload.RunResult `json:"result,omitempty"`
	RunError string              `json:"run_error,omitempty"`
}

// RunReport holds the outcomes for a whole directory.
type RunReport struct {
	Workloads []RunEntry `json:"workloads"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <workload-dir>",
		Short: "Run workloads on the strand scheduler",
		Long: `Run every workload in a directory on a fresh scheduler.

Each step is dispatched through the relay or spawn path according to its
classification, and the run ends with the per-step outcomes, the trace
digest, and any run-level error (deadlock, quota).

Scripted step failures are expected outcomes, not run failures: the run
exits non-zero only when a workload cannot finish.

Example:
  weft run ./workloads
  weft run --token demo --max-steps 64 ./workloads`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkloads(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", sched.DefaultMaxSteps, "scheduler handoff quota per run")
	cmd.Flags().StringVar(&opts.Token, "token", "", "fixed run token (default: fresh UUIDv7 per workload)")

	return cmd
}

func runWorkloads(opts *RunOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadWorkloads(dir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		_ = formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load workloads", loadErrors[0])
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	slog.Info("running workloads", "dir", dir, "count", len(loadResult.Workloads))

	report := &RunReport{}
	failed := 0
	for _, w := range loadResult.Workloads {
		// A fixed-token generator is good for exactly one run, so every
		// workload gets its own runner.
		runnerOpts := []workload.Option{workload.WithMaxSteps(opts.MaxSteps)}
		if opts.Token != "" {
			runnerOpts = append(runnerOpts, workload.WithTokenGenerator(sched.NewFixedGenerator(opts.Token)))
		}
		runner := workload.NewRunner(runnerOpts...)

		entry := RunEntry{Name: w.Name}
		result, err := runner.Run(ctx, w)
		entry.Result = result
		if err != nil {
			entry.RunError = err.Error()
			failed++
			slog.Error("workload run failed", "workload", w.Name, "error", err)
		} else {
			slog.Debug("workload run complete", "workload", w.Name, "token", result.Token)
		}
		report.Workloads = append(report.Workloads, entry)
	}

	return outputRunReport(formatter, report, failed)
}

// outputRunReport renders the run outcomes and maps failures to exit codes.
func outputRunReport(formatter *OutputFormatter, report *RunReport, failed int) error {
	if formatter.Format == "json" {
		if failed == 0 {
			return formatter.Success(report)
		}
		if err := formatter.Error(ErrCodeGeneric, fmt.Sprintf("%d workload(s) failed to finish", failed), report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d workload(s) failed to finish", failed))
	}

	for _, entry := range report.Workloads {
		fmt.Fprintf(formatter.Writer, "=== %s ===\n", entry.Name)
		if entry.Result != nil {
			fmt.Fprintf(formatter.Writer, "token: %s\n", entry.Result.Token)
			for _, step := range entry.Result.Steps {
				writeStepOutcome(formatter, step)
			}
			fmt.Fprintf(formatter.Writer, "digest: %s\n", entry.Result.Digest)
		}
		if entry.RunError != "" {
			fmt.Fprintf(formatter.Writer, "run error: %s\n", entry.RunError)
		}
		fmt.Fprintln(formatter.Writer)
	}

	if failed > 0 {
		fmt.Fprintf(formatter.Writer, "✗ %d of %d workload(s) failed to finish\n", failed, len(report.Workloads))
		return NewExitError(ExitFailure, fmt.Sprintf("%d workload(s) failed to finish", failed))
	}
	fmt.Fprintf(formatter.Writer, "✓ Ran %d workload(s)\n", len(report.Workloads))
	return nil
}

// writeStepOutcome prints a single settled step in text format.
func writeStepOutcome(formatter *OutputFormatter, step workload.StepResult) {
	switch {
	case step.Protocol != "":
		fmt.Fprintf(formatter.Writer, "  ✗ %s: %s\n", step.Step, step.Protocol)
	case step.Failure != "":
		fmt.Fprintf(formatter.Writer, "  ✗ %s: %s\n", step.Step, step.Failure)
	case step.Skipped != "":
		fmt.Fprintf(formatter.Writer, "  - %s skipped: %s\n", step.Step, step.Skipped)
	default:
		fmt.Fprintf(formatter.Writer, "  ✓ %s = %v\n", step.Step, step.Value)
	}
}
