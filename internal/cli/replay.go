package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/workload"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Token    string
	Workload string // optional - replay one workload only
	MaxSteps int
}

// ReplayWorkloadResult holds the replay verdict for a single workload.
type ReplayWorkloadResult struct {
	Workload      string `json:"workload"`
	Token         string `json:"token"`
	Events        int    `json:"events"`
	FirstDigest   string `json:"first_digest"`
	SecondDigest  string `json:"second_digest"`
	Deterministic bool   `json:"deterministic"`
	RunError      string `json:"run_error,omitempty"`
}

// ReplayResult holds the overall replay verdict.
type ReplayResult struct {
	Workloads        []ReplayWorkloadResult `json:"workloads"`
	TotalWorkloads   int                    `json:"total_workloads"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <workload-dir>",
		Short: "Run workloads twice and verify determinism",
		Long: `Run every workload twice under the same fixed token and compare
trace digests.

Two runs of the same workload with the same token must record the exact
same trace. A digest mismatch means scheduling leaked nondeterminism
into the run. Workloads that end in a run-level error are compared on
their partial traces, which must also match.

Exit codes:
  0 - All workloads replay deterministically
  1 - Digest mismatch detected
  2 - Command error (directory not found, compile failure)

Examples:
  weft replay ./workloads
  weft replay ./workloads --workload checkout
  weft replay ./workloads --token audit-7 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Token, "token", "replay", "fixed token used for both runs")
	cmd.Flags().StringVar(&opts.Workload, "workload", "", "replay only the named workload")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", sched.DefaultMaxSteps, "scheduler handoff quota per run")

	return cmd
}

func runReplay(opts *ReplayOptions, dir string, cmd *cobra.Command) error {
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

	workloads := loadResult.Workloads
	if opts.Workload != "" {
		workloads = nil
		for _, w := range loadResult.Workloads {
			if w.Name == opts.Workload {
				workloads = append(workloads, w)
			}
		}
		if len(workloads) == 0 {
			msg := fmt.Sprintf("workload %q not found in %s", opts.Workload, dir)
			_ = formatter.Error(ErrCodeNoWorkloads, msg, nil)
			return NewExitError(ExitCommandError, msg)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result := ReplayResult{
		Workloads:        make([]ReplayWorkloadResult, 0, len(workloads)),
		TotalWorkloads:   len(workloads),
		AllDeterministic: true,
	}

	for _, w := range workloads {
		wr, err := replayAndVerifyWorkload(ctx, w, opts.Token, opts.MaxSteps)
		if err != nil {
			_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay workload %s", w.Name), err)
		}

		result.Workloads = append(result.Workloads, wr)
		if !wr.Deterministic {
			result.AllDeterministic = false
		}
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// replayAndVerifyWorkload runs a workload twice with the same token and
// compares the trace digests. Run-level errors do not abort the
// comparison; both runs must fail identically to count as deterministic.
func replayAndVerifyWorkload(ctx context.Context, w *workload.Workload, token string, maxSteps int) (ReplayWorkloadResult, error) {
	first, firstErr := replayOnce(ctx, w, token, maxSteps)
	if first == nil {
		return ReplayWorkloadResult{}, firstErr
	}
	second, secondErr := replayOnce(ctx, w, token, maxSteps)
	if second == nil {
		return ReplayWorkloadResult{}, secondErr
	}

	deterministic := first.Digest == second.Digest &&
		errorText(firstErr) == errorText(secondErr)

	wr := ReplayWorkloadResult{
		Workload:      w.Name,
		Token:         token,
		Events:        len(first.Events),
		FirstDigest:   first.Digest,
		SecondDigest:  second.Digest,
		Deterministic: deterministic,
		RunError:      errorText(firstErr),
	}
	return wr, nil
}

// replayOnce runs a workload with a single-use fixed token generator.
func replayOnce(ctx context.Context, w *workload.Workload, token string, maxSteps int) (*workload.RunResult, error) {
	runner := workload.NewRunner(
		workload.WithMaxSteps(maxSteps),
		workload.WithTokenGenerator(sched.NewFixedGenerator(token)),
	)
	return runner.Run(ctx, w)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	if !result.AllDeterministic {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: "determinism verification failed",
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if !result.AllDeterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay Summary: %d workload(s)\n", result.TotalWorkloads)
	fmt.Fprintln(w)

	for _, wr := range result.Workloads {
		status := "✓"
		if !wr.Deterministic {
			status = "✗"
		}

		fmt.Fprintf(w, "%s Workload: %s\n", status, wr.Workload)

		if verbose {
			fmt.Fprintf(w, "  Token: %s\n", wr.Token)
			fmt.Fprintf(w, "  Events: %d\n", wr.Events)
			fmt.Fprintf(w, "  First:  %s\n", wr.FirstDigest)
			fmt.Fprintf(w, "  Second: %s\n", wr.SecondDigest)
		} else {
			fmt.Fprintf(w, "  Events: %d, digest %s\n", wr.Events, wr.FirstDigest)
		}

		if wr.RunError != "" {
			fmt.Fprintf(w, "  Run error (both runs): %s\n", wr.RunError)
		}
		if !wr.Deterministic {
			fmt.Fprintln(w, "  Warning: trace digests differ between runs!")
		}
		fmt.Fprintln(w)
	}

	if result.AllDeterministic {
		fmt.Fprintln(w, "✓ All workloads replay deterministically")
		return nil
	}

	fmt.Fprintln(w, "✗ Determinism verification failed")
	// Determinism failure = exit code 1
	return NewExitError(ExitFailure, "determinism verification failed")
}
