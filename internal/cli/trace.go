package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/trace"
	"github.com/weftrun/weft/internal/workload"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Workload string // optional - trace only this workload
	Step     string // optional - filter to events about one callable
	Token    string
	MaxSteps int
}

// TraceStats holds summary statistics for one workload's trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Dispatches  int `json:"dispatches"`
	RelayOpens  int `json:"relay_opens"`
	Settles     int `json:"settles"`
	Rejections  int `json:"rejections"`
	Strands     int `json:"strands"`
}

// WorkloadTrace holds the rendered trace for one workload run.
type WorkloadTrace struct {
	Workload string     `json:"workload"`
	Token    string     `json:"token"`
	Timeline []any      `json:"timeline"`
	Digest   string     `json:"digest"`
	Stats    TraceStats `json:"stats"`
	RunError string     `json:"run_error,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <workload-dir>",
		Short: "Run workloads and show the recorded trace",
		Long: `Run workloads and show the scheduler trace they record.

Every strand spawn, dispatch, relay transition, and handle settlement
appears in sequence order, followed by summary statistics and the trace
digest. Run-level errors (deadlock, quota) leave a partial trace, which
is often exactly the part worth reading.

Examples:
  weft trace ./workloads
  weft trace ./workloads --workload checkout
  weft trace ./workloads --step fetch_price --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Workload, "workload", "", "trace only the named workload")
	cmd.Flags().StringVar(&opts.Step, "step", "", "show only events about the named callable")
	cmd.Flags().StringVar(&opts.Token, "token", "", "fixed run token (default: fresh UUIDv7 per workload)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", sched.DefaultMaxSteps, "scheduler handoff quota per run")

	return cmd
}

func runTrace(opts *TraceOptions, dir string, cmd *cobra.Command) error {
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

	traces := make([]WorkloadTrace, 0, len(workloads))
	for _, w := range workloads {
		runnerOpts := []workload.Option{workload.WithMaxSteps(opts.MaxSteps)}
		if opts.Token != "" {
			runnerOpts = append(runnerOpts, workload.WithTokenGenerator(sched.NewFixedGenerator(opts.Token)))
		}
		runner := workload.NewRunner(runnerOpts...)

		result, runErr := runner.Run(ctx, w)
		if result == nil {
			_ = formatter.Error(ErrCodeGeneric, runErr.Error(), nil)
			return NewExitError(ExitCommandError, runErr.Error())
		}

		events := filterEvents(result.Events, opts.Step)
		wt := WorkloadTrace{
			Workload: w.Name,
			Token:    result.Token,
			Timeline: trace.CanonicalEventList(events),
			Digest:   result.Digest,
			Stats:    buildTraceStats(events),
		}
		if runErr != nil {
			wt.RunError = runErr.Error()
		}
		traces = append(traces, wt)
	}

	if formatter.Format == "json" {
		return formatter.Success(traces)
	}
	for _, wt := range traces {
		outputTraceText(formatter.Writer, wt)
	}
	return nil
}

// filterEvents keeps events about one callable. Events without a
// callable detail (spawns, finishes) never match a step filter.
func filterEvents(events []trace.Event, step string) []trace.Event {
	if step == "" {
		return events
	}
	var filtered []trace.Event
	for _, ev := range events {
		if ev.Detail["callable"] == step {
			filtered = append(filtered, ev)
		}
	}
	return filtered
}

// buildTraceStats summarizes the displayed events.
func buildTraceStats(events []trace.Event) TraceStats {
	stats := TraceStats{TotalEvents: len(events)}
	strands := make(map[int64]bool)
	for _, ev := range events {
		strands[ev.Strand] = true
		switch ev.Kind {
		case trace.KindDispatch:
			stats.Dispatches++
		case trace.KindRelayOpen:
			stats.RelayOpens++
		case trace.KindHandleSettle:
			stats.Settles++
		case trace.KindDispatchError:
			stats.Rejections++
		}
	}
	stats.Strands = len(strands)
	return stats
}

// outputTraceText renders one workload's trace section.
func outputTraceText(w io.Writer, wt WorkloadTrace) {
	fmt.Fprintf(w, "Trace for workload: %s\n", wt.Workload)
	fmt.Fprintf(w, "token: %s\n", wt.Token)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(wt.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	} else {
		for _, entry := range wt.Timeline {
			formatTimelineEvent(w, entry)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", wt.Stats.TotalEvents)
	fmt.Fprintf(w, "  Dispatches:   %d\n", wt.Stats.Dispatches)
	fmt.Fprintf(w, "  Relay Opens:  %d\n", wt.Stats.RelayOpens)
	fmt.Fprintf(w, "  Settles:      %d\n", wt.Stats.Settles)
	fmt.Fprintf(w, "  Rejections:   %d\n", wt.Stats.Rejections)
	fmt.Fprintf(w, "  Strands:      %d\n", wt.Stats.Strands)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "digest: %s\n", wt.Digest)
	if wt.RunError != "" {
		fmt.Fprintf(w, "run error: %s\n", wt.RunError)
	}
	fmt.Fprintln(w)
}

// formatTimelineEvent formats one canonical event for text output.
func formatTimelineEvent(w io.Writer, entry any) {
	ev, ok := entry.(map[string]any)
	if !ok {
		fmt.Fprintf(w, "  %v\n", entry)
		return
	}
	line := fmt.Sprintf("  [%v] strand=%v %v", ev["seq"], ev["strand"], ev["kind"])
	if detail, ok := ev["detail"].(map[string]string); ok && len(detail) > 0 {
		line += " " + formatDetail(detail)
	}
	fmt.Fprintln(w, line)
}

// formatDetail formats detail pairs with sorted keys so output is
// deterministic.
func formatDetail(detail map[string]string) string {
	keys := make([]string, 0, len(detail))
	for k := range detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+detail[k])
	}
	return strings.Join(parts, " ")
}
