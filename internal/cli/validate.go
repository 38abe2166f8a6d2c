package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/weftrun/weft/internal/workload"
)

// ValidationIssue is one finding against a single workload.
type ValidationIssue struct {
	Workload string `json:"workload,omitempty"`
	Code     string `json:"code"`
	Field    string `json:"field,omitempty"`
	Message  string `json:"message"`
	Line     int    `json:"line,omitempty"`
}

// ValidationReport holds the outcome of validating a workload directory.
type ValidationReport struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <workload-dir>",
		Short: "Validate workloads without running them",
		Long: `Validate CUE workload definitions without running them.

Checks step shapes (kind, mode, outcome), arity against bound arguments,
result references between steps, and reference cycles. Faster than a run
for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadWorkloads(dir, LoadModeFailFast)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	// Re-walk the CUE value so compile failures in one workload do not
	// hide semantic findings in its siblings.
	issues, count := validateWorkloads(loadResult.CUEValue, formatter)

	if len(issues) > 0 {
		return outputValidationIssues(formatter, issues)
	}

	return outputValidateSuccess(formatter, count)
}

// validateWorkloads compiles and checks every workload in the CUE value.
// Returns the collected issues and the number of workloads seen.
func validateWorkloads(value cue.Value, formatter *OutputFormatter) ([]ValidationIssue, int) {
	var issues []ValidationIssue
	count := 0

	workloadsVal := value.LookupPath(cue.ParsePath("workload"))
	if workloadsVal.Exists() {
		iter, err := workloadsVal.Fields()
		if err == nil {
			for iter.Next() {
				name := iter.Label()
				count++
				formatter.VerboseLog("Validating workload: %s", name)

				w, compileErr := workload.CompileWorkload(iter.Value())
				if compileErr != nil {
					issues = append(issues, compileIssue(name, compileErr))
					continue
				}

				for _, verr := range workload.Validate(w) {
					issues = append(issues, ValidationIssue{
						Workload: name,
						Code:     verr.Code,
						Field:    verr.Field,
						Message:  verr.Message,
					})
				}
				for _, warn := range workload.AnalyzeCycles(w) {
					issues = append(issues, ValidationIssue{
						Workload: name,
						Code:     ErrCodeCycle,
						Field:    strings.Join(warn.Path, " -> "),
						Message:  warn.Message,
					})
				}
			}
		}
	}

	if count == 0 && len(issues) == 0 {
		issues = append(issues, ValidationIssue{
			Field:   "workload",
			Code:    ErrCodeNoWorkloads,
			Message: "no workloads found under the top-level \"workload\" struct",
		})
	}

	return issues, count
}

// compileIssue converts a workload compile error into a validation issue.
func compileIssue(name string, err error) ValidationIssue {
	var compileErr *workload.CompileError
	if errors.As(err, &compileErr) {
		return ValidationIssue{
			Workload: name,
			Code:     MapFieldToErrorCode(compileErr.Field),
			Field:    compileErr.Field,
			Message:  compileErr.Message,
			Line:     lineFromPos(compileErr.Pos),
		}
	}
	return ValidationIssue{
		Workload: name,
		Code:     ErrCodeGeneric,
		Message:  err.Error(),
	}
}

// lineFromPos extracts a line number from a CUE token position.
func lineFromPos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, count int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationReport{Valid: true})
	}

	fmt.Fprintf(formatter.Writer, "✓ %d workload(s) valid\n", count)
	return nil
}

// outputValidateError outputs a single directory-level error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationIssues outputs the collected validation findings.
func outputValidationIssues(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		report := ValidationReport{
			Valid:  false,
			Issues: issues,
		}

		response := CLIResponse{
			Status: "error",
			Data:   report,
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		switch {
		case issue.Workload != "" && issue.Line > 0:
			fmt.Fprintf(formatter.Writer, "workload %q line %d\n", issue.Workload, issue.Line)
		case issue.Workload != "":
			fmt.Fprintf(formatter.Writer, "workload %q\n", issue.Workload)
		case issue.Line > 0:
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		if issue.Field != "" {
			fmt.Fprintf(formatter.Writer, "  %s %s: %s\n\n", issue.Code, issue.Field, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
		}
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(issues)))
}

// ValidateWorkloadDir validates every workload in a directory.
// This is a helper function for external callers.
func ValidateWorkloadDir(dir string) ([]ValidationIssue, error) {
	loadResult, loadErrors := LoadWorkloads(dir, LoadModeFailFast)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	silentFormatter := &OutputFormatter{Format: "text", Verbose: false, Writer: io.Discard}
	issues, _ := validateWorkloads(loadResult.CUEValue, silentFormatter)

	return issues, nil
}
