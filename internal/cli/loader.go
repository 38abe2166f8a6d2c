package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/weftrun/weft/internal/workload"
)

// LoadMode controls how errors are handled during workload loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the workloads loaded from a directory.
type LoadResult struct {
	Workloads []*workload.Workload
	CUEValue  cue.Value // The raw CUE value for additional processing
	FileCount int       // Number of CUE files found
}

// LoadError represents an error that occurred during workload loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadWorkloads loads and compiles CUE workload definitions from a
// directory. Every entry under the top-level "workload" struct becomes
// one workload. Results are sorted by name so multi-file definitions
// load in a stable order.
//
// If mode is LoadModeFailFast, returns on the first error.
// If mode is LoadModeCollectAll, collects all compile errors.
func LoadWorkloads(dir string, mode LoadMode) (*LoadResult, []error) {
	var errs []error

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("workload directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing workload directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	cfg := &load.Config{Dir: dir}
	instances := load.Instances([]string{"."}, cfg)
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}

	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	workloadsVal := value.LookupPath(cue.ParsePath("workload"))
	if !workloadsVal.Exists() {
		return result, []error{&LoadError{Code: ErrCodeNoWorkloads, Message: "no workloads found: expected a top-level \"workload\" struct"}}
	}

	iter, iterErr := workloadsVal.Fields()
	if iterErr != nil {
		return result, []error{&LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating workloads: %v", iterErr)}}
	}
	for iter.Next() {
		w, compileErr := workload.CompileWorkload(iter.Value())
		if compileErr != nil {
			errs = append(errs, convertCompileError(compileErr, "workload."+iter.Label()))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Workloads = append(result.Workloads, w)
	}

	sort.Slice(result.Workloads, func(i, j int) bool {
		return result.Workloads[i].Name < result.Workloads[j].Name
	})

	if len(result.Workloads) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoWorkloads, Message: "no workloads found: the \"workload\" struct is empty"})
	}

	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a workload compile error to a LoadError
// carrying position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *workload.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: compileErr.Message,
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeNoWorkloads = "E008" // No workload definitions found

	// Workload shape errors (compile time)
	ErrCodeNoSteps    = "E101" // Steps list missing or empty
	ErrCodeBadName    = "E102" // Step name missing or invalid
	ErrCodeBadKind    = "E103" // Unknown callable kind
	ErrCodeBadMode    = "E104" // Unknown dispatch mode
	ErrCodeBadOutcome = "E105" // Unknown outcome
	ErrCodeBadValue   = "E106" // Unsupported value (floats, structs)
	ErrCodeBadArg     = "E107" // Malformed argument binding

	// Cross-step analysis
	ErrCodeCycle = "E130" // Step reference cycle
)

// MapFieldToErrorCode maps a compile error field to an error code.
// Compile error fields look like "steps", "steps[2].kind",
// "steps[0].args[1].literal".
func MapFieldToErrorCode(field string) string {
	if field == "steps" {
		return ErrCodeNoSteps
	}
	switch {
	case strings.HasSuffix(field, ".name"):
		return ErrCodeBadName
	case strings.HasSuffix(field, ".kind"):
		return ErrCodeBadKind
	case strings.HasSuffix(field, ".mode"):
		return ErrCodeBadMode
	case strings.HasSuffix(field, ".outcome"):
		return ErrCodeBadOutcome
	case strings.HasSuffix(field, ".value"), strings.HasSuffix(field, ".literal"):
		return ErrCodeBadValue
	case strings.Contains(field, ".args"):
		return ErrCodeBadArg
	default:
		return ErrCodeGeneric
	}
}
