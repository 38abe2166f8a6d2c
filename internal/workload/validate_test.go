package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validWorkload() *Workload {
	return &Workload{
		Name: "checkout",
		Steps: []Step{
			{Name: "fetch", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
				Outcome: OutcomePublish, Value: int64(40)},
			{Name: "total", Kind: KindFunc, Mode: ModeInterface, Arity: 2,
				Args:    []Arg{{Ref: "fetch"}, {Literal: int64(2)}},
				Outcome: OutcomeReturn},
		},
	}
}

func TestValidateCleanWorkload(t *testing.T) {
	assert.Empty(t, Validate(validWorkload()))
}

func TestValidateEmptyName(t *testing.T) {
	w := validWorkload()
	w.Name = "  "

	errs := Validate(w)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrWorkloadNoName, errs[0].Code)
}

func TestValidateNoSteps(t *testing.T) {
	errs := Validate(&Workload{Name: "empty"})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrWorkloadNoSteps, errs[0].Code)
}

func TestValidateDuplicateStepName(t *testing.T) {
	w := validWorkload()
	w.Steps[1].Name = "fetch"
	w.Steps[1].Args = nil
	w.Steps[1].Arity = 0

	errs := Validate(w)
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrDuplicateStep, errs[0].Code)
	assert.Contains(t, errs[0].Message, `"fetch"`)
}

func TestValidateArityOutOfRange(t *testing.T) {
	w := validWorkload()
	w.Steps[0].Arity = 7

	errs := Validate(w)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrArityOutOfRange, errs[0].Code)

	w.Steps[0].Arity = -1
	errs = Validate(w)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrArityOutOfRange, errs[0].Code)
}

func TestValidateArityMismatch(t *testing.T) {
	w := validWorkload()
	w.Steps[1].Arity = 1

	errs := Validate(w)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrArityMismatch, errs[0].Code)
	assert.Contains(t, errs[0].Message, "2 bound arguments")
}

func TestValidateUnknownRef(t *testing.T) {
	w := validWorkload()
	w.Steps[1].Args[0].Ref = "missing"

	errs := Validate(w)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnknownRef, errs[0].Code)
	assert.Contains(t, errs[0].Message, `"missing"`)
}

func TestValidateLateRef(t *testing.T) {
	w := validWorkload()
	// fetch now references total, which runs after it.
	w.Steps[0].Args = []Arg{{Ref: "total"}}
	w.Steps[0].Arity = 1

	errs := Validate(w)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrLateRef, errs[0].Code)
}

func TestValidateSelfRef(t *testing.T) {
	w := &Workload{
		Name: "loop",
		Steps: []Step{
			{Name: "a", Arity: 1, Args: []Arg{{Ref: "a"}}, Outcome: OutcomeReturn},
		},
	}

	errs := Validate(w)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrLateRef, errs[0].Code)
}

func TestValidateMissingErrorText(t *testing.T) {
	for _, outcome := range []Outcome{OutcomeFail, OutcomePanic, OutcomePublishFailed} {
		w := validWorkload()
		w.Steps[0].Outcome = outcome
		w.Steps[0].Error = ""

		errs := Validate(w)
		require.Len(t, errs, 1, "outcome %s", outcome)
		assert.Equal(t, ErrMissingError, errs[0].Code)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	w := &Workload{
		Name: "",
		Steps: []Step{
			{Name: "a", Arity: 9, Outcome: OutcomeFail},
			{Name: "a", Outcome: OutcomeReturn},
		},
	}

	errs := Validate(w)
	codes := make(map[string]bool)
	for _, e := range errs {
		codes[e.Code] = true
	}

	assert.True(t, codes[ErrWorkloadNoName])
	assert.True(t, codes[ErrDuplicateStep])
	assert.True(t, codes[ErrArityOutOfRange])
	assert.True(t, codes[ErrMissingError])
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "steps[0].arity", Message: "arity 7 out of range", Code: ErrArityOutOfRange}
	assert.Equal(t, "[W103] steps[0].arity: arity 7 out of range", err.Error())
}
