package workload

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft/internal/sched"
	"github.com/weftrun/weft/internal/trace"
)

// runWorkload executes w with a fixed run token and fails the test on
// run-level errors.
func runWorkload(t *testing.T, w *Workload) *RunResult {
	t.Helper()
	r := NewRunner(WithTokenGenerator(sched.NewFixedGenerator("wl-1")))
	result, err := r.Run(context.Background(), w)
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

func kindCounts(events []trace.Event) map[string]int {
	counts := make(map[string]int)
	for _, e := range events {
		counts[e.Kind]++
	}
	return counts
}

func TestRunRelayStep(t *testing.T) {
	w := &Workload{
		Name: "single",
		Steps: []Step{
			{Name: "fetch", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
				Outcome: OutcomePublish, Value: int64(42)},
		},
	}

	result := runWorkload(t, w)
	assert.Equal(t, "single", result.Workload)
	assert.Equal(t, "wl-1", result.Token)

	require.Len(t, result.Steps, 1)
	assert.Equal(t, int64(42), result.Steps[0].Value)
	assert.Empty(t, result.Steps[0].Failure)

	counts := kindCounts(result.Events)
	assert.Equal(t, 1, counts[trace.KindRelayOpen])
	assert.Equal(t, 1, counts[trace.KindRelayPublish])
	assert.Equal(t, 1, counts[trace.KindRelayConsume])
	assert.Equal(t, 1, counts[trace.KindStrandSpawn], "the relay path spawns nothing")
}

func TestRunSpawnStep(t *testing.T) {
	w := &Workload{
		Name: "single",
		Steps: []Step{
			{Name: "render", Kind: KindFunc, Mode: ModeInterface,
				Outcome: OutcomeReturn, Value: "done"},
		},
	}

	result := runWorkload(t, w)
	assert.Equal(t, "done", result.Steps[0].Value)

	counts := kindCounts(result.Events)
	assert.Equal(t, 0, counts[trace.KindRelayOpen])
	assert.Equal(t, 2, counts[trace.KindStrandSpawn], "root plus the step's child strand")
	assert.Equal(t, 1, counts[trace.KindHandleSettle])
}

func TestRunRefChain(t *testing.T) {
	w := &Workload{
		Name: "chain",
		Steps: []Step{
			{Name: "fetch", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
				Outcome: OutcomePublish, Value: int64(40)},
			{Name: "total", Kind: KindFunc, Mode: ModeInterface, Arity: 2,
				Args:    []Arg{{Ref: "fetch"}, {Literal: int64(2)}},
				Outcome: OutcomeReturn},
		},
	}

	result := runWorkload(t, w)
	assert.Equal(t, int64(40), result.Steps[0].Value)
	assert.Equal(t, int64(42), result.Steps[1].Value,
		"a step without a scripted value sums its integer arguments")
}

func TestRunStringArgsJoin(t *testing.T) {
	w := &Workload{
		Name: "concat",
		Steps: []Step{
			{Name: "join", Kind: KindFunc, Mode: ModeInterface, Arity: 2,
				Args:    []Arg{{Literal: "left"}, {Literal: "right"}},
				Outcome: OutcomeReturn},
		},
	}

	result := runWorkload(t, w)
	assert.Equal(t, "left+right", result.Steps[0].Value)
}

func TestRunFailingStep(t *testing.T) {
	w := &Workload{
		Name: "failing",
		Steps: []Step{
			{Name: "boom", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
				Outcome: OutcomeFail, Error: "boom"},
		},
	}

	result := runWorkload(t, w)
	assert.Equal(t, "callable failed: boom", result.Steps[0].Failure)
	assert.Nil(t, result.Steps[0].Value)

	counts := kindCounts(result.Events)
	assert.Equal(t, 1, counts[trace.KindHandleSettle])
	assert.Equal(t, 1, counts[trace.KindRelayClose], "the failed relay is discarded")
}

func TestRunPanickingStep(t *testing.T) {
	w := &Workload{
		Name: "panicking",
		Steps: []Step{
			{Name: "kaboom", Kind: KindFunc, Mode: ModeInterface,
				Outcome: OutcomePanic, Error: "kaboom"},
		},
	}

	result := runWorkload(t, w)
	assert.Contains(t, result.Steps[0].Failure, "callable panicked: kaboom")
}

func TestRunPublishFailed(t *testing.T) {
	w := &Workload{
		Name: "refused",
		Steps: []Step{
			{Name: "check", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
				Outcome: OutcomePublishFailed, Error: "stock empty"},
		},
	}

	result := runWorkload(t, w)
	assert.Equal(t, "stock empty", result.Steps[0].Failure,
		"a published failed handle carries the application error as-is")
}

func TestRunSilentRelayStep(t *testing.T) {
	w := &Workload{
		Name: "silent",
		Steps: []Step{
			{Name: "mute", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
				Outcome: OutcomeSilent},
			{Name: "after", Kind: KindFunc, Mode: ModeInterface,
				Outcome: OutcomeReturn, Value: "ran"},
		},
	}

	result := runWorkload(t, w)
	assert.Contains(t, result.Steps[0].Protocol, "RESULT_NOT_PUBLISHED")
	assert.Equal(t, "ran", result.Steps[1].Value,
		"a dispatch rejection does not stop later steps")

	counts := kindCounts(result.Events)
	assert.Equal(t, 1, counts[trace.KindDispatchError])
}

func TestRunDirectModeSpawns(t *testing.T) {
	w := &Workload{
		Name: "direct",
		Steps: []Step{
			{Name: "local", Kind: KindFunc, Mode: ModeDirect, Tagged: true,
				Outcome: OutcomeReturn, Value: int64(7)},
		},
	}

	result := runWorkload(t, w)
	assert.Equal(t, int64(7), result.Steps[0].Value)
	assert.Equal(t, 0, kindCounts(result.Events)[trace.KindRelayOpen],
		"direct calls never open a relay, tagged or not")
}

func TestRunProcStep(t *testing.T) {
	w := &Workload{
		Name: "effects",
		Steps: []Step{
			{Name: "log", Kind: KindProc, Mode: ModeInterface,
				Outcome: OutcomeReturn},
		},
	}

	result := runWorkload(t, w)
	assert.Nil(t, result.Steps[0].Value, "procedures settle with nil")
	assert.Empty(t, result.Steps[0].Failure)
}

func TestRunSkipsStepWithFailedRef(t *testing.T) {
	w := &Workload{
		Name: "dependent",
		Steps: []Step{
			{Name: "broken", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
				Outcome: OutcomeFail, Error: "boom"},
			{Name: "needs", Kind: KindFunc, Mode: ModeInterface, Arity: 1,
				Args:    []Arg{{Ref: "broken"}},
				Outcome: OutcomeReturn},
		},
	}

	result := runWorkload(t, w)
	assert.Contains(t, result.Steps[1].Skipped, `step "broken" failed`)
	assert.Nil(t, result.Steps[1].Value)
}

func TestRunSkipsStepWithHandlelessRef(t *testing.T) {
	w := &Workload{
		Name: "dangling",
		Steps: []Step{
			{Name: "mute", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
				Outcome: OutcomeSilent},
			{Name: "needs", Kind: KindFunc, Mode: ModeInterface, Arity: 1,
				Args:    []Arg{{Ref: "mute"}},
				Outcome: OutcomeReturn},
		},
	}

	result := runWorkload(t, w)
	assert.NotEmpty(t, result.Steps[0].Protocol)
	assert.Contains(t, result.Steps[1].Skipped, "produced no handle")
}

func TestRunDeterministicDigest(t *testing.T) {
	build := func() *Workload {
		return &Workload{
			Name: "repeatable",
			Steps: []Step{
				{Name: "fetch", Kind: KindFunc, Mode: ModeInterface, Tagged: true,
					Outcome: OutcomePublish, Value: int64(40)},
				{Name: "bg", Kind: KindFunc, Mode: ModeInterface,
					Outcome: OutcomeReturn, Value: "side"},
				{Name: "total", Kind: KindFunc, Mode: ModeInterface, Arity: 2,
					Args:    []Arg{{Ref: "fetch"}, {Literal: int64(2)}},
					Outcome: OutcomeReturn},
			},
		}
	}

	first := runWorkload(t, build())
	second := runWorkload(t, build())

	require.Len(t, first.Digest, 64)
	assert.Equal(t, first.Digest, second.Digest,
		"identical workloads with identical tokens digest identically")
}

func TestRunRejectsInvalidWorkload(t *testing.T) {
	w := &Workload{Name: "bad", Steps: []Step{{Name: "x", Arity: 9}}}

	r := NewRunner()
	_, err := r.Run(context.Background(), w)
	require.Error(t, err)

	var ve ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, ErrArityOutOfRange, ve.Code)
}

func TestRunQuotaExceeded(t *testing.T) {
	w := &Workload{
		Name: "expensive",
		Steps: []Step{
			{Name: "bg", Kind: KindFunc, Mode: ModeInterface,
				Outcome: OutcomeReturn, Value: int64(1)},
		},
	}

	r := NewRunner(
		WithMaxSteps(1),
		WithTokenGenerator(sched.NewFixedGenerator("wl-1")),
	)
	result, err := r.Run(context.Background(), w)

	require.Error(t, err)
	assert.True(t, sched.IsQuotaError(err))
	require.NotNil(t, result, "the partial trace survives a quota failure")
	assert.NotEmpty(t, result.Events)
	assert.Len(t, result.Digest, 64)
}
