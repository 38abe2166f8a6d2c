package future

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftrun/weft/internal/sched"
)

// runStrands spawns each body as a strand and drives the scheduler to
// completion. Bodies run in spawn order.
func runStrands(t *testing.T, bodies ...func(*sched.Strand)) {
	t.Helper()
	s := sched.New(sched.WithTokenGenerator(sched.NewFixedGenerator(
		"run-1", "run-2", "run-3", "run-4", "run-5",
	)))
	for i, body := range bodies {
		s.Spawn(string(rune('a'+i)), body)
	}
	require.NoError(t, s.Run(context.Background()))
}

func TestHandle_New(t *testing.T) {
	h := New()

	assert.False(t, h.Ready())
	_, _, ok := h.Peek()
	assert.False(t, ok, "Peek on an unsettled handle reports not-ready")
}

func TestHandle_Completed(t *testing.T) {
	h := Completed(42)

	assert.True(t, h.Ready())
	value, err, ok := h.Peek()
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestHandle_Failed(t *testing.T) {
	boom := errors.New("boom")
	h := Failed(boom)

	assert.True(t, h.Ready())
	value, err, ok := h.Peek()
	assert.True(t, ok)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, value)
}

func TestHandle_FailedNilPanics(t *testing.T) {
	assert.Panics(t, func() { Failed(nil) })
	assert.Panics(t, func() { New().Fail(nil) })
}

func TestHandle_SettleOnce(t *testing.T) {
	h := New()

	assert.True(t, h.Complete(1), "first settle wins")
	assert.False(t, h.Complete(2), "second settle is rejected")
	assert.False(t, h.Fail(errors.New("late")), "failing after completion is rejected")

	value, err, ok := h.Peek()
	require.True(t, ok)
	assert.NoError(t, err)
	assert.Equal(t, 1, value, "the first settle's value sticks")
}

func TestHandle_GetSettledFastPath(t *testing.T) {
	h := Completed("hello")

	var got any
	var gotErr error
	runStrands(t, func(st *sched.Strand) {
		got, gotErr = h.Get(st)
	})

	assert.NoError(t, gotErr)
	assert.Equal(t, "hello", got)
}

func TestHandle_GetParksUntilComplete(t *testing.T) {
	h := New()

	var order []string
	var got any
	runStrands(t,
		func(st *sched.Strand) {
			order = append(order, "waiter-start")
			got, _ = h.Get(st)
			order = append(order, "waiter-end")
		},
		func(_ *sched.Strand) {
			order = append(order, "setter")
			h.Complete(7)
		},
	)

	assert.Equal(t, []string{"waiter-start", "setter", "waiter-end"}, order,
		"the waiter parks until the setter completes the handle")
	assert.Equal(t, 7, got)
}

func TestHandle_GetReturnsFailure(t *testing.T) {
	boom := errors.New("boom")
	h := New()

	var gotErr error
	runStrands(t,
		func(st *sched.Strand) {
			_, gotErr = h.Get(st)
		},
		func(_ *sched.Strand) {
			h.Fail(boom)
		},
	)

	assert.ErrorIs(t, gotErr, boom)
}

func TestHandle_WaitersResumeInParkOrder(t *testing.T) {
	h := New()

	var order []string
	waiter := func(name string) func(*sched.Strand) {
		return func(st *sched.Strand) {
			_, _ = h.Get(st)
			order = append(order, name)
		}
	}

	runStrands(t,
		waiter("first"),
		waiter("second"),
		waiter("third"),
		func(_ *sched.Strand) {
			h.Complete("go")
		},
	)

	assert.Equal(t, []string{"first", "second", "third"}, order,
		"waiters wake in the order they parked")
}

func TestHandle_GetAfterGet(t *testing.T) {
	h := New()

	var first, second any
	runStrands(t,
		func(st *sched.Strand) {
			first, _ = h.Get(st)
			// Second Get on a settled handle takes the fast path.
			second, _ = h.Get(st)
		},
		func(_ *sched.Strand) {
			h.Complete("value")
		},
	)

	assert.Equal(t, "value", first)
	assert.Equal(t, "value", second)
}
