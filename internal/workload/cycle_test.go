package workload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCyclesNone(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(validWorkload()),
		"backward references form a DAG")
}

func TestAnalyzeCyclesSelfLoop(t *testing.T) {
	w := &Workload{
		Name: "loop",
		Steps: []Step{
			{Name: "a", Arity: 1, Args: []Arg{{Ref: "a"}}},
		},
	}

	warnings := AnalyzeCycles(w)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"a", "a"}, warnings[0].Path)
	assert.Contains(t, warnings[0].Message, "its own result")
}

func TestAnalyzeCyclesTwoSteps(t *testing.T) {
	w := &Workload{
		Name: "pingpong",
		Steps: []Step{
			{Name: "a", Arity: 1, Args: []Arg{{Ref: "b"}}},
			{Name: "b", Arity: 1, Args: []Arg{{Ref: "a"}}},
		},
	}

	warnings := AnalyzeCycles(w)
	require.Len(t, warnings, 1)

	path := warnings[0].Path
	require.Len(t, path, 3, "a two-step cycle closes back on its start")
	assert.Equal(t, path[0], path[len(path)-1])
	assert.Contains(t, warnings[0].Message, "->")
}

func TestAnalyzeCyclesIgnoresUnknownRefs(t *testing.T) {
	w := &Workload{
		Name: "dangling",
		Steps: []Step{
			{Name: "a", Arity: 1, Args: []Arg{{Ref: "ghost"}}},
		},
	}

	assert.Empty(t, AnalyzeCycles(w),
		"unknown references are validation errors, not cycles")
}

func TestAnalyzeCyclesMixedGraph(t *testing.T) {
	// c -> b -> a is acyclic; d and e reference each other.
	w := &Workload{
		Name: "mixed",
		Steps: []Step{
			{Name: "a"},
			{Name: "b", Arity: 1, Args: []Arg{{Ref: "a"}}},
			{Name: "c", Arity: 1, Args: []Arg{{Ref: "b"}}},
			{Name: "d", Arity: 1, Args: []Arg{{Ref: "e"}}},
			{Name: "e", Arity: 1, Args: []Arg{{Ref: "d"}}},
		},
	}

	warnings := AnalyzeCycles(w)
	require.Len(t, warnings, 1, "only the d/e component is a cycle")
	assert.Contains(t, warnings[0].Path, "d")
	assert.Contains(t, warnings[0].Path, "e")
}
