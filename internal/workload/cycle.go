package workload

import (
	"fmt"
	"strings"
)

// CycleWarning reports a reference cycle among workload steps.
//
// Validate already rejects each late reference individually; the cycle
// analysis exists for the diagnosis, reconstructing the full loop so
// the author sees "a -> b -> a" instead of two disconnected errors.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeCycles finds strongly connected components in the step
// reference graph and reports each cycle. A workload whose references
// all point backwards returns an empty list.
//
// The algorithm:
//  1. Build step -> referenced-step edges from argument refs
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop as a cycle
func AnalyzeCycles(w *Workload) []CycleWarning {
	if len(w.Steps) == 0 {
		return []CycleWarning{}
	}

	graph := buildRefGraph(w)
	sccs := tarjanSCC(w, graph)

	var warnings []CycleWarning
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleToWarning(scc, graph))
		}
	}
	return warnings
}

// refGraph maps step name -> names of steps its arguments reference.
type refGraph map[string][]string

func buildRefGraph(w *Workload) refGraph {
	graph := make(refGraph, len(w.Steps))
	defined := make(map[string]bool, len(w.Steps))
	for _, step := range w.Steps {
		defined[step.Name] = true
	}

	for _, step := range w.Steps {
		if graph[step.Name] == nil {
			graph[step.Name] = []string{}
		}
		for _, arg := range step.Args {
			// Unknown refs are Validate's problem, not a cycle's.
			if arg.Ref != "" && defined[arg.Ref] {
				graph[step.Name] = append(graph[step.Name], arg.Ref)
			}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph refGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's
// algorithm. Nodes are visited in step declaration order so the output
// is deterministic.
func tarjanSCC(w *Workload, graph refGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, u := range graph[v] {
			if _, visited := indices[u]; !visited {
				strongConnect(u)
				lowlink[v] = min(lowlink[v], lowlink[u])
			} else if onStack[u] {
				lowlink[v] = min(lowlink[v], indices[u])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				u := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[u] = false
				scc = append(scc, u)
				if u == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, step := range w.Steps {
		if _, visited := indices[step.Name]; !visited {
			strongConnect(step.Name)
		}
	}
	return sccs
}

func cycleToWarning(scc []string, graph refGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("step %q references its own result", name),
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("reference cycle: %s", strings.Join(path, " -> ")),
	}
}

// reconstructCyclePath walks edges within the SCC from its first node
// until it returns to the start.
func reconstructCyclePath(scc []string, graph refGraph) []string {
	sccSet := make(map[string]bool, len(scc))
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
