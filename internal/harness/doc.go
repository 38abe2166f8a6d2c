// Package harness provides conformance testing for the dispatch runtime.
//
// The harness loads workload scenarios from YAML, executes them on a
// fresh scheduler, checks the relay protocol invariants every trace must
// satisfy, and applies the scenario's own assertions on step results and
// trace events.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	token: fixed-run-token
//	steps:
//	  - name: fetch
//	    tagged: true
//	    outcome: publish
//	    value: 42
//	  - name: total
//	    args:
//	      - ref: fetch
//	      - literal: 2
//	assertions:
//	  - type: step_value
//	    step: total
//	    value: 44
//	  - type: trace_count
//	    kind: relay_consume
//	    count: 1
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - step_value: Verifies a step settled with the exact value
//   - step_failure: Verifies a step's failure text contains a substring
//   - step_protocol: Verifies a step's dispatch error contains a substring
//   - step_skipped: Verifies a step was skipped for a matching reason
//   - trace_contains: Verifies an event kind appears, with detail subset match
//   - trace_order: Verifies event kinds appear in the given order
//   - trace_count: Verifies an event kind appears exactly N times
//   - run_error: Verifies the run failed with a matching error
//
// # Deterministic Testing
//
// Scenarios run with a fixed run token (scenario.token, defaulting to
// "scenario-run"), so identical scenarios produce identical traces and
// digests across runs. Golden snapshots build on this: see RunWithGolden.
package harness
