package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/weftrun/weft/internal/trace"
)

// snapshotCanonical serializes a run's trace as a canonical JSON
// document for golden comparison. The digest is not included: the
// events fully determine it, and the digest tests assert the hashing
// separately.
func snapshotCanonical(scenarioName, token string, events []trace.Event) ([]byte, error) {
	doc := map[string]any{
		"scenario": scenarioName,
		"token":    token,
		"events":   trace.CanonicalEventList(events),
	}
	return trace.MarshalCanonical(doc)
}

// RunWithGolden executes a scenario and compares its trace against the
// golden file testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Golden files are the source of truth for expected trace behavior:
// an interleaving change shows up as a readable event-level diff.
//
// Returns an error if the scenario cannot run; a trace mismatch fails
// the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if result.RunErr != nil && !scenario.expectsRunError() {
		return result, result.RunErr
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result's trace against the named
// golden file. Useful when a test has already run the scenario and
// verified assertions on the result.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := snapshotCanonical(name, result.Run.Token, result.Run.Events)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
