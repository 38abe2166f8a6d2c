package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceWorkloads(t *testing.T) {
	workloadDir := filepath.Join("..", "..", "testdata", "workloads")

	if _, err := os.Stat(workloadDir); os.IsNotExist(err) {
		t.Skip("testdata/workloads directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{workloadDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Trace for workload: checkout")
	assert.Contains(t, output, "Trace for workload: faults")
	assert.Contains(t, output, "Trace for workload: pipeline")
	assert.Contains(t, output, "=== Timeline ===")
	assert.Contains(t, output, "=== Stats ===")
	assert.Contains(t, output, "digest: ")

	// The lifecycle kinds all show up across the three runs
	assert.Contains(t, output, "strand_spawn")
	assert.Contains(t, output, "relay_open")
	assert.Contains(t, output, "relay_publish")
	assert.Contains(t, output, "relay_consume")
	assert.Contains(t, output, "handle_settle")
	assert.Contains(t, output, "strand_finish")
}

func TestTraceWorkloadFilter(t *testing.T) {
	workloadDir := filepath.Join("..", "..", "testdata", "workloads")

	if _, err := os.Stat(workloadDir); os.IsNotExist(err) {
		t.Skip("testdata/workloads directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--workload", "checkout", workloadDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "Trace for workload: checkout")
	assert.NotContains(t, output, "Trace for workload: faults")
	assert.NotContains(t, output, "Trace for workload: pipeline")
}

func TestTraceWorkloadNotFound(t *testing.T) {
	workloadDir := filepath.Join("..", "..", "testdata", "workloads")

	if _, err := os.Stat(workloadDir); os.IsNotExist(err) {
		t.Skip("testdata/workloads directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--workload", "ghost", workloadDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `workload "ghost" not found`)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceStepFilter(t *testing.T) {
	workloadDir := filepath.Join("..", "..", "testdata", "workloads")

	if _, err := os.Stat(workloadDir); os.IsNotExist(err) {
		t.Skip("testdata/workloads directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--workload", "checkout", "--step", "fetch_price", workloadDir})

	err := cmd.Execute()
	require.NoError(t, err)

	// dispatch, relay_open, relay_publish, relay_consume - one strand
	output := buf.String()
	assert.Contains(t, output, "callable=fetch_price")
	assert.NotContains(t, output, "apply_discount")
	assert.Contains(t, output, "Total Events: 4")
	assert.Contains(t, output, "Dispatches:   1")
	assert.Contains(t, output, "Relay Opens:  1")
	assert.Contains(t, output, "Strands:      1")
}

func TestTraceStepFilterNoMatches(t *testing.T) {
	workloadDir := filepath.Join("..", "..", "testdata", "workloads")

	if _, err := os.Stat(workloadDir); os.IsNotExist(err) {
		t.Skip("testdata/workloads directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--workload", "pipeline", "--step", "ghost_step", workloadDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "(no events)")
	assert.Contains(t, output, "Total Events: 0")
}

func TestTraceRejectionCounted(t *testing.T) {
	workloadDir := filepath.Join("..", "..", "testdata", "workloads")

	if _, err := os.Stat(workloadDir); os.IsNotExist(err) {
		t.Skip("testdata/workloads directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--workload", "faults", workloadDir})

	err := cmd.Execute()
	require.NoError(t, err)

	// mute finishes without publishing: one dispatch_error in the trace
	output := buf.String()
	assert.Contains(t, output, "dispatch_error")
	assert.Contains(t, output, "code=RESULT_NOT_PUBLISHED")
	assert.Contains(t, output, "Rejections:   1")
}

func TestTraceNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"/nonexistent/trace/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "E005")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTraceJSON(t *testing.T) {
	workloadDir := filepath.Join("..", "..", "testdata", "workloads")

	if _, err := os.Stat(workloadDir); os.IsNotExist(err) {
		t.Skip("testdata/workloads directory not found")
	}

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewTraceCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--workload", "checkout", workloadDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)

	traces, ok := resp.Data.([]interface{})
	require.True(t, ok)
	require.Len(t, traces, 1)

	wt, ok := traces[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "checkout", wt["workload"])
	assert.NotEmpty(t, wt["token"])
	assert.NotEmpty(t, wt["digest"])

	timeline, ok := wt["timeline"].([]interface{})
	require.True(t, ok)
	require.NotEmpty(t, timeline)

	first, ok := timeline[0].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, first, "seq")
	assert.Contains(t, first, "strand")
	assert.Contains(t, first, "kind")

	stats, ok := wt["stats"].(map[string]interface{})
	require.True(t, ok)
	assert.GreaterOrEqual(t, stats["dispatches"], float64(3))
}
